package pageverify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/root4loot/goutils/log"
)

type chromedpBrowser struct {
	ctx         context.Context // tab context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closed      bool
}

func launchChromedp(ctx context.Context, options Options, console func(ConsoleMessage)) (Browser, error) {
	log.Debug("Launching chromedp session")

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedpFlags(options)...)

	allocator, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tab, cancelTab := chromedp.NewContext(allocator)

	if console != nil {
		chromedp.ListenTarget(tab, func(ev interface{}) {
			if e, ok := ev.(*runtime.EventConsoleAPICalled); ok {
				console(ConsoleMessage{Type: string(e.Type), Text: consoleText(e.Args)})
			}
		})
	}

	// The first Run starts the browser and attaches the tab.
	tasks := chromedp.Tasks{}
	if options.CaptureWidth > 0 && options.CaptureHeight > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(int64(options.CaptureWidth), int64(options.CaptureHeight)))
	}

	if err := chromedp.Run(tab, tasks); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("error starting chrome: %w", err)
	}

	return &chromedpBrowser{ctx: tab, cancelTab: cancelTab, cancelAlloc: cancelAlloc}, nil
}

// chromedpFlags returns the allocator flags derived from options.
func chromedpFlags(options Options) []chromedp.ExecAllocatorOption {
	var flags []chromedp.ExecAllocatorOption

	flags = append(flags, chromedp.Flag("headless", true))

	if options.BrowserPath != "" {
		flags = append(flags, chromedp.ExecPath(options.BrowserPath))
	}

	if options.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(options.UserAgent))
	}

	if !options.RespectCertificateErrors {
		flags = append(flags, chromedp.Flag("ignore-certificate-errors", true))
	}

	if !options.UseHTTP2 {
		flags = append(flags, chromedp.Flag("disable-http2", true))
	}

	if options.CaptureWidth > 0 && options.CaptureHeight > 0 {
		flags = append(flags, chromedp.WindowSize(options.CaptureWidth, options.CaptureHeight))
	}

	return flags
}

// run executes actions on the tab, bounded by ctx. Cancelling the derived
// context stops the actions but leaves the tab open.
func (b *chromedpBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	if b.closed {
		return ErrSessionClosed
	}

	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (b *chromedpBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

func (b *chromedpBrowser) Title(ctx context.Context) (string, error) {
	var title string
	err := b.run(ctx, chromedp.Title(&title))
	return title, err
}

func (b *chromedpBrowser) URL(ctx context.Context) (string, error) {
	var location string
	err := b.run(ctx, chromedp.Location(&location))
	return location, err
}

func (b *chromedpBrowser) Screenshot(ctx context.Context, full bool) ([]byte, error) {
	var image []byte

	var action chromedp.Action = chromedp.CaptureScreenshot(&image)
	if full {
		// quality 100 keeps the capture in PNG
		action = chromedp.FullScreenshot(&image, 100)
	}

	if err := b.run(ctx, action); err != nil {
		return nil, err
	}
	return image, nil
}

func (b *chromedpBrowser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	err := chromedp.Cancel(b.ctx)
	b.cancelTab()
	b.cancelAlloc()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consoleText renders console arguments the way the devtools console does.
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case len(arg.Value) > 0:
			var s string
			if err := json.Unmarshal(arg.Value, &s); err == nil {
				parts = append(parts, s)
			} else {
				parts = append(parts, string(arg.Value))
			}
		case arg.UnserializableValue != "":
			parts = append(parts, string(arg.UnserializableValue))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}
