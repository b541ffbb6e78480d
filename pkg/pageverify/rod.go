package pageverify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
)

type rodBrowser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	closed   bool
}

func launchRod(ctx context.Context, options Options, console func(ConsoleMessage)) (Browser, error) {
	log.Debug("Launching rod session")

	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true)

	if options.BrowserPath != "" {
		l = l.Bin(options.BrowserPath)
	} else if path, found := launcher.LookPath(); found {
		l = l.Bin(path)
	}

	if options.UserAgent != "" {
		l.Set("user-agent", options.UserAgent)
	}

	if !options.RespectCertificateErrors {
		l.Set("ignore-certificate-errors", "true")
	}

	if !options.UseHTTP2 {
		l.Set("disable-http2", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("error launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		abortLaunch(l)
		return nil, fmt.Errorf("error connecting to browser: %w", err)
	}

	b := &rodBrowser{launcher: l, browser: browser}

	b.page, err = browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("error opening page: %w", err)
	}

	if options.CaptureWidth > 0 && options.CaptureHeight > 0 {
		viewport := &proto.EmulationSetDeviceMetricsOverride{
			Width:             options.CaptureWidth,
			Height:            options.CaptureHeight,
			DeviceScaleFactor: 1,
			Mobile:            false,
		}

		if err := b.page.SetViewport(viewport); err != nil {
			b.Close()
			return nil, fmt.Errorf("error setting viewport: %w", err)
		}
	}

	if console != nil {
		wait := b.page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
			console(ConsoleMessage{Type: string(e.Type), Text: rodConsoleText(e.Args)})
		})
		go wait()
	}

	return b, nil
}

type launchedProcess interface {
	Kill()
	Cleanup()
}

// abortLaunch kills a launched browser and removes its user data dir.
func abortLaunch(p launchedProcess) {
	p.Kill()
	p.Cleanup()
}

func (b *rodBrowser) pageFor(ctx context.Context) (*rod.Page, error) {
	if b.closed {
		return nil, ErrSessionClosed
	}
	return b.page.Context(ctx), nil
}

// Navigate loads url and waits for the load event.
func (b *rodBrowser) Navigate(ctx context.Context, url string) error {
	page, err := b.pageFor(ctx)
	if err != nil {
		return err
	}

	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (b *rodBrowser) Title(ctx context.Context) (string, error) {
	page, err := b.pageFor(ctx)
	if err != nil {
		return "", err
	}

	info, err := page.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (b *rodBrowser) URL(ctx context.Context) (string, error) {
	page, err := b.pageFor(ctx)
	if err != nil {
		return "", err
	}

	info, err := page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (b *rodBrowser) Screenshot(ctx context.Context, full bool) ([]byte, error) {
	page, err := b.pageFor(ctx)
	if err != nil {
		return nil, err
	}
	return page.Screenshot(full, nil)
}

func (b *rodBrowser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}

func rodConsoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch v := arg.Value.Val().(type) {
		case nil:
			if arg.Description != "" {
				parts = append(parts, arg.Description)
			} else {
				parts = append(parts, string(arg.Type))
			}
		case string:
			parts = append(parts, v)
		default:
			parts = append(parts, arg.Value.String())
		}
	}
	return strings.Join(parts, " ")
}
