package pageverify

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Browser is a single browser with a single page. All calls operate on that
// page and block until the browser answers or ctx is done.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, full bool) ([]byte, error)
	Close() error
}

// ConsoleMessage is a console API call made by the loaded page.
type ConsoleMessage struct {
	Type string
	Text string
}

func (m ConsoleMessage) String() string {
	return m.Type + ": " + m.Text
}

type launchFunc func(ctx context.Context, options Options, console func(ConsoleMessage)) (Browser, error)

var engines = map[string]launchFunc{
	EngineChromedp: launchChromedp,
	EngineRod:      launchRod,
}

// Launch starts a browser session with the engine named in options. The
// session lives until Close is called or ctx is done. console, when non-nil,
// receives every console message the page emits.
func Launch(ctx context.Context, options Options, console func(ConsoleMessage)) (Browser, error) {
	launch, err := engineLauncher(options.Engine)
	if err != nil {
		return nil, err
	}
	return launch(ctx, options, console)
}

// Engines returns the supported engine names.
func Engines() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func engineLauncher(name string) (launchFunc, error) {
	if name == "" {
		name = EngineChromedp
	}
	launch, ok := engines[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownEngine, name, strings.Join(Engines(), ", "))
	}
	return launch, nil
}

// consoleSink serializes console output coming from the engine's event
// goroutine.
type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{w: w}
}

func (c *consoleSink) print(msg ConsoleMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "Browser console: %s\n", msg)
}
