package pageverify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/root4loot/goutils/log"
)

// Runner visits targets one after another in a single browser session.
type Runner struct {
	Options    Options
	OnArtifact func(Artifact) // called after each screenshot is written

	launch launchFunc
}

// NewRunner returns a runner with default options.
func NewRunner() *Runner {
	return NewRunnerWithOptions(NewOptions())
}

// NewRunnerWithOptions returns a runner with the specified options.
func NewRunnerWithOptions(options Options) *Runner {
	return &Runner{Options: options}
}

// RunSuite runs a built-in suite. Console forwarding is turned on when the
// suite asks for it and the runner has a console writer.
func (r *Runner) RunSuite(ctx context.Context, suite Suite) error {
	log.Debugf("Running suite %s (%d targets)", suite.Name, len(suite.Targets))

	runner := *r
	runner.Options.ForwardConsole = r.Options.ForwardConsole || suite.Console

	if err := runner.Run(ctx, suite.Targets); err != nil {
		return fmt.Errorf("suite %s: %w", suite.Name, err)
	}
	return nil
}

// Run visits targets in order. For each target it navigates, waits for the
// expected title if one is set and writes a screenshot. The first error stops
// the run. The browser session is closed on every path.
func (r *Runner) Run(ctx context.Context, targets []Target) (err error) {
	planned, err := plan(targets, r.Options)
	if err != nil {
		return err
	}

	launch := r.launch
	if launch == nil {
		launch, err = engineLauncher(r.Options.Engine)
		if err != nil {
			return err
		}
	}

	var console func(ConsoleMessage)
	if r.Options.ForwardConsole && r.Options.Console != nil {
		console = newConsoleSink(r.Options.Console).print
	}

	browser, err := launch(ctx, r.Options, console)
	if err != nil {
		return fmt.Errorf("error launching browser: %w", err)
	}

	defer func() {
		cerr := browser.Close()
		if cerr == nil {
			return
		}
		if err == nil {
			err = fmt.Errorf("error closing browser: %w", cerr)
			return
		}
		err = multierror.Append(err, fmt.Errorf("error closing browser: %w", cerr))
	}()

	for i, t := range planned {
		if err := ctx.Err(); err != nil {
			return err
		}

		log.Debugf("[%d/%d] Visiting %s", i+1, len(planned), t.url)

		if err := r.visit(ctx, browser, t); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) visit(ctx context.Context, browser Browser, t plannedTarget) error {
	navCtx, cancel := withOptionalTimeout(ctx, r.Options.NavigationTimeout)
	err := browser.Navigate(navCtx, t.url)
	cancel()
	if err != nil {
		return &NavigationError{URL: t.url, Err: err}
	}

	var title string
	if t.ExpectedTitle != "" {
		title, err = r.waitForTitle(ctx, browser, t)
		if err != nil {
			return err
		}
		log.Debugf("%s has title %q", t.url, title)
	}

	image, err := browser.Screenshot(ctx, r.Options.CaptureFull)
	if err != nil {
		return &WriteError{Path: t.outputPath, Err: fmt.Errorf("error capturing screenshot: %w", err)}
	}

	landingURL, err := browser.URL(ctx)
	if err != nil {
		log.Debugf("Could not read landing URL for %s: %v", t.url, err)
		landingURL = t.url
	}

	if r.Options.URLInImage {
		image, err = Image(image).AddTextToImage(landingURL)
		if err != nil {
			return &WriteError{Path: t.outputPath, Err: err}
		}
	}

	similarity := -1
	previous, err := readPrevious(t.outputPath)
	if err != nil {
		log.Debugf("Could not read previous screenshot %s: %v", t.outputPath, err)
	} else if previous != nil {
		similarity = Similarity(previous, image)
	}

	if err := WriteArtifact(t.outputPath, image); err != nil {
		return &WriteError{Path: t.outputPath, Err: err}
	}

	if similarity >= 0 {
		log.Debugf("%s replaced a screenshot with similarity %d", t.outputPath, similarity)
	}
	log.Resultf("Screenshot %s saved to %s", t.url, t.outputPath)

	if r.OnArtifact != nil {
		r.OnArtifact(Artifact{
			Target:     t.Target,
			URL:        t.url,
			LandingURL: landingURL,
			Title:      title,
			Path:       t.outputPath,
			Similarity: similarity,
		})
	}

	return nil
}

// waitForTitle polls the page title until it equals the expected title or
// the target's title timeout elapses.
func (r *Runner) waitForTitle(parent context.Context, browser Browser, t plannedTarget) (string, error) {
	ctx, cancel := context.WithTimeout(parent, t.titleTimeout)
	defer cancel()

	interval := r.Options.TitlePollInterval
	if interval <= 0 {
		interval = NewOptions().TitlePollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	var lastErr error

	for {
		title, err := browser.Title(ctx)
		if err == nil {
			if title == t.ExpectedTitle {
				return title, nil
			}
			last, lastErr = title, nil
		} else if lastErr == nil || !errors.Is(err, context.DeadlineExceeded) {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if err := parent.Err(); err != nil {
				return "", err
			}
			mismatch := &TitleMismatchError{
				URL:      t.url,
				Expected: t.ExpectedTitle,
				Actual:   last,
				Timeout:  t.titleTimeout,
			}
			if last == "" && lastErr != nil && !errors.Is(lastErr, context.DeadlineExceeded) {
				mismatch.Err = lastErr
			}
			return "", mismatch
		case <-ticker.C:
		}
	}
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
