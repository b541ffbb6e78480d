package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/pageverify/pkg/pageverify"
)

const (
	author = "@danielantonsen"
	usage  = `USAGE:
  pageverify [options]

Runs the built-in verification suites against a locally served site and
writes one screenshot per page.

SUITES:
  pages   /, /about, /trainings, /contact        (no title checks)
  seo     /, /about                              (title checks, console output)

CONFIGURATIONS:
  -s,   --suite                  suites to run, comma separated                 (Default: pages,seo)
  -b,   --base-url               base URL of the served site                    (Default: http://localhost:5173)
  -e,   --engine                 browser engine (chromedp, rod)                 (Default: chromedp)
  -bp,  --browser-path           browser binary                                 (Default: auto)
  -tt,  --title-timeout          wait for an expected title (seconds)           (Default: 10)
  -to,  --timeout                navigation timeout (seconds)                   (Default: 30)
  -ua,  --user-agent             specify user agent                             (Default: Chrome UA)
  -uh,  --use-http2              use HTTP2                                      (Default: true)
  -rce, --respect-cert-err       respect certificate errors                     (Default: false)
  -cw,  --capture-width          output width                                   (Default: 1280)
  -ch,  --capture-height         output height                                  (Default: 720)
  -cf,  --capture-full           capture entire content                         (Default: false)

OUTPUT:
  -o,   --outfolder              save outputs to specified folder               (Default: jules-scratch/verification)
  -wu,  --with-url               add the page URL below each image              (Default: false)
  -nc,  --no-console             do not print page console output               (Default: false)
        --debug                  enable debug mode
        --version                display version
`
)

type cli struct {
	Options      pageverify.Options
	Suites       string
	TitleTimeout int
	Timeout      int
	NoConsole    bool
	Debug        bool
	Help         bool
	Version      bool
}

func newCLI() *cli {
	options := pageverify.NewOptions()
	options.OutputDir = "jules-scratch/verification"

	return &cli{
		Options:      options,
		Suites:       strings.Join(pageverify.SuiteNames(), ","),
		TitleTimeout: int(options.TitleTimeout / time.Second),
		Timeout:      int(options.NavigationTimeout / time.Second),
	}
}

func main() {
	c := newCLI()
	if err := c.parseFlags(flag.CommandLine, os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if c.Help {
		fmt.Print(usage)
		os.Exit(0)
	}

	if c.Version {
		fmt.Println("pageverify", pageverify.Version, "by", author)
		os.Exit(0)
	}

	pageverify.SetDebug(c.Debug)

	suites, err := c.suites()
	if err != nil {
		log.Errorf("Invalid suite: %v", err)
		fmt.Print(usage)
		os.Exit(1)
	}

	options, err := c.options()
	if err != nil {
		log.Errorf("Invalid option: %v", err)
		fmt.Print(usage)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, pageverify.NewRunnerWithOptions(options), suites); err != nil {
		log.Errorf("Verification failed: %v", err)
		stop()
		os.Exit(1)
	}
}

// run executes suites in order, each in its own browser session, and stops at
// the first failure.
func run(ctx context.Context, runner *pageverify.Runner, suites []pageverify.Suite) error {
	for _, s := range suites {
		if err := runner.RunSuite(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) parseFlags(fs *flag.FlagSet, args []string) error {
	defaults := c.Options

	// CONFIGURATIONS
	fs.StringVar(&c.Suites, "suite", c.Suites, "")
	fs.StringVar(&c.Suites, "s", c.Suites, "")
	fs.StringVar(&c.Options.BaseURL, "base-url", defaults.BaseURL, "")
	fs.StringVar(&c.Options.BaseURL, "b", defaults.BaseURL, "")
	fs.StringVar(&c.Options.Engine, "engine", defaults.Engine, "")
	fs.StringVar(&c.Options.Engine, "e", defaults.Engine, "")
	fs.StringVar(&c.Options.BrowserPath, "browser-path", defaults.BrowserPath, "")
	fs.StringVar(&c.Options.BrowserPath, "bp", defaults.BrowserPath, "")
	fs.IntVar(&c.TitleTimeout, "title-timeout", c.TitleTimeout, "")
	fs.IntVar(&c.TitleTimeout, "tt", c.TitleTimeout, "")
	fs.IntVar(&c.Timeout, "timeout", c.Timeout, "")
	fs.IntVar(&c.Timeout, "to", c.Timeout, "")
	fs.StringVar(&c.Options.UserAgent, "user-agent", defaults.UserAgent, "")
	fs.StringVar(&c.Options.UserAgent, "ua", defaults.UserAgent, "")
	fs.BoolVar(&c.Options.UseHTTP2, "use-http2", defaults.UseHTTP2, "")
	fs.BoolVar(&c.Options.UseHTTP2, "uh", defaults.UseHTTP2, "")
	fs.BoolVar(&c.Options.RespectCertificateErrors, "respect-cert-err", defaults.RespectCertificateErrors, "")
	fs.BoolVar(&c.Options.RespectCertificateErrors, "rce", defaults.RespectCertificateErrors, "")
	fs.IntVar(&c.Options.CaptureWidth, "capture-width", defaults.CaptureWidth, "")
	fs.IntVar(&c.Options.CaptureWidth, "cw", defaults.CaptureWidth, "")
	fs.IntVar(&c.Options.CaptureHeight, "capture-height", defaults.CaptureHeight, "")
	fs.IntVar(&c.Options.CaptureHeight, "ch", defaults.CaptureHeight, "")
	fs.BoolVar(&c.Options.CaptureFull, "capture-full", defaults.CaptureFull, "")
	fs.BoolVar(&c.Options.CaptureFull, "cf", defaults.CaptureFull, "")

	// OUTPUT
	fs.StringVar(&c.Options.OutputDir, "outfolder", defaults.OutputDir, "")
	fs.StringVar(&c.Options.OutputDir, "o", defaults.OutputDir, "")
	fs.BoolVar(&c.Options.URLInImage, "with-url", defaults.URLInImage, "")
	fs.BoolVar(&c.Options.URLInImage, "wu", defaults.URLInImage, "")
	fs.BoolVar(&c.NoConsole, "no-console", false, "")
	fs.BoolVar(&c.NoConsole, "nc", false, "")
	fs.BoolVar(&c.Debug, "debug", false, "")
	fs.BoolVar(&c.Help, "help", false, "")
	fs.BoolVar(&c.Help, "h", false, "")
	fs.BoolVar(&c.Version, "version", false, "")

	fs.Usage = func() {
		fmt.Print(usage)
	}

	return fs.Parse(args)
}

// options returns the runner options with the flag values applied.
func (c *cli) options() (pageverify.Options, error) {
	if c.TitleTimeout <= 0 {
		return pageverify.Options{}, fmt.Errorf("title timeout must be positive, got %d", c.TitleTimeout)
	}
	if c.Timeout <= 0 {
		return pageverify.Options{}, fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}

	options := c.Options
	options.TitleTimeout = time.Duration(c.TitleTimeout) * time.Second
	options.NavigationTimeout = time.Duration(c.Timeout) * time.Second

	if c.NoConsole {
		options.ForwardConsole = false
		options.Console = nil
	}

	return options, nil
}

// suites resolves the --suite value into built-in suites, keeping the given
// order.
func (c *cli) suites() ([]pageverify.Suite, error) {
	var suites []pageverify.Suite

	for _, name := range strings.Split(c.Suites, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		s, err := pageverify.SuiteByName(name)
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}

	if len(suites) == 0 {
		return nil, errors.New("no suite specified")
	}
	return suites, nil
}
