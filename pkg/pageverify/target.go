package pageverify

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/root4loot/goutils/urlutil"
)

// Target is a single page to visit, check and capture.
type Target struct {
	URL           string        // Absolute URL, or path relative to Options.BaseURL
	ExpectedTitle string        // Title the page must reach, empty to skip the check
	TitleTimeout  time.Duration // Wait for ExpectedTitle, zero for Options.TitleTimeout
	OutputPath    string        // Screenshot destination, relative to Options.OutputDir
}

// Suite is a named, ordered list of targets.
type Suite struct {
	Name    string
	Targets []Target
	Console bool // forward page console output while the suite runs
}

const siteName = "Gr8QM Technovates"

var suites = []Suite{
	{
		Name: "pages",
		Targets: []Target{
			{URL: "/", OutputPath: "home-page.png"},
			{URL: "/about", OutputPath: "about-page.png"},
			{URL: "/trainings", OutputPath: "trainings-page.png"},
			{URL: "/contact", OutputPath: "contact-page.png"},
		},
	},
	{
		Name: "seo",
		Targets: []Target{
			{URL: "/", ExpectedTitle: "Home | " + siteName, OutputPath: "home-verification.png"},
			{URL: "/about", ExpectedTitle: "About Us | " + siteName, OutputPath: "about-verification.png"},
		},
		Console: true,
	},
}

// Suites returns the built-in suites in their run order.
func Suites() []Suite {
	out := make([]Suite, len(suites))
	for i, s := range suites {
		out[i] = Suite{Name: s.Name, Console: s.Console, Targets: append([]Target(nil), s.Targets...)}
	}
	return out
}

// SuiteByName looks up a built-in suite.
func SuiteByName(name string) (Suite, error) {
	for _, s := range Suites() {
		if s.Name == strings.TrimSpace(name) {
			return s, nil
		}
	}
	return Suite{}, fmt.Errorf("%w: %q", ErrUnknownSuite, name)
}

// SuiteNames returns the names of the built-in suites.
func SuiteNames() []string {
	names := make([]string, 0, len(suites))
	for _, s := range suites {
		names = append(names, s.Name)
	}
	return names
}

// plannedTarget is a target with its URL and output path resolved.
type plannedTarget struct {
	Target
	url          string
	outputPath   string
	titleTimeout time.Duration
}

// plan validates targets and resolves them against the options. Nothing is
// launched when plan fails.
func plan(targets []Target, options Options) ([]plannedTarget, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no targets", ErrInvalidTarget)
	}

	planned := make([]plannedTarget, 0, len(targets))
	seen := make(map[string]int, len(targets))

	for i, t := range targets {
		u, err := resolveURL(options.BaseURL, t.URL)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}

		out, err := resolveOutputPath(options.OutputDir, t.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("target %d (%s): %w", i, t.URL, err)
		}

		if j, dup := seen[out]; dup {
			return nil, fmt.Errorf("%w: targets %d and %d both write %s", ErrInvalidTarget, j, i, out)
		}
		seen[out] = i

		timeout := t.TitleTimeout
		if timeout <= 0 {
			timeout = options.TitleTimeout
		}
		if timeout <= 0 {
			timeout = NewOptions().TitleTimeout
		}

		planned = append(planned, plannedTarget{Target: t, url: u, outputPath: out, titleTimeout: timeout})
	}

	return planned, nil
}

// resolveURL makes target absolute against base and drops default ports.
func resolveURL(base, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidTarget)
	}

	if !urlutil.HasScheme(target) {
		if base == "" {
			return "", fmt.Errorf("%w: relative url %q without base url", ErrInvalidTarget, target)
		}

		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("%w: base url %q: %v", ErrInvalidTarget, base, err)
		}

		ref, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("%w: url %q: %v", ErrInvalidTarget, target, err)
		}

		target = baseURL.ResolveReference(ref).String()
	}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: url %q is not absolute", ErrInvalidTarget, target)
	}

	removeDefaultPort(parsed)
	return parsed.String(), nil
}

// removeDefaultPort drops :80 from http and :443 from https hosts.
func removeDefaultPort(u *url.URL) {
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = strings.TrimSuffix(u.Host, ":"+port)
	}
}

func resolveOutputPath(dir, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty output path", ErrInvalidTarget)
	}

	if dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	return filepath.Clean(path), nil
}
