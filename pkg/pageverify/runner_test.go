package pageverify

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	titles   []string // successive titles, the last one sticks
	titleErr error
	navErr   error
	shotErr  error
	console  []ConsoleMessage
}

type fakeBrowser struct {
	pages    map[string]*fakePage
	console  func(ConsoleMessage)
	current  string
	reads    int
	closed   int
	closeErr error
	visited  []string
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	b.visited = append(b.visited, url)
	page, ok := b.pages[url]
	if !ok {
		return errors.New("net::ERR_CONNECTION_REFUSED")
	}
	if page.navErr != nil {
		return page.navErr
	}
	b.current = url
	b.reads = 0
	if b.console != nil {
		for _, msg := range page.console {
			b.console(msg)
		}
	}
	return nil
}

func (b *fakeBrowser) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	page := b.pages[b.current]
	if page.titleErr != nil {
		return "", page.titleErr
	}
	if len(page.titles) == 0 {
		return "", nil
	}
	i := b.reads
	if i >= len(page.titles) {
		i = len(page.titles) - 1
	}
	b.reads++
	return page.titles[i], nil
}

func (b *fakeBrowser) URL(ctx context.Context) (string, error) {
	return b.current, nil
}

func (b *fakeBrowser) Screenshot(ctx context.Context, full bool) ([]byte, error) {
	if err := b.pages[b.current].shotErr; err != nil {
		return nil, err
	}
	return []byte("screenshot of " + b.current), nil
}

func (b *fakeBrowser) Close() error {
	b.closed++
	return b.closeErr
}

const testBase = "http://localhost:5173"

func newTestRunner(t *testing.T, b *fakeBrowser) (*Runner, *int) {
	t.Helper()

	options := NewOptions()
	options.BaseURL = testBase
	options.OutputDir = t.TempDir()
	options.TitleTimeout = 200 * time.Millisecond
	options.TitlePollInterval = 5 * time.Millisecond

	launches := 0
	r := NewRunnerWithOptions(options)
	r.launch = func(ctx context.Context, options Options, console func(ConsoleMessage)) (Browser, error) {
		launches++
		b.console = console
		return b, nil
	}
	return r, &launches
}

func sitePages() map[string]*fakePage {
	return map[string]*fakePage{
		testBase + "/":      {titles: []string{"Home | X"}},
		testBase + "/about": {titles: []string{"About Us | X"}},
	}
}

func TestRunSingleTarget(t *testing.T) {
	b := &fakeBrowser{pages: sitePages()}
	r, launches := newTestRunner(t, b)

	err := r.Run(context.Background(), []Target{{URL: "/", OutputPath: "home.png"}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(r.Options.OutputDir, "home.png"))
	require.NoError(t, err)
	assert.Equal(t, "screenshot of "+testBase+"/", string(data))
	assert.Equal(t, 1, *launches)
	assert.Equal(t, 1, b.closed)
}

func TestRunMatchingTitles(t *testing.T) {
	b := &fakeBrowser{pages: sitePages()}
	r, _ := newTestRunner(t, b)

	var artifacts []Artifact
	r.OnArtifact = func(a Artifact) { artifacts = append(artifacts, a) }

	err := r.Run(context.Background(), []Target{
		{URL: "/", ExpectedTitle: "Home | X", OutputPath: "home.png"},
		{URL: "/about", ExpectedTitle: "About Us | X", OutputPath: "about.png"},
	})
	require.NoError(t, err)

	require.Len(t, artifacts, 2)
	assert.Equal(t, "Home | X", artifacts[0].Title)
	assert.Equal(t, "About Us | X", artifacts[1].Title)
	assert.FileExists(t, filepath.Join(r.Options.OutputDir, "home.png"))
	assert.FileExists(t, filepath.Join(r.Options.OutputDir, "about.png"))
	assert.Equal(t, 1, b.closed)
}

func TestRunTitleMismatch(t *testing.T) {
	pages := sitePages()
	pages[testBase+"/about"] = &fakePage{titles: []string{"Wrong Title"}}
	b := &fakeBrowser{pages: pages}
	r, _ := newTestRunner(t, b)

	err := r.Run(context.Background(), []Target{
		{URL: "/", ExpectedTitle: "Home | X", OutputPath: "home.png"},
		{URL: "/about", ExpectedTitle: "About Us | X", OutputPath: "about.png"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTitleMismatch))

	var mismatch *TitleMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "About Us | X", mismatch.Expected)
	assert.Equal(t, "Wrong Title", mismatch.Actual)
	assert.Equal(t, testBase+"/about", mismatch.URL)

	assert.FileExists(t, filepath.Join(r.Options.OutputDir, "home.png"))
	assert.NoFileExists(t, filepath.Join(r.Options.OutputDir, "about.png"))
	assert.Equal(t, 1, b.closed)
}

func TestRunTitleConverges(t *testing.T) {
	pages := map[string]*fakePage{
		testBase + "/": {titles: []string{"", "Loading", "Home | X"}},
	}
	b := &fakeBrowser{pages: pages}
	r, _ := newTestRunner(t, b)

	err := r.Run(context.Background(), []Target{{URL: "/", ExpectedTitle: "Home | X", OutputPath: "home.png"}})
	require.NoError(t, err)
	assert.Equal(t, 3, b.reads)
}

func TestRunDefaultTitleTimeout(t *testing.T) {
	for _, timeout := range []time.Duration{0, -time.Second} {
		b := &fakeBrowser{pages: sitePages()}
		r, _ := newTestRunner(t, b)
		r.Options = Options{BaseURL: testBase, OutputDir: r.Options.OutputDir, TitleTimeout: timeout}

		var artifacts []Artifact
		r.OnArtifact = func(a Artifact) { artifacts = append(artifacts, a) }

		err := r.Run(context.Background(), []Target{{URL: "/", ExpectedTitle: "Home | X", OutputPath: "home.png"}})
		require.NoError(t, err, "timeout %s", timeout)
		require.Len(t, artifacts, 1)
		assert.Equal(t, "Home | X", artifacts[0].Title)
	}
}

func TestRunUnreadableTitle(t *testing.T) {
	titleErr := errors.New("execution context was destroyed")
	pages := map[string]*fakePage{testBase + "/": {titleErr: titleErr}}
	b := &fakeBrowser{pages: pages}
	r, _ := newTestRunner(t, b)
	r.Options.TitleTimeout = 30 * time.Millisecond

	err := r.Run(context.Background(), []Target{{URL: "/", ExpectedTitle: "Home | X", OutputPath: "home.png"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTitleMismatch))

	var mismatch *TitleMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, titleErr, mismatch.Err)
	assert.Empty(t, mismatch.Actual)
	assert.NoFileExists(t, filepath.Join(r.Options.OutputDir, "home.png"))
}

func TestRunCaptureFailure(t *testing.T) {
	shotErr := errors.New("unable to capture screenshot")
	pages := sitePages()
	pages[testBase+"/about"].shotErr = shotErr
	b := &fakeBrowser{pages: pages}
	r, _ := newTestRunner(t, b)

	err := r.Run(context.Background(), []Target{
		{URL: "/", OutputPath: "home.png"},
		{URL: "/about", OutputPath: "about.png"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite))
	assert.True(t, errors.Is(err, shotErr))

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, filepath.Join(r.Options.OutputDir, "about.png"), writeErr.Path)
	assert.NoFileExists(t, writeErr.Path)
	assert.Equal(t, 1, b.closed)
}

func TestRunPerTargetTitleTimeout(t *testing.T) {
	pages := map[string]*fakePage{testBase + "/": {titles: []string{"Nope"}}}
	b := &fakeBrowser{pages: pages}
	r, _ := newTestRunner(t, b)
	r.Options.TitleTimeout = time.Hour

	start := time.Now()
	err := r.Run(context.Background(), []Target{
		{URL: "/", ExpectedTitle: "Home | X", TitleTimeout: 50 * time.Millisecond, OutputPath: "home.png"},
	})
	require.Error(t, err)

	var mismatch *TitleMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 50*time.Millisecond, mismatch.Timeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunNavigationFailure(t *testing.T) {
	b := &fakeBrowser{pages: map[string]*fakePage{}}
	r, _ := newTestRunner(t, b)

	err := r.Run(context.Background(), []Target{
		{URL: "/", OutputPath: "home.png"},
		{URL: "/about", OutputPath: "about.png"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNavigation))

	var navErr *NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, testBase+"/", navErr.URL)

	assert.NoFileExists(t, filepath.Join(r.Options.OutputDir, "home.png"))
	assert.Equal(t, []string{testBase + "/"}, b.visited)
	assert.Equal(t, 1, b.closed)
}

func TestRunWriteFailure(t *testing.T) {
	b := &fakeBrowser{pages: sitePages()}
	r, _ := newTestRunner(t, b)

	blocker := filepath.Join(r.Options.OutputDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

	err := r.Run(context.Background(), []Target{
		{URL: "/", OutputPath: "home.png"},
		{URL: "/about", OutputPath: filepath.Join("blocker", "about.png")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite))
	assert.FileExists(t, filepath.Join(r.Options.OutputDir, "home.png"))
	assert.Equal(t, 1, b.closed)
}

func TestRunIsIdempotent(t *testing.T) {
	b := &fakeBrowser{pages: sitePages()}
	r, launches := newTestRunner(t, b)

	targets := []Target{
		{URL: "/", OutputPath: "home.png"},
		{URL: "/about", OutputPath: "about.png"},
	}

	var first []Artifact
	r.OnArtifact = func(a Artifact) { first = append(first, a) }
	require.NoError(t, r.Run(context.Background(), targets))

	r.OnArtifact = nil
	require.NoError(t, r.Run(context.Background(), targets))

	entries, err := os.ReadDir(r.Options.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, len(targets))
	assert.Equal(t, 2, *launches)
	assert.Equal(t, 2, b.closed)

	for _, a := range first {
		assert.Equal(t, -1, a.Similarity)
	}
}

func TestRunPreservesOrder(t *testing.T) {
	pages := sitePages()
	pages[testBase+"/trainings"] = &fakePage{}
	pages[testBase+"/contact"] = &fakePage{}
	b := &fakeBrowser{pages: pages}
	r, _ := newTestRunner(t, b)

	var paths []string
	r.OnArtifact = func(a Artifact) { paths = append(paths, filepath.Base(a.Path)) }

	suite, err := SuiteByName("pages")
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background(), suite.Targets))

	assert.Equal(t, []string{"home-page.png", "about-page.png", "trainings-page.png", "contact-page.png"}, paths)
	assert.Equal(t, []string{testBase + "/", testBase + "/about", testBase + "/trainings", testBase + "/contact"}, b.visited)
}

func TestRunRejectsInvalidTargets(t *testing.T) {
	tests := []struct {
		name    string
		targets []Target
	}{
		{"empty list", nil},
		{"empty url", []Target{{URL: "", OutputPath: "a.png"}}},
		{"empty output", []Target{{URL: "/"}}},
		{"duplicate output", []Target{{URL: "/", OutputPath: "a.png"}, {URL: "/about", OutputPath: "./a.png"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBrowser{pages: sitePages()}
			r, launches := newTestRunner(t, b)

			err := r.Run(context.Background(), tt.targets)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTarget))
			assert.Equal(t, 0, *launches)
		})
	}
}

func TestRunCombinesCloseError(t *testing.T) {
	pages := map[string]*fakePage{testBase + "/": {titles: []string{"Wrong"}}}
	closeErr := errors.New("browser went away")
	b := &fakeBrowser{pages: pages, closeErr: closeErr}
	r, _ := newTestRunner(t, b)

	err := r.Run(context.Background(), []Target{{URL: "/", ExpectedTitle: "Home | X", OutputPath: "home.png"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTitleMismatch))
	assert.True(t, errors.Is(err, closeErr))
}

func TestRunCloseErrorOnSuccess(t *testing.T) {
	closeErr := errors.New("browser went away")
	b := &fakeBrowser{pages: sitePages(), closeErr: closeErr}
	r, _ := newTestRunner(t, b)

	err := r.Run(context.Background(), []Target{{URL: "/", OutputPath: "home.png"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, closeErr))
	assert.FileExists(t, filepath.Join(r.Options.OutputDir, "home.png"))
}

func TestRunCanceledContext(t *testing.T) {
	b := &fakeBrowser{pages: sitePages()}
	r, _ := newTestRunner(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	r.OnArtifact = func(Artifact) { cancel() }

	err := r.Run(ctx, []Target{
		{URL: "/", OutputPath: "home.png"},
		{URL: "/about", OutputPath: "about.png"},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(r.Options.OutputDir, "about.png"))
	assert.Equal(t, 1, b.closed)
}

func TestRunForwardsConsole(t *testing.T) {
	pages := sitePages()
	pages[testBase+"/"].console = []ConsoleMessage{{Type: "log", Text: "hello from home"}}
	b := &fakeBrowser{pages: pages}
	r, _ := newTestRunner(t, b)

	var out bytes.Buffer
	r.Options.Console = &out

	require.NoError(t, r.Run(context.Background(), []Target{{URL: "/", OutputPath: "home.png"}}))
	assert.Empty(t, out.String())

	require.NoError(t, r.RunSuite(context.Background(), Suite{
		Name:    "console",
		Targets: []Target{{URL: "/", OutputPath: "home.png"}},
		Console: true,
	}))
	assert.Equal(t, "Browser console: log: hello from home\n", out.String())
}

func TestRunSuiteWrapsError(t *testing.T) {
	b := &fakeBrowser{pages: map[string]*fakePage{}}
	r, _ := newTestRunner(t, b)

	suite, err := SuiteByName("seo")
	require.NoError(t, err)

	err = r.RunSuite(context.Background(), suite)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "suite seo:"))
	assert.True(t, errors.Is(err, ErrNavigation))
}

func TestRunUnknownEngine(t *testing.T) {
	options := NewOptions()
	options.Engine = "netscape"

	err := NewRunnerWithOptions(options).Run(context.Background(), []Target{{URL: "/", OutputPath: "a.png"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEngine))
}

func TestLaunchUnknownEngine(t *testing.T) {
	options := NewOptions()
	options.Engine = "netscape"

	_, err := Launch(context.Background(), options, nil)
	assert.True(t, errors.Is(err, ErrUnknownEngine))
	assert.Equal(t, []string{EngineChromedp, EngineRod}, Engines())
}
