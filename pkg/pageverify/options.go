package pageverify

import (
	"io"
	"os"
	"time"

	"github.com/root4loot/goutils/log"
)

const Version = "0.1.0"

// Options contains the options for a verification run.
type Options struct {
	BaseURL                  string        // Base for relative target URLs
	OutputDir                string        // Directory for relative output paths
	Engine                   string        // Browser engine (chromedp, rod)
	BrowserPath              string        // Browser binary, empty to search the usual locations
	CaptureWidth             int           // Width of the viewport
	CaptureHeight            int           // Height of the viewport
	CaptureFull              bool          // Take a full-page screenshot
	NavigationTimeout        time.Duration // Upper bound for a single navigation
	TitleTimeout             time.Duration // Default wait for an expected title
	TitlePollInterval        time.Duration // Interval between title reads
	UserAgent                string        // User agent
	RespectCertificateErrors bool          // Respect certificate errors
	UseHTTP2                 bool          // Use HTTP2
	URLInImage               bool          // Imprint the target origin below the screenshot
	ForwardConsole           bool          // Print page console messages
	Console                  io.Writer     // Destination for console messages
}

// NewOptions returns an Options struct initialized with default values.
func NewOptions() Options {
	return Options{
		BaseURL:                  "http://localhost:5173",
		OutputDir:                "",
		Engine:                   EngineChromedp,
		BrowserPath:              "",
		CaptureWidth:             1280,
		CaptureHeight:            720,
		CaptureFull:              false,
		NavigationTimeout:        30 * time.Second,
		TitleTimeout:             10 * time.Second,
		TitlePollInterval:        100 * time.Millisecond,
		RespectCertificateErrors: false,
		UseHTTP2:                 true,
		URLInImage:               false,
		ForwardConsole:           false,
		Console:                  os.Stdout,
		UserAgent:                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	}
}

func init() {
	log.Init("pageverify")
}

// SetDebug enables or disables debug logging.
func SetDebug(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
