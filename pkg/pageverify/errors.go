package pageverify

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNavigation      = errors.New("navigation failed")
	ErrTitleMismatch   = errors.New("title mismatch")
	ErrWrite           = errors.New("write failed")
	ErrInvalidTarget   = errors.New("invalid target")
	ErrUnknownEngine   = errors.New("unknown engine")
	ErrUnknownSuite    = errors.New("unknown suite")
	ErrSessionClosed   = errors.New("session closed")
	ErrEmptyScreenshot = errors.New("empty screenshot")
)

// NavigationError is returned when a target URL could not be loaded.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("error navigating to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

func (e *NavigationError) Is(target error) bool { return target == ErrNavigation }

// TitleMismatchError is returned when the page title did not reach the
// expected value before the timeout.
type TitleMismatchError struct {
	URL      string
	Expected string
	Actual   string
	Timeout  time.Duration
	Err      error // set when the title could not be read at all
}

func (e *TitleMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: expected title %q within %v: %v", e.URL, e.Expected, e.Timeout, e.Err)
	}
	return fmt.Sprintf("%s: expected title %q within %v, got %q", e.URL, e.Expected, e.Timeout, e.Actual)
}

func (e *TitleMismatchError) Unwrap() error { return e.Err }

func (e *TitleMismatchError) Is(target error) bool { return target == ErrTitleMismatch }

// WriteError is returned when no screenshot file could be produced for a
// target: the browser failed to capture the page, the URL imprint failed, or
// the output path could not be written. Err tells the cases apart.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error writing screenshot %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }
