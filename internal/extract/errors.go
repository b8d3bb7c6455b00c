package extract

import (
	"fmt"
	"strings"
)

// Kind classifies an extraction failure. A Kind is itself an error so callers can
// match with errors.Is(err, extract.KindNavigation).
type Kind string

const (
	// KindNavigation covers network errors, timeouts, and session start failures.
	KindNavigation Kind = "navigation"
	// KindUnsupportedSite means no strategy matched the host (or the URL had none).
	KindUnsupportedSite Kind = "unsupported_site"
	// KindExtractionMismatch means selectors found nothing usable or the price was invalid.
	KindExtractionMismatch Kind = "extraction_mismatch"
)

func (k Kind) Error() string { return string(k) }

// Error is the failure value returned by Extract.
type Error struct {
	Kind     Kind
	URL      string
	Site     string
	Selector string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Kind)
	if e.Site != "" {
		fmt.Fprintf(&b, " %s:", e.Site)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Selector != "" {
		fmt.Fprintf(&b, " (selector %q)", e.Selector)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " - %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind of this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newError(kind Kind, url, site, message string, err error) *Error {
	return &Error{Kind: kind, URL: url, Site: site, Message: message, Err: err}
}

func navigationError(url, site, message string, err error) *Error {
	return newError(KindNavigation, url, site, message, err)
}

func mismatchError(url, site, selector, message string) *Error {
	e := newError(KindExtractionMismatch, url, site, message, nil)
	e.Selector = selector
	return e
}

func unsupportedError(url, host string) *Error {
	return newError(KindUnsupportedSite, url, "", fmt.Sprintf("no extraction strategy for host %q", host), nil)
}
