package render

import (
	"context"
	"time"
)

// DefaultUserAgent is a desktop Chrome identity. Retailers serve bare clients a
// reduced page or a block page.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// DefaultAcceptLanguage accompanies DefaultUserAgent.
const DefaultAcceptLanguage = "en-US,en;q=0.9"

// Session is one isolated rendering context holding a single page.
type Session interface {
	// Navigate loads url and returns once the DOM is ready.
	Navigate(ctx context.Context, url string) error
	// Text returns the trimmed text of the first element matching selector,
	// or "" when nothing matches.
	Text(ctx context.Context, selector string) (string, error)
	// WaitFor blocks until selector matches or wait elapses.
	WaitFor(ctx context.Context, selector string, wait time.Duration) error
	// Click waits up to wait for selector and clicks it.
	Click(ctx context.Context, selector string, wait time.Duration) error
	// Close releases the page and any browser process the session owns.
	Close() error
}

// Factory hands out sessions. Implementations own environment detection.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}
