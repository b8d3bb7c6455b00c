package extract

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pricewatch/internal/render"
	"pricewatch/internal/throttle"
)

// DefaultTimeout bounds a single extraction, navigation included.
const DefaultTimeout = 60 * time.Second

// Extractor turns a product URL into a title and price using the registry's
// strategy for the URL's host.
type Extractor struct {
	factory  render.Factory
	registry *Registry
	guard    *throttle.Guard
	timeout  time.Duration
	logger   zerolog.Logger
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithGuard enables per-host pacing and cool-downs.
func WithGuard(g *throttle.Guard) Option {
	return func(e *Extractor) { e.guard = g }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New returns an Extractor that opens sessions from factory and picks selectors
// from registry. A nil registry means DefaultRegistry.
func New(factory render.Factory, registry *Registry, logger zerolog.Logger, opts ...Option) *Extractor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	e := &Extractor{
		factory:  factory,
		registry: registry,
		timeout:  DefaultTimeout,
		logger:   logger.With().Str("component", "extractor").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the strategy table, mostly for listing supported sites.
func (e *Extractor) Registry() *Registry {
	return e.registry
}

// Extract loads rawURL in a fresh session and returns the product's title and
// price. Every failure is an *Error; the session is always closed.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Result, error) {
	u, err := parseProductURL(rawURL)
	if err != nil {
		return Result{}, unsupportedError(rawURL, "")
	}
	host := u.Hostname()

	strategy, ok := e.registry.Resolve(host)
	if !ok {
		return Result{}, unsupportedError(rawURL, host)
	}

	log := e.logger.With().Str("site", strategy.Name).Str("url", rawURL).Logger()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.guard.Wait(ctx, host); err != nil {
		return Result{}, navigationError(rawURL, strategy.Name, "waiting for host rate limit", err)
	}

	session, err := e.factory.NewSession(ctx)
	if err != nil {
		return Result{}, navigationError(rawURL, strategy.Name, "could not start a browser session", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("session close failed")
		}
	}()

	start := time.Now()
	if err := session.Navigate(ctx, u.String()); err != nil {
		e.guard.Block(host)
		return Result{}, navigationError(rawURL, strategy.Name, "page did not load", err)
	}
	e.guard.Unblock(host)
	log.Debug().Dur("elapsed", time.Since(start)).Msg("page loaded")

	if d := strategy.Dismiss; d != nil {
		if err := session.Click(ctx, d.Selector, d.Wait); err != nil {
			log.Debug().Err(err).Str("selector", d.Selector).Msg("nothing to dismiss")
		}
	}

	if r := strategy.Ready; r != nil {
		if err := session.WaitFor(ctx, r.Selector, r.Wait); err != nil {
			if ctx.Err() != nil {
				return Result{}, navigationError(rawURL, strategy.Name, "timed out waiting for page", ctx.Err())
			}
			return Result{}, mismatchError(rawURL, strategy.Name, r.Selector, "page never showed the product")
		}
	}

	title, err := firstText(ctx, session, strategy.TitleSelectors)
	if err != nil {
		return Result{}, navigationError(rawURL, strategy.Name, "reading title", err)
	}
	if title == "" {
		return Result{}, mismatchError(rawURL, strategy.Name, strings.Join(strategy.TitleSelectors, ", "), "no title found")
	}

	priceText, err := firstText(ctx, session, strategy.PriceSelectors)
	if err != nil {
		return Result{}, navigationError(rawURL, strategy.Name, "reading price", err)
	}
	if priceText == "" {
		return Result{}, mismatchError(rawURL, strategy.Name, strings.Join(strategy.PriceSelectors, ", "), "no price found")
	}

	price, err := ParsePrice(priceText)
	if err != nil {
		return Result{}, mismatchError(rawURL, strategy.Name, "", "price text "+quote(priceText)+" is not a number")
	}
	if !price.IsPositive() {
		return Result{}, mismatchError(rawURL, strategy.Name, "", "price "+quote(priceText)+" is not positive")
	}

	log.Debug().Str("title", title).Str("price", price.String()).Msg("extracted")
	return Result{Title: title, Price: price}, nil
}

// CoolingDown reports whether rawURL's host failed to load recently. Extract
// does not consult it; callers check it once per pass so a failure within a
// pass never affects that pass's other items.
func (e *Extractor) CoolingDown(rawURL string) bool {
	u, err := parseProductURL(rawURL)
	if err != nil {
		return false
	}
	return e.guard.Blocked(u.Hostname())
}

func parseProductURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, errors.New("scheme must be http or https")
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// firstText returns the first non-empty text in selector order. Per-selector
// lookup errors fall through to the next selector unless the context is done.
func firstText(ctx context.Context, s render.Session, selectors []string) (string, error) {
	var lastErr error
	for _, sel := range selectors {
		text, err := s.Text(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}
	if lastErr != nil && errors.Is(lastErr, render.ErrNoDocument) {
		return "", lastErr
	}
	return "", nil
}

func quote(s string) string {
	if r := []rune(s); len(r) > 40 {
		s = string(r[:40]) + "..."
	}
	return `"` + s + `"`
}
