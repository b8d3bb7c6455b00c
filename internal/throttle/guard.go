package throttle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const blockKeyPrefix = "pricewatch:block:"

// GuardOptions tune per-host pacing.
type GuardOptions struct {
	// RPS is the steady request rate per host. Zero or less disables pacing.
	RPS   float64
	Burst int
	// BlockFor is how long a host is skipped after a navigation failure.
	// Zero disables cool-downs.
	BlockFor time.Duration
}

// Guard paces requests per retailer host and remembers hosts that recently
// failed to load so later passes can skip a host that is refusing us.
type Guard struct {
	cache  Cache
	opts   GuardOptions
	logger zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGuard returns a Guard keeping cool-downs in cache. A nil cache keeps them
// in process memory.
func NewGuard(cache Cache, opts GuardOptions, logger zerolog.Logger) *Guard {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	return &Guard{
		cache:    cache,
		opts:     opts,
		logger:   logger.With().Str("component", "host_guard").Logger(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host is allowed or ctx ends.
func (g *Guard) Wait(ctx context.Context, host string) error {
	if g == nil || g.opts.RPS <= 0 {
		return nil
	}
	return g.limiter(host).Wait(ctx)
}

func (g *Guard) limiter(host string) *rate.Limiter {
	host = normalizeHost(host)

	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(g.opts.RPS), g.opts.Burst)
		g.limiters[host] = l
	}
	return l
}

// Blocked reports whether host is cooling down. Cache errors fail open.
func (g *Guard) Blocked(host string) bool {
	if g == nil || g.opts.BlockFor <= 0 {
		return false
	}
	_, err := g.cache.Get(blockKeyPrefix + normalizeHost(host))
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrCacheMiss) {
		g.logger.Warn().Err(err).Str("host", host).Msg("cool-down lookup failed")
	}
	return false
}

// Block starts a cool-down for host.
func (g *Guard) Block(host string) {
	if g == nil || g.opts.BlockFor <= 0 {
		return
	}
	if err := g.cache.Set(blockKeyPrefix+normalizeHost(host), []byte("1"), g.opts.BlockFor); err != nil {
		g.logger.Warn().Err(err).Str("host", host).Msg("cool-down store failed")
		return
	}
	g.logger.Info().Str("host", host).Dur("for", g.opts.BlockFor).Msg("host cooling down")
}

// Unblock clears a cool-down early, e.g. after the host served a page.
func (g *Guard) Unblock(host string) {
	if g == nil || g.opts.BlockFor <= 0 {
		return
	}
	_ = g.cache.Delete(blockKeyPrefix + normalizeHost(host))
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
