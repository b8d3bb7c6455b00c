package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/extract"
	"pricewatch/internal/render"
	"pricewatch/internal/throttle"
	"pricewatch/internal/tracking"
)

// site serves fixed amazon product pages; URLs in down fail to navigate.
type site struct {
	mu       sync.Mutex
	pages    map[string]map[string]string
	down     map[string]bool
	sessions int
}

func (s *site) NewSession(context.Context) (render.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
	return &siteSession{site: s}, nil
}

type siteSession struct {
	site *site
	page map[string]string
}

func (p *siteSession) Navigate(_ context.Context, url string) error {
	if p.site.down[url] {
		return errors.New("net::ERR_CONNECTION_RESET")
	}
	p.page = p.site.pages[url]
	return nil
}

func (p *siteSession) Text(_ context.Context, sel string) (string, error) {
	return p.page[sel], nil
}

func (p *siteSession) WaitFor(_ context.Context, sel string, _ time.Duration) error {
	if _, ok := p.page[sel]; !ok {
		return errors.New("not found")
	}
	return nil
}

func (p *siteSession) Click(context.Context, string, time.Duration) error { return nil }
func (p *siteSession) Close() error { return nil }

func amazonPage(title, price string) map[string]string {
	return map[string]string{"#productTitle": title, "span.a-price-whole": price}
}

func guardedExtractor(f render.Factory) (*extract.Extractor, *throttle.Guard) {
	guard := throttle.NewGuard(nil, throttle.GuardOptions{BlockFor: 15 * time.Minute}, zerolog.Nop())
	return extract.New(f, extract.DefaultRegistry(), zerolog.Nop(), extract.WithGuard(guard)), guard
}

func TestRunOnceNavigationFailureDoesNotSkipSameHostItems(t *testing.T) {
	const (
		broken  = "https://www.amazon.in/dp/broken"
		healthy = "https://www.amazon.in/dp/healthy"
	)
	f := &site{
		pages: map[string]map[string]string{healthy: amazonPage("Kettle", "900")},
		down:  map[string]bool{broken: true},
	}
	ex, _ := guardedExtractor(f)
	store := &memStore{items: []tracking.Item{
		fixedItem("1", broken, "1000", "1200"),
		fixedItem("2", healthy, "1000", "1200"),
	}}
	notifier := &recordingNotifier{}

	summary, err := newTestService(store, ex, notifier, Options{MaxSessions: 1}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Notified)

	require.Len(t, store.items, 2)
	assert.True(t, decimal.NewFromInt(900).Equal(store.items[1].CurrentPrice))
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "2", notifier.notes[0].Item.ID)
}

func TestRunOnceSkipsHostCoolingDownFromEarlierPass(t *testing.T) {
	const (
		amazon   = "https://www.amazon.in/dp/1"
		flipkart = "https://www.flipkart.com/p/itm1"
	)
	f := &site{pages: map[string]map[string]string{
		amazon:   amazonPage("Kettle", "900"),
		flipkart: {"span.B_NuCI": "Phone", "div.Nx9bqj": "₹9,000"},
	}}
	ex, guard := guardedExtractor(f)
	guard.Block("amazon.in")

	store := &memStore{items: []tracking.Item{
		fixedItem("1", amazon, "1000", "1200"),
		fixedItem("2", flipkart, "10000", "12000"),
	}}

	summary, err := newTestService(store, ex, nil, Options{MaxSessions: 2}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, f.sessions)

	assert.True(t, decimal.NewFromInt(1200).Equal(store.items[0].CurrentPrice))
	assert.Equal(t, passTime, store.items[0].LastChecked)
	assert.True(t, decimal.NewFromInt(9000).Equal(store.items[1].CurrentPrice))
}
