package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/alerting"
	"pricewatch/internal/extract"
	"pricewatch/internal/tracking"
)

type memStore struct {
	mu      sync.Mutex
	items   []tracking.Item
	loadErr error
	saves   int
}

func (m *memStore) Load(context.Context) ([]tracking.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]tracking.Item{}, m.items...), nil
}

func (m *memStore) Save(_ context.Context, items []tracking.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.items = append([]tracking.Item{}, items...)
	return nil
}

type lockingStore struct {
	memStore
	held bool
}

func (l *lockingStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() { l.held = false }, true, nil
}

type scripted struct {
	price string
	err   error
	panic bool
	block bool
}

type fakeExtractor struct {
	byURL   map[string]scripted
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (extract.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	sc, ok := f.byURL[url]
	if !ok {
		return extract.Result{}, &extract.Error{Kind: extract.KindUnsupportedSite, URL: url}
	}
	if sc.block {
		<-ctx.Done()
		return extract.Result{}, &extract.Error{Kind: extract.KindNavigation, URL: url, Err: ctx.Err()}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if sc.panic {
		panic("renderer crashed")
	}
	if sc.err != nil {
		return extract.Result{}, sc.err
	}
	return extract.Result{Title: "Item " + url, Price: decimal.RequireFromString(sc.price)}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return r.err
}

func fixedItem(id, url, desired, current string) tracking.Item {
	return tracking.Item{
		ID: id, URL: url, Title: "T" + id, Mode: tracking.ModeFixed,
		DesiredValue: decimal.RequireFromString(desired), DesiredPrice: decimal.RequireFromString(desired),
		InitialPrice: decimal.RequireFromString(current), CurrentPrice: decimal.RequireFromString(current),
		LastChecked: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var passTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *memStore, ex Extractor, n alerting.Notifier, opts Options) *Service {
	s := New(opts, nil, store, ex, n, zerolog.Nop())
	s.now = func() time.Time { return passTime }
	return s
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	store := &memStore{items: []tracking.Item{
		fixedItem("1", "https://a/1", "100", "120"),
		fixedItem("2", "https://a/2", "100", "120"),
		fixedItem("3", "https://a/3", "100", "120"),
		fixedItem("4", "https://ebay.com/4", "100", "120"),
	}}
	ex := &fakeExtractor{byURL: map[string]scripted{
		"https://a/1": {price: "90"},
		"https://a/2": {err: &extract.Error{Kind: extract.KindExtractionMismatch, Selector: "div.price"}},
		"https://a/3": {panic: true},
	}}
	notifier := &recordingNotifier{}

	summary, err := newTestService(store, ex, notifier, Options{MaxSessions: 4}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, Summary{Checked: 4, Updated: 1, Failed: 3, Notified: 1}, Summary{
		Checked: summary.Checked, Updated: summary.Updated, Failed: summary.Failed, Notified: summary.Notified,
	})

	require.Len(t, store.items, 4)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(store.items))
	assert.True(t, decimal.NewFromInt(90).Equal(store.items[0].CurrentPrice))
	for _, it := range store.items[1:] {
		assert.True(t, decimal.NewFromInt(120).Equal(it.CurrentPrice), it.ID)
		assert.False(t, it.LastNotifiedPrice.Valid, it.ID)
		assert.Equal(t, passTime, it.LastChecked, it.ID)
	}
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "1", notifier.notes[0].Item.ID)
}

func TestRunOnceBoundsConcurrency(t *testing.T) {
	byURL := map[string]scripted{}
	var items []tracking.Item
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		url := "https://a/" + id
		byURL[url] = scripted{price: "150"}
		items = append(items, fixedItem(id, url, "100", "120"))
	}
	store := &memStore{items: items}
	ex := &fakeExtractor{byURL: byURL, delay: 20 * time.Millisecond}

	_, err := newTestService(store, ex, nil, Options{MaxSessions: 2}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, ex.maxSeen.Load(), int32(2))
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, ids(store.items))
}

func TestRunOnceDeliveryFailureStillAdvancesFloor(t *testing.T) {
	store := &memStore{items: []tracking.Item{fixedItem("1", "https://a/1", "1000", "1200")}}
	ex := &fakeExtractor{byURL: map[string]scripted{"https://a/1": {price: "950"}}}
	notifier := &recordingNotifier{err: &alerting.DeliveryError{Channel: "telegram", Err: errors.New("401")}}
	svc := newTestService(store, ex, notifier, Options{MaxSessions: 1})

	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DeliveryFailed)
	require.True(t, store.items[0].LastNotifiedPrice.Valid)
	assert.True(t, decimal.NewFromInt(950).Equal(store.items[0].LastNotifiedPrice.Decimal))

	// Same price next pass: no second attempt.
	_, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, notifier.notes, 1)
}

func TestRunOnceEmptyCollection(t *testing.T) {
	store := &memStore{}
	summary, err := newTestService(store, &fakeExtractor{}, nil, Options{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Checked)
	assert.Zero(t, store.saves)
}

func TestRunOnceLoadFailure(t *testing.T) {
	store := &memStore{loadErr: errors.New("connection refused")}
	_, err := newTestService(store, &fakeExtractor{}, nil, Options{}).RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load items")
	assert.Zero(t, store.saves)
}

func TestRunOnceTimeoutSavesNothing(t *testing.T) {
	original := []tracking.Item{
		fixedItem("1", "https://a/1", "100", "120"),
		fixedItem("2", "https://a/2", "100", "120"),
	}
	store := &memStore{items: original}
	ex := &fakeExtractor{byURL: map[string]scripted{
		"https://a/1": {price: "90"},
		"https://a/2": {block: true},
	}}

	_, err := newTestService(store, ex, &recordingNotifier{}, Options{MaxSessions: 2, PassTimeout: 50 * time.Millisecond}).
		RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, store.saves)
	assert.True(t, decimal.NewFromInt(120).Equal(store.items[0].CurrentPrice))
}

func TestRunOnceSkipsWhenLocked(t *testing.T) {
	store := &lockingStore{held: true}
	store.items = []tracking.Item{fixedItem("1", "https://a/1", "100", "120")}
	svc := New(Options{LockKey: 7}, nil, store, &fakeExtractor{}, nil, zerolog.Nop())

	_, err := svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)
	assert.NoError(t, svc.ProcessTick(context.Background(), passTime))
	assert.Zero(t, store.saves)
}

func TestTrackRetargetRemove(t *testing.T) {
	store := &memStore{}
	ex := &fakeExtractor{byURL: map[string]scripted{"https://www.amazon.in/dp/1": {price: "2000"}}}
	svc := newTestService(store, ex, nil, Options{})
	ctx := context.Background()

	_, err := svc.Track(ctx, "https://www.amazon.in/dp/1", tracking.ModePercentage, decimal.NewFromInt(150))
	assert.ErrorIs(t, err, tracking.ErrInvalidTarget)

	_, err = svc.Track(ctx, "https://ebay.com/x", tracking.ModeFixed, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, extract.KindUnsupportedSite)

	first, err := svc.Track(ctx, "https://www.amazon.in/dp/1", tracking.ModePercentage, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1800).Equal(first.DesiredPrice))
	assert.Equal(t, "Item https://www.amazon.in/dp/1", first.Title)

	second, err := svc.Track(ctx, "https://www.amazon.in/dp/1", tracking.ModeFixed, decimal.NewFromInt(1500))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	changed, err := svc.Retarget(ctx, first.ID, tracking.ModePercentage, decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1500).Equal(changed.DesiredPrice))

	_, err = svc.Retarget(ctx, "nope", tracking.ModeFixed, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, tracking.ErrItemNotFound)

	removed, err := svc.Remove(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, removed.ID)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, ids(items))

	_, err = svc.Remove(ctx, first.ID)
	assert.ErrorIs(t, err, tracking.ErrItemNotFound)
}

func ids(items []tracking.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
