package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/render"
	"pricewatch/internal/throttle"
)

type fakeSession struct {
	texts       map[string]string
	navigateErr error
	failURLs    map[string]error
	clickErr    error
	waitErr     error
	clicked     []string
	closed      bool
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	if err, ok := s.failURLs[url]; ok {
		return err
	}
	return s.navigateErr
}

func (s *fakeSession) Text(_ context.Context, sel string) (string, error) {
	return s.texts[sel], nil
}

func (s *fakeSession) WaitFor(_ context.Context, sel string, _ time.Duration) error {
	if s.waitErr != nil {
		return s.waitErr
	}
	if _, ok := s.texts[sel]; !ok {
		return errors.New("not found")
	}
	return nil
}

func (s *fakeSession) Click(_ context.Context, sel string, _ time.Duration) error {
	s.clicked = append(s.clicked, sel)
	return s.clickErr
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeFactory struct {
	mu       sync.Mutex
	session  *fakeSession
	err      error
	sessions int
}

func (f *fakeFactory) NewSession(context.Context) (render.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func newTestExtractor(f render.Factory, opts ...Option) *Extractor {
	return New(f, DefaultRegistry(), zerolog.Nop(), opts...)
}

func TestExtractAmazon(t *testing.T) {
	s := &fakeSession{texts: map[string]string{
		"#productTitle":      "  Kindle Paperwhite ",
		"span.a-price-whole": "13,999.",
	}}
	f := &fakeFactory{session: s}

	res, err := newTestExtractor(f).Extract(context.Background(), "https://www.amazon.in/dp/B0XYZ")
	require.NoError(t, err)
	assert.Equal(t, "Kindle Paperwhite", res.Title)
	assert.True(t, decimal.NewFromInt(13999).Equal(res.Price))
	assert.True(t, s.closed)
	assert.Empty(t, s.clicked)
}

func TestExtractFirstPriceSelectorWins(t *testing.T) {
	s := &fakeSession{texts: map[string]string{
		"span.B_NuCI":         "Phone",
		"div._30jeq3._16Jk6d": "₹9,499",
		"div._30jeq3":         "₹12,000",
	}}
	res, err := newTestExtractor(&fakeFactory{session: s}).Extract(context.Background(), "https://www.flipkart.com/p/itm1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(9499).Equal(res.Price))
	assert.Equal(t, []string{"button._2KpZ6l._2doB4z"}, s.clicked)
}

func TestExtractDismissIsOptional(t *testing.T) {
	s := &fakeSession{
		texts:    map[string]string{"span.VU-ZEz": "Laptop", "div.Nx9bqj": "₹54,990"},
		clickErr: errors.New("no such element"),
	}
	res, err := newTestExtractor(&fakeFactory{session: s}).Extract(context.Background(), "https://flipkart.com/laptop/p/1")
	require.NoError(t, err)
	assert.Equal(t, "Laptop", res.Title)
}

func TestExtractUnsupportedHostOpensNoSession(t *testing.T) {
	f := &fakeFactory{session: &fakeSession{}}
	ex := newTestExtractor(f)

	for _, raw := range []string{"https://www.ebay.com/itm/1", "not a url", "", "ftp://amazon.in/x", "amazon.in/dp/1"} {
		_, err := ex.Extract(context.Background(), raw)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, KindUnsupportedSite, raw)
	}
	assert.Zero(t, f.sessions)
}

func TestExtractRejectsBadPrices(t *testing.T) {
	cases := map[string]string{
		"zero":        "₹0",
		"non-numeric": "Currently unavailable",
		"missing":     "",
	}
	for name, price := range cases {
		t.Run(name, func(t *testing.T) {
			texts := map[string]string{"#productTitle": "Thing"}
			if price != "" {
				texts["span.a-price-whole"] = price
			}
			s := &fakeSession{texts: texts}
			_, err := newTestExtractor(&fakeFactory{session: s}).Extract(context.Background(), "https://amazon.com/dp/1")
			require.Error(t, err)
			assert.ErrorIs(t, err, KindExtractionMismatch)
			assert.True(t, s.closed)
		})
	}
}

func TestExtractReadyMissingIsMismatch(t *testing.T) {
	s := &fakeSession{texts: map[string]string{"span.a-price-whole": "100"}}
	_, err := newTestExtractor(&fakeFactory{session: s}).Extract(context.Background(), "https://amazon.com/dp/1")
	require.Error(t, err)

	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindExtractionMismatch, xerr.Kind)
	assert.Equal(t, "#productTitle", xerr.Selector)
	assert.Equal(t, "amazon", xerr.Site)
}

func TestExtractNavigationFailureDoesNotFailSiblings(t *testing.T) {
	s := &fakeSession{
		texts:    map[string]string{"#productTitle": "Kettle", "span.a-price-whole": "900"},
		failURLs: map[string]error{"https://www.amazon.in/dp/broken": errors.New("net::ERR_CONNECTION_RESET")},
	}
	f := &fakeFactory{session: s}
	guard := throttle.NewGuard(nil, throttle.GuardOptions{BlockFor: time.Minute}, zerolog.Nop())
	ex := newTestExtractor(f, WithGuard(guard))

	_, err := ex.Extract(context.Background(), "https://www.amazon.in/dp/broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, KindNavigation)
	assert.True(t, s.closed)
	assert.True(t, ex.CoolingDown("https://amazon.in/dp/other"))

	res, err := ex.Extract(context.Background(), "https://www.amazon.in/dp/ok")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(900).Equal(res.Price))
	assert.Equal(t, 2, f.sessions)

	// A served page ends the cool-down.
	assert.False(t, ex.CoolingDown("https://www.amazon.in/dp/broken"))
}

func TestCoolingDownWithoutGuard(t *testing.T) {
	ex := newTestExtractor(&fakeFactory{session: &fakeSession{}})
	assert.False(t, ex.CoolingDown("https://www.amazon.in/dp/1"))
	assert.False(t, ex.CoolingDown("::"))
}

func TestExtractSessionStartFailure(t *testing.T) {
	f := &fakeFactory{err: errors.New("chrome not found")}
	_, err := newTestExtractor(f).Extract(context.Background(), "https://amazon.com/dp/1")
	assert.ErrorIs(t, err, KindNavigation)
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestQuoteKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("₹", 50)
	got := quote(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, `"`+strings.Repeat("₹", 40)+`..."`, got)
	assert.Equal(t, `"₹10"`, quote("₹10"))
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "₹1,24,999.00", want: "124999"},
		{in: "$19.99", want: "19.99"},
		{in: "1,299.", want: "1299"},
		{in: "₹0", want: "0"},
		{in: "free", err: true},
		{in: "1.2.3", err: true},
	}
	for _, tc := range cases {
		got, err := ParsePrice(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.True(t, decimal.RequireFromString(tc.want).Equal(got), "%s -> %s", tc.in, got)
	}
}

func TestRegistryResolve(t *testing.T) {
	custom := Strategy{Name: "shop", HostContains: "shop.example", TitleSelectors: []string{"h1"}, PriceSelectors: []string{".p"}}
	r := DefaultRegistry(custom)

	s, ok := r.Resolve("WWW.AMAZON.CO.UK")
	require.True(t, ok)
	assert.Equal(t, "amazon", s.Name)

	s, ok = r.Resolve("shop.example.org")
	require.True(t, ok)
	assert.Equal(t, "shop", s.Name)

	_, ok = r.Resolve("ebay.com")
	assert.False(t, ok)
	assert.Equal(t, []string{"shop", "amazon", "flipkart"}, r.Sites())
}
