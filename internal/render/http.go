package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrNotInteractive is returned by sessions that cannot drive a page.
var ErrNotInteractive = errors.New("session is not interactive")

// ErrNoDocument is returned when a selector is queried before Navigate succeeded.
var ErrNoDocument = errors.New("no document loaded")

// HTTPFactory fetches static HTML and queries it with goquery. It does not run
// scripts, so it only works for retailers that server-render prices.
type HTTPFactory struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
}

// NewHTTPFactory returns a static HTML factory. A nil client gets a 30s timeout.
func NewHTTPFactory(client *http.Client, userAgent, acceptLanguage string) *HTTPFactory {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if acceptLanguage == "" {
		acceptLanguage = DefaultAcceptLanguage
	}
	return &HTTPFactory{client: client, userAgent: userAgent, acceptLanguage: acceptLanguage}
}

func (f *HTTPFactory) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &httpSession{factory: f}, nil
}

type httpSession struct {
	factory *HTTPFactory
	doc     *goquery.Document
}

func (s *httpSession) Navigate(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.factory.userAgent)
	req.Header.Set("Accept-Language", s.factory.acceptLanguage)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.factory.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	s.doc = doc
	return nil
}

func (s *httpSession) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.doc == nil {
		return "", ErrNoDocument
	}
	return strings.TrimSpace(s.doc.Find(selector).First().Text()), nil
}

// WaitFor cannot wait on a static document; it only checks presence.
func (s *httpSession) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.doc == nil {
		return ErrNoDocument
	}
	if s.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("selector %q not present", selector)
	}
	return nil
}

func (s *httpSession) Click(context.Context, string, time.Duration) error {
	return ErrNotInteractive
}

func (s *httpSession) Close() error {
	s.doc = nil
	return nil
}

var _ Factory = (*HTTPFactory)(nil)
