package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// knownBrowserPaths are checked when no binary is configured. Container images
// usually ship chromium under one of these.
var knownBrowserPaths = []string{
	"/usr/bin/chromium-browser",
	"/usr/bin/chromium",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/google-chrome",
}

// RodOptions configure the headless Chrome factory.
type RodOptions struct {
	// ControlURL points at an already running browser (e.g. browserless). When
	// empty a local browser is launched for every session.
	ControlURL     string
	Bin            string
	Headless       bool
	NoSandbox      bool
	Leakless       bool
	UserAgent      string
	AcceptLanguage string
}

// RodFactory launches or attaches to Chrome through go-rod.
type RodFactory struct {
	opts   RodOptions
	bin    string
	logger zerolog.Logger
}

// NewRodFactory resolves the browser binary once and returns a factory.
func NewRodFactory(opts RodOptions, logger zerolog.Logger) *RodFactory {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = DefaultAcceptLanguage
	}

	f := &RodFactory{
		opts:   opts,
		logger: logger.With().Str("component", "render_rod").Logger(),
	}
	if opts.ControlURL == "" {
		f.bin = detectBrowser(opts.Bin)
		if f.bin == "" {
			f.logger.Warn().Msg("no local chrome found; rod will download a browser on first launch")
		} else {
			f.logger.Debug().Str("bin", f.bin).Msg("using local browser")
		}
	}
	return f
}

func detectBrowser(configured string) string {
	if configured != "" {
		return configured
	}
	for _, env := range []string{"CHROME_BIN", "ROD_BROWSER_BIN"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	for _, p := range knownBrowserPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if p, ok := launcher.LookPath(); ok {
		return p
	}
	return ""
}

// NewSession starts an isolated browser context. In local mode the session owns
// the browser process and kills it on Close.
func (f *RodFactory) NewSession(ctx context.Context) (Session, error) {
	sessCtx, cancel := context.WithCancel(ctx)

	var (
		l          *launcher.Launcher
		controlURL string
		err        error
	)
	if f.opts.ControlURL != "" {
		controlURL, err = resolveControlURL(f.opts.ControlURL)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("resolve control url: %w", err)
		}
	} else {
		l = launcher.New().
			Context(sessCtx).
			Headless(f.opts.Headless).
			NoSandbox(f.opts.NoSandbox).
			Leakless(f.opts.Leakless)
		if f.bin != "" {
			l = l.Bin(f.bin)
		}
		controlURL, err = l.Launch()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	s := &rodSession{cancel: cancel, launcher: l, logger: f.logger}

	browser := rod.New().ControlURL(controlURL).Context(sessCtx)
	if err := browser.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	s.browser = browser

	incognito, err := browser.Incognito()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open incognito context: %w", err)
	}
	s.incognito = incognito

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      f.opts.UserAgent,
		AcceptLanguage: f.opts.AcceptLanguage,
	}); err != nil {
		s.Close()
		return nil, fmt.Errorf("set user agent: %w", err)
	}

	return s, nil
}

func resolveControlURL(u string) (string, error) {
	if strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://") {
		return u, nil
	}
	return launcher.ResolveURL(u)
}

type rodSession struct {
	cancel    context.CancelFunc
	launcher  *launcher.Launcher
	browser   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
	logger    zerolog.Logger
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (s *rodSession) Text(ctx context.Context, selector string) (string, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return "", err
	}
	if !has {
		return "", nil
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *rodSession) WaitFor(ctx context.Context, selector string, wait time.Duration) error {
	page := s.page.Context(ctx).Timeout(wait)
	defer page.CancelTimeout()
	_, err := page.Element(selector)
	return err
}

func (s *rodSession) Click(ctx context.Context, selector string, wait time.Duration) error {
	page := s.page.Context(ctx).Timeout(wait)
	defer page.CancelTimeout()
	el, err := page.Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Close tears down page, context and browser. It runs with a fresh short context
// so it still works after the pass deadline has cancelled the session context.
func (s *rodSession) Close() error {
	closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()

	var errs []error
	if s.page != nil {
		if err := s.page.Context(closeCtx).Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
	}
	if s.incognito != nil {
		if err := s.incognito.Context(closeCtx).Close(); err != nil {
			errs = append(errs, fmt.Errorf("close incognito context: %w", err))
		}
	}
	if s.launcher != nil {
		if s.browser != nil {
			_ = s.browser.Context(closeCtx).Close()
		}
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	s.cancel()

	if len(errs) > 0 {
		s.logger.Debug().Err(errors.Join(errs...)).Msg("session close reported errors")
	}
	return errors.Join(errs...)
}

var _ Factory = (*RodFactory)(nil)
