package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"pricewatch/internal/alerting"
	"pricewatch/internal/config"
	"pricewatch/internal/extract"
	"pricewatch/internal/render"
	"pricewatch/internal/scheduler"
	"pricewatch/internal/service"
	"pricewatch/internal/storage"
	"pricewatch/internal/throttle"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newRenderFactory() render.Factory {
	b := a.Config.Browser
	if strings.EqualFold(b.Engine, "http") {
		return render.NewHTTPFactory(&http.Client{Timeout: b.RenderTimeout}, b.UserAgent, b.AcceptLanguage)
	}
	return render.NewRodFactory(render.RodOptions{
		ControlURL:     b.ControlURL,
		Bin:            b.Bin,
		Headless:       b.Headless,
		NoSandbox:      b.NoSandbox,
		Leakless:       b.Leakless,
		UserAgent:      b.UserAgent,
		AcceptLanguage: b.AcceptLanguage,
	}, a.Logger)
}

func (a *App) newGuard() *throttle.Guard {
	sc := a.Config.Scraper
	var cache throttle.Cache
	if strings.EqualFold(sc.Cache.Driver, "memcache") {
		mc := throttle.NewMemcacheCache(sc.Cache.MemcacheAddrs...)
		if err := mc.Ping(); err != nil {
			a.Logger.Warn().Err(err).Msg("memcache unreachable; host cool-downs stay in process")
		} else {
			cache = mc
		}
	}
	return throttle.NewGuard(cache, throttle.GuardOptions{
		RPS:      sc.HostRPS,
		Burst:    sc.HostBurst,
		BlockFor: sc.BlockDuration,
	}, a.Logger)
}

func (a *App) newRegistry() *extract.Registry {
	extra := make([]extract.Strategy, 0, len(a.Config.Sites))
	for _, site := range a.Config.Sites {
		s := extract.Strategy{
			Name:           site.Name,
			HostContains:   site.HostContains,
			TitleSelectors: site.TitleSelectors,
			PriceSelectors: site.PriceSelectors,
		}
		if s.Name == "" {
			s.Name = site.HostContains
		}
		if site.DismissClick != "" {
			s.Dismiss = &extract.Interaction{Selector: site.DismissClick, Wait: site.DismissWait}
		}
		if site.ReadySelector != "" {
			s.Ready = &extract.Interaction{Selector: site.ReadySelector, Wait: site.ReadyWait}
		}
		extra = append(extra, s)
	}
	return extract.DefaultRegistry(extra...)
}

func (a *App) newExtractor() *extract.Extractor {
	return extract.New(a.newRenderFactory(), a.newRegistry(), a.Logger,
		extract.WithGuard(a.newGuard()),
		extract.WithTimeout(a.Config.Browser.RenderTimeout),
	)
}

// newNotifier returns every enabled channel, or a log-only notifier when none
// is enabled. The closer releases channel clients.
func (a *App) newNotifier() (alerting.Notifier, func(), error) {
	cfg := a.Config.Alerting
	noop := func() {}
	if !cfg.Enabled {
		return nil, noop, nil
	}

	var (
		channels alerting.Multi
		closers  []func()
	)
	if cfg.Telegram.Enabled {
		channels = append(channels, alerting.NewTelegramNotifier(alerting.TelegramOptions{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			APIBase:  cfg.Telegram.APIBase,
			Timeout:  cfg.Telegram.Timeout,
			Currency: cfg.CurrencySymbol,
		}, a.Logger))
	}
	if cfg.RedisStream.Enabled {
		client, err := storage.NewRedisClient(a.Config.Storage.Redis)
		if err != nil {
			return nil, noop, err
		}
		closers = append(closers, func() { _ = client.Close() })
		channels = append(channels, alerting.NewStreamNotifier(client, alerting.StreamOptions{
			Stream:   cfg.RedisStream.Stream,
			MaxLen:   cfg.RedisStream.MaxLen,
			Currency: cfg.CurrencySymbol,
		}, a.Logger))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	switch len(channels) {
	case 0:
		return alerting.NewLogNotifier(cfg.CurrencySymbol, a.Logger), closeAll, nil
	case 1:
		return channels[0], closeAll, nil
	default:
		return channels, closeAll, nil
	}
}

func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	return storage.Open(ctx, a.Config.Storage, a.Logger)
}

func (a *App) maxSessions() int {
	n := render.MaxSessions(a.Config.Browser.MaxSessions, a.Config.Browser.SessionMemoryMB)
	if a.Config.Browser.MaxSessions <= 0 {
		a.Logger.Info().Int("max_sessions", n).Msg("derived session limit from available memory")
	}
	return n
}

// newService wires store, extractor, and notifier. sched may be nil.
func (a *App) newService(ctx context.Context, sched *scheduler.Scheduler) (*service.Service, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	svc := service.New(service.Options{
		MaxSessions: a.maxSessions(),
		PassTimeout: a.Config.Scheduler.PassTimeout,
		LockKey:     a.Config.Scheduler.AdvisoryLockKey,
	}, sched, store, a.newExtractor(), notifier, a.Logger)

	return svc, func() {
		closeNotifier()
		closeStore()
	}, nil
}

// Run executes the long-running tracker.
func (a *App) Run(ctx context.Context, runOnStart bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   runOnStart,
	}, a.Logger)

	svc, closeAll, err := a.newService(ctx, sched)
	if err != nil {
		return err
	}
	defer closeAll()

	a.Logger.Info().Str("storage", a.Config.Storage.Driver).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting price tracker")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("tracker terminated with error")
		return err
	}

	a.Logger.Info().Msg("price tracker stopped")
	return nil
}

// Check runs exactly one pass; it is the entry point for an external cron.
func (a *App) Check(ctx context.Context) (service.Summary, error) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closeAll, err := a.newService(ctx, nil)
	if err != nil {
		return service.Summary{}, err
	}
	defer closeAll()

	summary, err := svc.RunOnce(ctx)
	if err != nil {
		return summary, err
	}
	a.Logger.Info().
		Int("checked", summary.Checked).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Int("notified", summary.Notified).
		Dur("elapsed", summary.Elapsed).
		Msg("pass complete")
	return summary, nil
}
