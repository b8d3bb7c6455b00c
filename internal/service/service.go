package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pricewatch/internal/alerting"
	"pricewatch/internal/extract"
	"pricewatch/internal/scheduler"
	"pricewatch/internal/storage"
	"pricewatch/internal/tracking"
)

// ErrPassInProgress is returned when another process holds the run lock.
var ErrPassInProgress = errors.New("another pass holds the run lock")

// Extractor fetches the current title and price for a product URL.
type Extractor interface {
	Extract(ctx context.Context, url string) (extract.Result, error)
}

// HostGate is implemented by extractors that remember hosts which recently
// failed to load.
type HostGate interface {
	CoolingDown(url string) bool
}

// Options tune a Service.
type Options struct {
	// MaxSessions bounds concurrent extractions within a pass.
	MaxSessions int
	// PassTimeout is the wall-clock budget of one pass. Zero means unbounded.
	PassTimeout time.Duration
	// LockKey selects the cross-process run lock. Zero disables locking.
	LockKey int64
}

// Service runs reconciliation passes and the item edit operations.
type Service struct {
	scheduler *scheduler.Scheduler
	store     storage.Store
	extractor Extractor
	notifier  alerting.Notifier
	logger    zerolog.Logger

	maxSessions int
	passTimeout time.Duration
	locker      storage.AdvisoryLocker
	lockKey     int64
	now         func() time.Time
}

// New constructs the service. sched may be nil for one-shot use; notifier may be
// nil, in which case drops are still recorded but not delivered.
func New(opts Options, sched *scheduler.Scheduler, store storage.Store, extractor Extractor, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	if opts.MaxSessions < 1 {
		opts.MaxSessions = 1
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:   sched,
		store:       store,
		extractor:   extractor,
		notifier:    notifier,
		logger:      logger.With().Str("component", "service").Logger(),
		maxSessions: opts.MaxSessions,
		passTimeout: opts.PassTimeout,
		locker:      locker,
		lockKey:     opts.LockKey,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run begins the aligned pass loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick runs one pass for a scheduler tick unless another process is
// already running one.
func (s *Service) ProcessTick(ctx context.Context, bucket time.Time) error {
	summary, err := s.RunOnce(ctx)
	if errors.Is(err, ErrPassInProgress) {
		s.logger.Debug().Time("bucket", bucket).Msg("skip tick because run lock held elsewhere")
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info().Time("bucket", bucket).
		Int("checked", summary.Checked).
		Int("failed", summary.Failed).
		Int("notified", summary.Notified).
		Msg("pass complete")
	return nil
}

// RunOnce loads the collection, reconciles every item, and saves the result in
// a single write. Nothing is saved when the pass is cancelled or times out.
func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return Summary{}, err
	}
	if !proceed {
		return Summary{}, ErrPassInProgress
	}
	if unlock != nil {
		defer unlock()
	}

	if s.passTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.passTimeout)
		defer cancel()
	}

	items, err := s.store.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load items: %w", err)
	}
	if len(items) == 0 {
		s.logger.Info().Msg("no items to check")
		return Summary{}, nil
	}

	start := time.Now()
	updated, summary, err := s.reconcile(ctx, items)
	if err != nil {
		return summary, err
	}

	if err := s.store.Save(ctx, updated); err != nil {
		return summary, fmt.Errorf("save items: %w", err)
	}
	summary.Elapsed = time.Since(start)
	return summary, nil
}

// Reconcile checks every item concurrently and returns the updated collection in
// input order. It does not touch the store.
func (s *Service) Reconcile(ctx context.Context, items []tracking.Item) ([]tracking.Item, error) {
	updated, _, err := s.reconcile(ctx, items)
	return updated, err
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
