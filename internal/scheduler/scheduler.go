package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per tick with the tick's slot time.
type TickFunc func(ctx context.Context, slot time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// AlignToStart fires on wall-clock multiples of Interval (e.g. on the hour).
	AlignToStart bool
	StartupDelay time.Duration
	// RunOnStart fires one tick right after the startup delay instead of
	// waiting for the first slot.
	RunOnStart bool
}

// Scheduler triggers reconciliation passes on a fixed cadence. Ticks never
// overlap: a slow pass delays the next tick, and missed slots are skipped.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks, invoking tick at each slot until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if s.opts.RunOnStart {
		s.fire(ctx, tick, s.now())
	}

	next := s.nextTick(s.now())
	for {
		if now := s.now(); next.Before(now) {
			skipped := int(now.Sub(next) / s.opts.Interval)
			next = s.nextTick(now)
			s.logger.Warn().Int("skipped", skipped+1).Time("next", next).Msg("pass overran its slot")
		}

		s.logger.Debug().Time("next", next).Msg("waiting for next tick")
		if err := sleep(ctx, next.Sub(s.now())); err != nil {
			return err
		}

		s.fire(ctx, tick, s.slotStart(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc, slot time.Time) {
	s.logger.Info().Time("slot", slot).Msg("executing scheduled tick")
	if err := tick(ctx, slot); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Time("slot", slot).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	slot := now.Truncate(s.opts.Interval)
	if !slot.After(now) {
		slot = slot.Add(s.opts.Interval)
	}
	return slot
}

func (s *Scheduler) slotStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
