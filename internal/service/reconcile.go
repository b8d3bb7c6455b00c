package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pricewatch/internal/alerting"
	"pricewatch/internal/extract"
	"pricewatch/internal/tracking"
)

// Summary counts what a pass did.
type Summary struct {
	Checked        int
	Updated        int
	Failed         int
	Notified       int
	DeliveryFailed int
	Elapsed        time.Duration
}

type outcome struct {
	eval          tracking.Evaluation
	failed        bool
	deliveryError bool
}

func (s *Service) reconcile(ctx context.Context, items []tracking.Item) ([]tracking.Item, Summary, error) {
	results := make([]outcome, len(items))
	cooling := s.coolingDown(items)

	var g errgroup.Group
	g.SetLimit(s.maxSessions)
	for i := range items {
		i := i
		g.Go(func() error {
			if cooling[i] {
				results[i] = s.skipItem(items[i])
				return nil
			}
			results[i] = s.checkItem(ctx, items[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, Summary{}, fmt.Errorf("pass cancelled: %w", err)
	}

	summary := Summary{Checked: len(items)}
	updated := make([]tracking.Item, len(items))
	for i, r := range results {
		updated[i] = r.eval.Item
		switch {
		case r.failed:
			summary.Failed++
		case !r.eval.Item.CurrentPrice.Equal(items[i].CurrentPrice):
			summary.Updated++
		}
		if r.eval.Notify {
			summary.Notified++
		}
		if r.deliveryError {
			summary.DeliveryFailed++
		}
	}
	return updated, summary, nil
}

// coolingDown is read once before the fan-out. Cool-downs started during the
// pass only take effect on the next one.
func (s *Service) coolingDown(items []tracking.Item) []bool {
	out := make([]bool, len(items))
	gate, ok := s.extractor.(HostGate)
	if !ok {
		return out
	}
	for i, it := range items {
		out[i] = gate.CoolingDown(it.URL)
	}
	return out
}

func (s *Service) skipItem(item tracking.Item) outcome {
	s.logger.Warn().Str("id", item.ID).Str("url", item.URL).
		Str("kind", string(extract.KindNavigation)).
		Msg("host is cooling down after a failure in an earlier pass; skipped")
	return outcome{eval: tracking.Evaluate(item, nil, s.now()), failed: true}
}

// checkItem runs extract, evaluate, and notify for one item. It never fails:
// any problem degrades to "price not updated this round".
func (s *Service) checkItem(ctx context.Context, item tracking.Item) (out outcome) {
	log := s.logger.With().Str("id", item.ID).Str("url", item.URL).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("item check panicked")
			out = outcome{eval: tracking.Evaluate(item, nil, s.now()), failed: true}
		}
	}()

	res, err := s.extractor.Extract(ctx, item.URL)
	now := s.now()
	if err != nil {
		logExtractError(log, err)
		return outcome{eval: tracking.Evaluate(item, nil, now), failed: true}
	}

	ev := tracking.Evaluate(item, &res, now)
	log.Debug().
		Str("price", res.Price.String()).
		Str("desired", ev.Item.DesiredPrice.String()).
		Bool("notify", ev.Notify).
		Msg("item checked")

	out = outcome{eval: ev}
	if ev.Notify && s.notifier != nil {
		note := alerting.Notification{Item: ev.Item, Price: res.Price, CheckedAt: now}
		if err := s.notifier.Notify(ctx, note); err != nil {
			log.Error().Err(err).Msg("failed to dispatch alert")
			out.deliveryError = true
		} else {
			log.Info().Str("price", res.Price.String()).Msg("price drop notified")
		}
	}
	return out
}

func logExtractError(log zerolog.Logger, err error) {
	var xerr *extract.Error
	if !errors.As(err, &xerr) {
		log.Warn().Err(err).Msg("extraction failed")
		return
	}
	ev := log.Warn().Str("kind", string(xerr.Kind)).Str("site", xerr.Site)
	if xerr.Selector != "" {
		ev = ev.Str("selector", xerr.Selector)
	}
	ev.Err(err).Msg("extraction failed")
}

var _ HostGate = (*extract.Extractor)(nil)
