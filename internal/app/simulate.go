package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/extract"
	"pricewatch/internal/service"
	"pricewatch/internal/tracking"
)

// SimulateOptions describe a synthetic item and the price "observed" for it.
type SimulateOptions struct {
	URL      string
	Title    string
	Mode     tracking.Mode
	Value    decimal.Decimal
	Initial  decimal.Decimal
	Observed decimal.Decimal
}

// SimulateAlert runs one synthetic item through evaluation and the configured
// channels without touching the store or a browser.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	defer closeNotifier()

	item, err := tracking.NewItem(opts.URL, opts.Title, opts.Mode, opts.Value, opts.Initial, time.Now().UTC())
	if err != nil {
		return err
	}

	ex := &staticExtractor{res: extract.Result{Title: opts.Title, Price: opts.Observed}}
	svc := service.New(service.Options{MaxSessions: 1}, nil, nil, ex, notifier, a.Logger)

	updated, err := svc.Reconcile(ctx, []tracking.Item{item})
	if err != nil {
		return err
	}
	if !updated[0].LastNotifiedPrice.Valid {
		a.Logger.Warn().
			Str("observed", opts.Observed.String()).
			Str("desired", item.DesiredPrice.String()).
			Msg("observed price is above the target; nothing sent")
	}
	return nil
}

type staticExtractor struct {
	res extract.Result
}

func (s *staticExtractor) Extract(context.Context, string) (extract.Result, error) {
	return s.res, nil
}

var _ service.Extractor = (*staticExtractor)(nil)
