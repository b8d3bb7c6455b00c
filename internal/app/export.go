package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"pricewatch/internal/tracking"
)

// ExportOptions hold output paths for a snapshot of the collection.
type ExportOptions struct {
	CSVPath string
	PNGPath string
	// OnTargetOnly keeps items whose current price is at or below the desired price.
	OnTargetOnly bool
}

// Export writes the current collection as CSV and/or a PNG bar chart of each
// item's price relative to its target.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	items, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if opts.OnTargetOnly {
		items = onTarget(items)
	}
	if len(items) == 0 {
		a.Logger.Info().Msg("no items to export")
		return nil
	}
	a.Logger.Info().Int("items", len(items)).Msg("exporting snapshot")

	if opts.CSVPath != "" {
		if err := writeItemsCSV(opts.CSVPath, items); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeItemsPNG(opts.PNGPath, items, a.Config.Export.ChartWidth, a.Config.Export.ChartHeight); err != nil {
			return err
		}
	}
	return nil
}

func onTarget(items []tracking.Item) []tracking.Item {
	out := items[:0:0]
	for _, it := range items {
		if it.CurrentPrice.IsPositive() && it.CurrentPrice.LessThanOrEqual(it.DesiredPrice) {
			out = append(out, it)
		}
	}
	return out
}

// pctOfTarget is current/desired*100; at or below 100 means the target is met.
func pctOfTarget(it tracking.Item) decimal.Decimal {
	if !it.DesiredPrice.IsPositive() {
		return decimal.Zero
	}
	return it.CurrentPrice.Div(it.DesiredPrice).Mul(decimal.NewFromInt(100))
}

func writeItemsCSV(path string, items []tracking.Item) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"id", "title", "url", "tracking_type", "desired_value", "desired_price", "initial_price", "current_price", "last_notified_price", "last_checked", "pct_of_target"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, it := range items {
		notified := ""
		if it.LastNotifiedPrice.Valid {
			notified = it.LastNotifiedPrice.Decimal.String()
		}
		record := []string{
			it.ID,
			it.Title,
			it.URL,
			string(it.Mode),
			it.DesiredValue.String(),
			it.DesiredPrice.String(),
			it.InitialPrice.String(),
			it.CurrentPrice.String(),
			notified,
			it.LastChecked.UTC().Format(time.RFC3339),
			pctOfTarget(it).StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeItemsPNG(path string, items []tracking.Item, width, height int) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 480
	}

	bars := make([]chart.Value, 0, len(items))
	top := 100.0
	for _, it := range items {
		v := pctOfTarget(it).InexactFloat64()
		if v > top {
			top = v
		}
		bars = append(bars, chart.Value{Label: truncate(it.Label(), 18), Value: v})
	}

	bw := barWidth(width, len(bars))
	graph := chart.BarChart{
		Title:  "Current price as % of target",
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		BarWidth:   bw,
		BarSpacing: bw,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f%%")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func barWidth(width, n int) int {
	if n == 0 {
		return 40
	}
	w := (width - 120) / (n * 2)
	switch {
	case w < 8:
		return 8
	case w > 80:
		return 80
	}
	return w
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
