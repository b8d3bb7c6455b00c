package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/alerting"
	"pricewatch/internal/tracking"
)

// List prints the tracked items.
func (a *App) List(ctx context.Context, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	items, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "no items tracked")
		return nil
	}

	currency := a.Config.Alerting.CurrencySymbol
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTitle\tMode\tTarget\tInitial\tCurrent\tNotified\tChecked (UTC)")
	for _, it := range items {
		notified := "-"
		if it.LastNotifiedPrice.Valid {
			notified = alerting.FormatPrice(currency, it.LastNotifiedPrice.Decimal)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ID,
			truncate(sanitizeInline(it.Label()), 48),
			describeTarget(it),
			alerting.FormatPrice(currency, it.DesiredPrice),
			alerting.FormatPrice(currency, it.InitialPrice),
			alerting.FormatPrice(currency, it.CurrentPrice),
			notified,
			it.LastChecked.UTC().Format(time.RFC3339),
		)
	}
	return writer.Flush()
}

// Track seeds and stores a new item.
func (a *App) Track(ctx context.Context, url string, mode tracking.Mode, value decimal.Decimal, out io.Writer) error {
	svc, closeAll, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeAll()

	item, err := svc.Track(ctx, url, mode, value)
	if err != nil {
		return err
	}
	currency := a.Config.Alerting.CurrencySymbol
	fmt.Fprintf(out, "tracking %s (%s)\n  current %s, alert at or below %s\n",
		item.ID, item.Label(),
		alerting.FormatPrice(currency, item.CurrentPrice),
		alerting.FormatPrice(currency, item.DesiredPrice))
	return nil
}

// Retarget edits an item's target.
func (a *App) Retarget(ctx context.Context, id string, mode tracking.Mode, value decimal.Decimal, out io.Writer) error {
	svc, closeAll, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeAll()

	item, err := svc.Retarget(ctx, id, mode, value)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s now alerts at or below %s (%s)\n", item.ID,
		alerting.FormatPrice(a.Config.Alerting.CurrencySymbol, item.DesiredPrice), describeTarget(item))
	return nil
}

// Remove deletes an item.
func (a *App) Remove(ctx context.Context, id string, out io.Writer) error {
	svc, closeAll, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeAll()

	item, err := svc.Remove(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "removed %s (%s)\n", item.ID, item.Label())
	return nil
}

// Extract scrapes one URL and prints the result without storing anything.
func (a *App) Extract(ctx context.Context, url string, out io.Writer) error {
	res, err := a.newExtractor().Extract(ctx, url)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "title: %s\nprice: %s\n", res.Title,
		alerting.FormatPrice(a.Config.Alerting.CurrencySymbol, res.Price))
	return nil
}

// Sites prints the hosts the extractor understands.
func (a *App) Sites(out io.Writer) {
	for _, name := range a.newRegistry().Sites() {
		fmt.Fprintln(out, name)
	}
}

func describeTarget(it tracking.Item) string {
	if it.Mode == tracking.ModePercentage {
		return it.DesiredValue.String() + "% off"
	}
	return "fixed"
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
