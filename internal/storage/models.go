package storage

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/tracking"
)

// decodeItems accepts an empty document as an empty collection.
func decodeItems(data []byte) ([]tracking.Item, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []tracking.Item{}, nil
	}
	var items []tracking.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return nonNil(items), nil
}

func nonNil(items []tracking.Item) []tracking.Item {
	if items == nil {
		return []tracking.Item{}
	}
	return items
}

// itemRow is the column layout shared by the SQL stores. Prices travel as text
// so no precision is lost in either driver.
type itemRow struct {
	ID                string
	Position          int
	URL               string
	Title             string
	Mode              string
	DesiredValue      string
	DesiredPrice      string
	InitialPrice      string
	CurrentPrice      string
	LastNotifiedPrice sql.NullString
	LastChecked       time.Time
}

func toRow(pos int, it tracking.Item) itemRow {
	row := itemRow{
		ID:           it.ID,
		Position:     pos,
		URL:          it.URL,
		Title:        it.Title,
		Mode:         string(it.Mode),
		DesiredValue: it.DesiredValue.String(),
		DesiredPrice: it.DesiredPrice.String(),
		InitialPrice: it.InitialPrice.String(),
		CurrentPrice: it.CurrentPrice.String(),
		LastChecked:  it.LastChecked.UTC(),
	}
	if it.LastNotifiedPrice.Valid {
		row.LastNotifiedPrice = sql.NullString{String: it.LastNotifiedPrice.Decimal.String(), Valid: true}
	}
	return row
}

func (r itemRow) item() (tracking.Item, error) {
	it := tracking.Item{
		ID:          r.ID,
		URL:         r.URL,
		Title:       r.Title,
		Mode:        tracking.Mode(r.Mode),
		LastChecked: r.LastChecked,
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"desired_value", r.DesiredValue, &it.DesiredValue},
		{"desired_price", r.DesiredPrice, &it.DesiredPrice},
		{"initial_price", r.InitialPrice, &it.InitialPrice},
		{"current_price", r.CurrentPrice, &it.CurrentPrice},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return tracking.Item{}, fmt.Errorf("item %s: parse %s: %w", r.ID, f.name, err)
		}
		*f.dst = v
	}

	if r.LastNotifiedPrice.Valid {
		v, err := decimal.NewFromString(r.LastNotifiedPrice.String)
		if err != nil {
			return tracking.Item{}, fmt.Errorf("item %s: parse last_notified_price: %w", r.ID, err)
		}
		it.LastNotifiedPrice = decimal.NewNullDecimal(v)
	}
	return it, nil
}
