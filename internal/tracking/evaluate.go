package tracking

import (
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/extract"
)

// Evaluation is the outcome of applying one observation to an item.
type Evaluation struct {
	Item   Item
	Notify bool
}

// Evaluate applies res to item. A nil res means the extraction failed: prices
// are kept and only LastChecked advances. The input item is not modified.
func Evaluate(item Item, res *extract.Result, now time.Time) Evaluation {
	next := item
	if next.Mode == ModePercentage {
		next.DesiredPrice = next.Derive()
	}
	next.LastChecked = now

	if res == nil {
		return Evaluation{Item: next}
	}

	if next.Title == "" {
		next.Title = res.Title
	}
	price := res.Price
	next.CurrentPrice = price

	if price.GreaterThan(next.DesiredPrice) {
		return Evaluation{Item: next}
	}

	if next.LastNotifiedPrice.Valid && !next.LastNotifiedPrice.Decimal.GreaterThan(price) {
		return Evaluation{Item: next}
	}
	next.LastNotifiedPrice = decimal.NewNullDecimal(price)
	return Evaluation{Item: next, Notify: true}
}
