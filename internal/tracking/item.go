// Package tracking holds the tracked product record and the pure price rules
// applied to it on every pass.
package tracking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Stored collections carry prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	// ErrItemNotFound is returned when an id does not match any tracked item.
	ErrItemNotFound = errors.New("tracked item not found")
	// ErrInvalidTarget is returned for a mode/value pair that cannot produce a target.
	ErrInvalidTarget = errors.New("invalid target")
)

// Mode selects how DesiredValue is interpreted.
type Mode string

const (
	// ModeFixed treats DesiredValue as an absolute target price.
	ModeFixed Mode = "fixed"
	// ModePercentage treats DesiredValue as a discount off InitialPrice.
	ModePercentage Mode = "percentage"
)

// ParseMode accepts the stored names plus a couple of CLI-friendly aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed", "price":
		return ModeFixed, nil
	case "percentage", "percent", "pct", "%":
		return ModePercentage, nil
	default:
		return "", fmt.Errorf("%w: unknown tracking mode %q", ErrInvalidTarget, s)
	}
}

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Item is one tracked product.
type Item struct {
	ID                string              `json:"id"`
	URL               string              `json:"url"`
	Title             string              `json:"title"`
	Mode              Mode                `json:"trackingType"`
	DesiredValue      decimal.Decimal     `json:"desiredValue"`
	DesiredPrice      decimal.Decimal     `json:"desiredPrice"`
	InitialPrice      decimal.Decimal     `json:"initialPrice"`
	CurrentPrice      decimal.Decimal     `json:"currentPrice"`
	LastNotifiedPrice decimal.NullDecimal `json:"lastNotifiedPrice"`
	LastChecked       time.Time           `json:"lastChecked"`
}

// NewItem builds an item from the seeding observation. The id is the creation
// time in unix milliseconds.
func NewItem(url, title string, mode Mode, value, price decimal.Decimal, now time.Time) (Item, error) {
	if err := ValidateTarget(mode, value); err != nil {
		return Item{}, err
	}
	if !price.IsPositive() {
		return Item{}, fmt.Errorf("%w: initial price must be positive, got %s", ErrInvalidTarget, price)
	}
	it := Item{
		ID:           strconv.FormatInt(now.UnixMilli(), 10),
		URL:          url,
		Title:        title,
		Mode:         mode,
		DesiredValue: value,
		InitialPrice: price,
		CurrentPrice: price,
		LastChecked:  now,
	}
	it.DesiredPrice = it.Derive()
	return it, nil
}

// ValidateTarget rejects values that would yield a non-positive target.
func ValidateTarget(mode Mode, value decimal.Decimal) error {
	switch mode {
	case ModeFixed:
		if !value.IsPositive() {
			return fmt.Errorf("%w: target price must be positive, got %s", ErrInvalidTarget, value)
		}
	case ModePercentage:
		if !value.IsPositive() || value.GreaterThanOrEqual(hundred) {
			return fmt.Errorf("%w: discount must be between 0 and 100, got %s", ErrInvalidTarget, value)
		}
	default:
		return fmt.Errorf("%w: unknown tracking mode %q", ErrInvalidTarget, mode)
	}
	return nil
}

// Derive computes the target price from mode, value and initial price.
func (it Item) Derive() decimal.Decimal {
	if it.Mode == ModePercentage {
		return it.InitialPrice.Mul(one.Sub(it.DesiredValue.Div(hundred)))
	}
	return it.DesiredValue
}

// SetTarget changes the mode and value and re-derives DesiredPrice. The
// notification floor is kept so an edit does not re-announce a known price.
func (it *Item) SetTarget(mode Mode, value decimal.Decimal) error {
	if err := ValidateTarget(mode, value); err != nil {
		return err
	}
	it.Mode = mode
	it.DesiredValue = value
	it.DesiredPrice = it.Derive()
	return nil
}

// Label returns the title, or the URL when no title has been seen yet.
func (it Item) Label() string {
	if it.Title != "" {
		return it.Title
	}
	return it.URL
}
