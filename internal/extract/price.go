package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var errEmptyPrice = errors.New("price text has no digits")

// ParsePrice strips every character that is not a digit or a decimal point and parses
// the remainder. "₹1,24,999.00" becomes 124999. Zero is returned as a valid value;
// rejecting it is the caller's decision.
func ParsePrice(text string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, text)

	// Amazon's a-price-whole renders "1,299." with a trailing separator.
	cleaned = strings.TrimRight(cleaned, ".")
	if cleaned == "" {
		return decimal.Decimal{}, errEmptyPrice
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", cleaned, err)
	}
	return price, nil
}
