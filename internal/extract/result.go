package extract

import "github.com/shopspring/decimal"

// Result is a successful extraction. Price is always strictly positive and
// Title is never empty.
type Result struct {
	Title string
	Price decimal.Decimal
}
