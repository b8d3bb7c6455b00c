package alerting

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"pricewatch/internal/tracking"
)

// DefaultCurrency is used when no symbol is configured.
const DefaultCurrency = "₹"

func currencyOrDefault(s string) string {
	if s == "" {
		return DefaultCurrency
	}
	return s
}

// FormatPrice renders a price with two decimals.
func FormatPrice(currency string, p decimal.Decimal) string {
	return currency + p.StringFixed(2)
}

// RenderMessage builds the Telegram HTML body. Percentage items state the
// discount threshold, fixed items state the target price.
func RenderMessage(note Notification, currency string) string {
	currency = currencyOrDefault(currency)
	item := note.Item
	title := html.EscapeString(item.Label())
	price := html.EscapeString(FormatPrice(currency, note.Price))

	var b strings.Builder
	b.WriteString("<b>Price Drop!</b>\n\n")
	switch item.Mode {
	case tracking.ModePercentage:
		fmt.Fprintf(&b, "<b>%s</b> dropped by <b>%s%%</b> or more!\n\n", title, item.DesiredValue.String())
		fmt.Fprintf(&b, "New Price: <b>%s</b>\n", price)
	default:
		fmt.Fprintf(&b, "<b>%s</b> is now <b>%s</b> (Desired: %s).\n\n",
			title, price, html.EscapeString(FormatPrice(currency, item.DesiredPrice)))
	}
	fmt.Fprintf(&b, "<a href=\"%s\">Click here to buy!</a>", html.EscapeString(item.URL))
	return b.String()
}
