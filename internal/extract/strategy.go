package extract

import (
	"strings"
	"time"
)

// Interaction is an optional pre-extraction step such as closing a login dialog.
type Interaction struct {
	Selector string
	Wait     time.Duration
}

// Strategy describes how to pull title and price from one retailer's pages.
// Selector lists are ordered; the first selector yielding non-empty text wins.
type Strategy struct {
	Name           string
	HostContains   string
	TitleSelectors []string
	PriceSelectors []string
	// Dismiss is attempted before extraction; its absence on the page is not an error.
	Dismiss *Interaction
	// Ready, when set, must appear within its wait or the page is a mismatch.
	Ready *Interaction
}

// Matches reports whether the strategy applies to host.
func (s Strategy) Matches(host string) bool {
	needle := strings.ToLower(strings.TrimSpace(s.HostContains))
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(host), needle)
}

// Amazon covers every regional amazon storefront.
var Amazon = Strategy{
	Name:           "amazon",
	HostContains:   "amazon",
	TitleSelectors: []string{"#productTitle"},
	PriceSelectors: []string{
		"span.a-price-whole",
		".a-price.a-text-price .a-offscreen",
		".a-price .a-offscreen",
	},
	Ready: &Interaction{Selector: "#productTitle", Wait: 15 * time.Second},
}

// Flipkart pages open a login overlay on first visit.
var Flipkart = Strategy{
	Name:           "flipkart",
	HostContains:   "flipkart",
	TitleSelectors: []string{"span.B_NuCI", "span.VU-ZEz", ".yhB1nd"},
	PriceSelectors: []string{
		"div.Nx9bqj",
		"div._30jeq3._16Jk6d",
		"div._30jeq3",
		".C-Vz-I ._16Jk6d",
	},
	Dismiss: &Interaction{Selector: "button._2KpZ6l._2doB4z", Wait: 5 * time.Second},
}

// Registry maps hosts to strategies. Rows are checked in order.
type Registry struct {
	strategies []Strategy
}

// NewRegistry builds a registry from explicit rows.
func NewRegistry(strategies ...Strategy) *Registry {
	rows := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s.HostContains == "" {
			continue
		}
		rows = append(rows, s)
	}
	return &Registry{strategies: rows}
}

// DefaultRegistry returns the built-in retailer table, preceded by any extra rows.
func DefaultRegistry(extra ...Strategy) *Registry {
	rows := append([]Strategy{}, extra...)
	rows = append(rows, Amazon, Flipkart)
	return NewRegistry(rows...)
}

// Resolve returns the first strategy whose host predicate matches. There is no
// generic fallback: unknown hosts are unsupported.
func (r *Registry) Resolve(host string) (Strategy, bool) {
	for _, s := range r.strategies {
		if s.Matches(host) {
			return s, true
		}
	}
	return Strategy{}, false
}

// Sites lists the registered strategy names in lookup order.
func (r *Registry) Sites() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name)
	}
	return names
}
