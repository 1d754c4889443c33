package core

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
)

const (
	USD Currency = "USD"
	ILS Currency = "ILS"
	EUR Currency = "EUR"
)

// Currency is an ISO 4217 code from the closed set the books are kept in.
type Currency string

// SupportedCurrencies lists the currencies the books can hold, in display order.
var SupportedCurrencies = []Currency{USD, ILS, EUR}

// Valid reports whether c belongs to the supported set.
func (c Currency) Valid() bool {
	for _, s := range SupportedCurrencies {
		if c == s {
			return true
		}
	}
	return false
}

// ParseCurrency normalizes and validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
	}
	return c, nil
}

// ParseCurrencies parses a comma separated list, skipping blanks and duplicates.
func ParseCurrencies(s string) ([]Currency, error) {
	var out []Currency
	seen := map[Currency]struct{}{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseCurrency(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Fraction returns the number of minor-unit digits of the currency.
func (c Currency) Fraction() int {
	if cur := money.GetCurrency(string(c)); cur != nil {
		return cur.Fraction
	}
	return 2
}

// Format renders an amount in minor units for display, e.g. "$12.34".
func (c Currency) Format(amountMinor int64) string {
	return money.New(amountMinor, string(c)).Display()
}

func (c Currency) String() string { return string(c) }
