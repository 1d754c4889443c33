package fx

import (
	"math"

	"github.com/shopspring/decimal"

	"mutaba/internal/core"
)

// Rates maps a source currency to its rate into a single target currency.
type Rates map[core.Currency]float64

// Convert converts an amount in minor units with a pre-fetched rate.
// Identity when from == to; otherwise round(amount × rate), half away from zero.
// The rate must be strictly positive.
func Convert(amountMinor int64, from, to core.Currency, rate float64) int64 {
	if from == to {
		return amountMinor
	}
	return decimal.NewFromInt(amountMinor).
		Mul(decimal.NewFromFloat(rate)).
		Round(0).
		IntPart()
}

// Unify sums per-currency amounts into target.
//
// It is all-or-nothing: if any currency with a non-zero amount lacks a usable
// rate, the result is not ok and no partial sum is produced.
func Unify(amounts map[core.Currency]int64, target core.Currency, rates Rates) (int64, bool) {
	var total int64
	for cur, amount := range amounts {
		if amount == 0 {
			continue
		}
		if cur == target {
			total += amount
			continue
		}
		rate, ok := rates[cur]
		if !ok || !(rate > 0) || math.IsInf(rate, 0) {
			return 0, false
		}
		total += Convert(amount, cur, target, rate)
	}
	return total, true
}

// RatesFrom keeps the usable rates of results, keyed by their base currency.
func RatesFrom(results []RateResult) Rates {
	rates := Rates{}
	for _, r := range results {
		if rate, ok := UsableRate(r); ok {
			base, _ := r.Pair()
			rates[base] = rate
		}
	}
	return rates
}
