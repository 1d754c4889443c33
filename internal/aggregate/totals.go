// Package aggregate folds money events into totals and calendar rollups.
//
// Nothing here returns an error: events with an unknown currency or a
// soft-delete marker are skipped so one bad record cannot block a report.
package aggregate

import (
	"time"

	"mutaba/internal/core"
)

// Totals splits single-currency events into paid income, unpaid income and expenses.
func Totals(events []core.MoneyEvent) core.Totals {
	var t core.Totals
	for _, e := range events {
		if e.Deleted() {
			continue
		}
		addTo(&t, e)
	}
	return t
}

func addTo(t *core.Totals, e core.MoneyEvent) {
	switch {
	case e.IsPaidIncome():
		t.PaidIncomeMinor += e.AmountMinor
	case e.Direction == core.Inflow:
		t.UnpaidIncomeMinor += e.AmountMinor
	default:
		t.ExpensesMinor += e.AmountMinor
	}
}

// TotalsByCurrency is Totals bucketed by currency. Amounts of different
// currencies never meet.
func TotalsByCurrency(events []core.MoneyEvent) map[core.Currency]core.Totals {
	out := make(map[core.Currency]core.Totals)
	for _, e := range events {
		if e.Deleted() || !e.Currency.Valid() {
			continue
		}
		t := out[e.Currency]
		addTo(&t, e)
		out[e.Currency] = t
	}
	return out
}

type ActivityOptions struct {
	TrackPayments bool
}

// TotalsWithActivity adds the latest occurredAt and, when tracking payments,
// the latest paidAt among paid income.
func TotalsWithActivity(events []core.MoneyEvent, opts ActivityOptions) core.TotalsWithActivity {
	var (
		out          core.TotalsWithActivity
		lastActivity time.Time
		lastPayment  time.Time
	)
	for _, e := range events {
		if e.Deleted() {
			continue
		}
		addTo(&out.Totals, e)
		if e.OccurredAt.After(lastActivity) {
			lastActivity = e.OccurredAt
		}
		if opts.TrackPayments && e.IsPaidIncome() && e.PaidAt != nil && e.PaidAt.After(lastPayment) {
			lastPayment = *e.PaidAt
		}
	}
	if !lastActivity.IsZero() {
		out.LastActivityAt = &lastActivity
	}
	if !lastPayment.IsZero() {
		out.LastPaymentAt = &lastPayment
	}
	return out
}

// ActivityByCurrency is TotalsWithActivity bucketed by currency.
func ActivityByCurrency(events []core.MoneyEvent, opts ActivityOptions) map[core.Currency]core.TotalsWithActivity {
	groups := make(map[core.Currency][]core.MoneyEvent)
	for _, e := range events {
		if e.Deleted() || !e.Currency.Valid() {
			continue
		}
		groups[e.Currency] = append(groups[e.Currency], e)
	}
	out := make(map[core.Currency]core.TotalsWithActivity, len(groups))
	for cur, group := range groups {
		out[cur] = TotalsWithActivity(group, opts)
	}
	return out
}

// FilterOptions narrows a batch of events. Zero values match everything.
type FilterOptions struct {
	Range    core.DateRange
	Currency core.Currency
}

// Filter drops soft-deleted events and keeps those inside the range and currency.
// The range end covers its whole calendar day.
func Filter(events []core.MoneyEvent, opts FilterOptions) []core.MoneyEvent {
	out := make([]core.MoneyEvent, 0, len(events))
	for _, e := range events {
		if e.Deleted() {
			continue
		}
		if opts.Currency != "" && e.Currency != opts.Currency {
			continue
		}
		if !opts.Range.Contains(e.OccurredAt) {
			continue
		}
		out = append(out, e)
	}
	return out
}
