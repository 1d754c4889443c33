// Package kpi derives the month forecast figures of one currency.
package kpi

import (
	"mutaba/internal/aggregate"
	"mutaba/internal/core"
)

// Input is everything needed for one currency's forecast.
type Input struct {
	Currency core.Currency
	Month    core.YearMonth
	Events   []core.MoneyEvent
	Opening  int64
	Today    core.Date

	IncludeReceivables bool
	IncludeProjections bool
}

// Calculate computes the KPI bundle of in.Currency over in.Month.
//
// Events of other currencies or months are ignored. The bundle always satisfies
// WillMakeIt == CashOnHand + Coming - Leaking.
func Calculate(in Input) core.KpiBundle {
	events := aggregate.Filter(in.Events, aggregate.FilterOptions{
		Range:    in.Month.Range(),
		Currency: in.Currency,
	})

	k := core.KpiBundle{Currency: in.Currency, CashOnHandMinor: in.Opening}
	for _, e := range events {
		past := !e.Date().After(in.Today)
		switch e.Direction {
		case core.Inflow:
			switch {
			case e.State == core.StatePaid && past:
				k.CashOnHandMinor += e.AmountMinor
			case e.State.Pending() && in.counts(e):
				k.ComingMinor += e.AmountMinor
			}
		case core.Outflow:
			switch {
			case e.State == core.StatePaid && past:
				k.CashOnHandMinor -= e.AmountMinor
			case e.State == core.StateCancelled:
			case (e.State == core.StateUpcoming || !past) && in.counts(e):
				k.LeakingMinor += e.AmountMinor
			}
		}
	}

	k.NetForecastMinor = k.ComingMinor - k.LeakingMinor
	k.WillMakeItMinor = k.CashOnHandMinor + k.NetForecastMinor
	return k
}

// counts applies the receivable and projection toggles to an event's source.
func (in Input) counts(e core.MoneyEvent) bool {
	switch e.Source {
	case core.SourceReceivable, core.SourceActualIncome:
		return in.IncludeReceivables
	case core.SourceRetainer, core.SourceProjectedExpense:
		return in.IncludeProjections
	}
	return true
}

// ForFilters computes one bundle per currency. When filters name a currency
// only that one is computed.
func ForFilters(events []core.MoneyEvent, filters core.Filters, opening aggregate.Opening, currencies []core.Currency, today core.Date) map[core.Currency]core.KpiBundle {
	if filters.Currency != "" {
		currencies = []core.Currency{filters.Currency}
	}
	out := make(map[core.Currency]core.KpiBundle, len(currencies))
	for _, cur := range currencies {
		out[cur] = Calculate(Input{
			Currency:           cur,
			Month:              filters.Month,
			Events:             events,
			Opening:            opening[cur],
			Today:              today,
			IncludeReceivables: filters.IncludeReceivables,
			IncludeProjections: filters.IncludeProjections,
		})
	}
	return out
}
