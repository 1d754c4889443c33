package aggregate

import (
	"sort"

	"mutaba/internal/core"
)

// Opening holds the balance of each currency before the first day of a range.
type Opening map[core.Currency]int64

// Daily builds one bucket per calendar day of r, empty days included, and
// carries a running balance per currency from opening.
//
// Inflow counts paid income only; outflow counts every outflow that was not
// cancelled. Each day lists every currency that appears in opening or in the
// events, so balances can be read off any day. An open range yields nil.
func Daily(events []core.MoneyEvent, opening Opening, r core.DateRange) []core.DailyAggregate {
	days := r.Days()
	if len(days) == 0 {
		return nil
	}

	currencies := map[core.Currency]struct{}{}
	for cur := range opening {
		if cur.Valid() {
			currencies[cur] = struct{}{}
		}
	}

	byDay := make(map[string][]core.MoneyEvent)
	for _, e := range Filter(events, FilterOptions{Range: r}) {
		if !e.Currency.Valid() {
			continue
		}
		currencies[e.Currency] = struct{}{}
		key := e.Date().String()
		byDay[key] = append(byDay[key], e)
	}

	balance := make(map[core.Currency]int64, len(currencies))
	for cur := range currencies {
		balance[cur] = opening[cur]
	}

	out := make([]core.DailyAggregate, 0, len(days))
	for _, d := range days {
		dayEvents := byDay[d.String()]
		sort.SliceStable(dayEvents, func(i, j int) bool {
			return dayEvents[i].OccurredAt.Before(dayEvents[j].OccurredAt)
		})

		flows := make(map[core.Currency]core.DayFlow, len(currencies))
		for cur := range currencies {
			flows[cur] = core.DayFlow{}
		}
		confidence := core.ConfidenceHigh
		for _, e := range dayEvents {
			f := flows[e.Currency]
			switch {
			case e.IsPaidIncome():
				f.InflowMinor += e.AmountMinor
			case e.Direction == core.Outflow && e.State != core.StateCancelled:
				f.OutflowMinor += e.AmountMinor
			}
			flows[e.Currency] = f
			confidence = confidence.Lower(e.Confidence)
		}
		for cur, f := range flows {
			f.NetMinor = f.InflowMinor - f.OutflowMinor
			balance[cur] += f.NetMinor
			f.RunningBalanceMinor = balance[cur]
			flows[cur] = f
		}

		out = append(out, core.DailyAggregate{
			Date:       d,
			Currencies: flows,
			Events:     dayEvents,
			Confidence: confidence,
		})
	}
	return out
}

// Month folds the days of month into a summary. Days outside month are ignored.
func Month(month core.YearMonth, days []core.DailyAggregate) core.MonthSummary {
	s := core.MonthSummary{Month: month, Currencies: map[core.Currency]core.PeriodTotals{}}
	for _, day := range days {
		if day.Date.YearMonth() != month {
			continue
		}
		for cur, f := range day.Currencies {
			t := s.Currencies[cur]
			t.TotalInflowMinor += f.InflowMinor
			t.TotalOutflowMinor += f.OutflowMinor
			t.ClosingBalanceMinor = f.RunningBalanceMinor
			s.Currencies[cur] = t
		}
		for _, e := range day.Events {
			t := s.Currencies[e.Currency]
			switch {
			case e.Direction == core.Inflow && e.State.Pending():
				t.AwaitingMinor += e.AmountMinor
			case e.Direction == core.Outflow && e.State == core.StateUpcoming:
				t.ProjectedOutflowMinor += e.AmountMinor
			}
			s.Currencies[e.Currency] = t
		}
	}
	for cur, t := range s.Currencies {
		t.NetMinor = t.TotalInflowMinor - t.TotalOutflowMinor
		s.Currencies[cur] = t
	}
	return s
}

// MonthReport is the daily view of one month and its summary.
func MonthReport(events []core.MoneyEvent, opening Opening, month core.YearMonth) ([]core.DailyAggregate, core.MonthSummary) {
	days := Daily(events, opening, month.Range())
	return days, Month(month, days)
}

// Year summarizes twelve months, January first. Months without events are
// present with zero values.
func Year(year int, events []core.MoneyEvent, opening Opening) core.YearSummary {
	days := Daily(events, opening, core.YearRange(year))

	ys := core.YearSummary{
		Year:       year,
		Months:     make([]core.MonthSummary, 0, 12),
		Currencies: map[core.Currency]core.YearTotals{},
	}
	awaiting := map[core.Currency]int64{}
	bestNet := map[core.Currency]int64{}
	worstNet := map[core.Currency]int64{}

	for _, month := range core.MonthsOf(year) {
		ms := Month(month, days)
		ys.Months = append(ys.Months, ms)

		for cur, t := range ms.Currencies {
			yt := ys.Currencies[cur]
			yt.TotalInflowMinor += t.TotalInflowMinor
			yt.TotalOutflowMinor += t.TotalOutflowMinor
			awaiting[cur] += t.AwaitingMinor

			if t.TotalInflowMinor > 0 || t.TotalOutflowMinor > 0 {
				m := month
				if yt.BestMonth == nil || t.NetMinor > bestNet[cur] {
					yt.BestMonth, bestNet[cur] = &m, t.NetMinor
				}
				if yt.WorstMonth == nil || t.NetMinor < worstNet[cur] {
					yt.WorstMonth, worstNet[cur] = &m, t.NetMinor
				}
			}
			ys.Currencies[cur] = yt
		}
	}

	stability := retainerStability(Filter(events, FilterOptions{Range: core.YearRange(year)}))
	for cur, yt := range ys.Currencies {
		yt.NetMinor = yt.TotalInflowMinor - yt.TotalOutflowMinor
		yt.AvgAwaitingMinor = roundDiv(awaiting[cur], 12)
		yt.RetainerStabilityPercent = stability[cur]
		ys.Currencies[cur] = yt
	}
	return ys
}

// retainerStability is the share of non-cancelled retainer events that were paid, per currency.
func retainerStability(events []core.MoneyEvent) map[core.Currency]int {
	expected := map[core.Currency]int64{}
	received := map[core.Currency]int64{}
	for _, e := range events {
		if e.Source != core.SourceRetainer || e.State == core.StateCancelled {
			continue
		}
		expected[e.Currency]++
		if e.State == core.StatePaid {
			received[e.Currency]++
		}
	}
	out := make(map[core.Currency]int, len(expected))
	for cur, n := range expected {
		out[cur] = int(roundDiv(received[cur]*100, n))
	}
	return out
}

// roundDiv divides rounding half away from zero.
func roundDiv(n, d int64) int64 {
	if d == 0 {
		return 0
	}
	q, r := n/d, n%d
	if r < 0 {
		r = -r
	}
	if 2*r >= abs(d) {
		if (n < 0) != (d < 0) {
			q--
		} else {
			q++
		}
	}
	return q
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
