package aggregate

import (
	"testing"
	"time"

	"mutaba/internal/core"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ev(id string, dir core.Direction, amount int64, cur core.Currency, when string, state core.State, src core.Source) core.MoneyEvent {
	return core.MoneyEvent{
		ID:          id,
		Direction:   dir,
		AmountMinor: amount,
		Currency:    cur,
		OccurredAt:  at(when),
		State:       state,
		Source:      src,
		Title:       id,
	}
}

func TestTotals(t *testing.T) {
	deleted := at("2024-01-05T00:00:00Z")
	gone := ev("gone", core.Inflow, 999, core.USD, "2024-01-05T00:00:00Z", core.StatePaid, core.SourceActualIncome)
	gone.DeletedAt = &deleted

	events := []core.MoneyEvent{
		ev("a", core.Inflow, 1000, core.USD, "2024-01-01T10:00:00Z", core.StatePaid, core.SourceActualIncome),
		ev("b", core.Inflow, 500, core.USD, "2024-01-02T10:00:00Z", core.StateOverdue, core.SourceReceivable),
		ev("c", core.Outflow, 300, core.USD, "2024-01-03T10:00:00Z", core.StatePaid, core.SourceActualCost),
		ev("d", core.Outflow, 200, core.USD, "2024-01-04T10:00:00Z", core.StateUpcoming, core.SourceProjectedExpense),
		gone,
	}

	got := Totals(events)
	want := core.Totals{PaidIncomeMinor: 1000, UnpaidIncomeMinor: 500, ExpensesMinor: 500}
	if got != want {
		t.Errorf("Totals() = %+v, want %+v", got, want)
	}
}

func TestTotalsByCurrency(t *testing.T) {
	events := []core.MoneyEvent{
		ev("a", core.Inflow, 1000, core.USD, "2024-01-01T10:00:00Z", core.StatePaid, core.SourceActualIncome),
		ev("b", core.Inflow, 4000, core.ILS, "2024-01-01T10:00:00Z", core.StatePaid, core.SourceActualIncome),
		ev("c", core.Outflow, 70, core.ILS, "2024-01-01T10:00:00Z", core.StatePaid, core.SourceActualCost),
		ev("d", core.Inflow, 5, core.Currency("GBP"), "2024-01-01T10:00:00Z", core.StatePaid, core.SourceActualIncome),
	}

	got := TotalsByCurrency(events)
	if len(got) != 2 {
		t.Fatalf("got %d currencies, want 2: %v", len(got), got)
	}
	if got[core.USD].PaidIncomeMinor != 1000 {
		t.Errorf("USD paid = %d", got[core.USD].PaidIncomeMinor)
	}
	if got[core.ILS].PaidIncomeMinor != 4000 || got[core.ILS].ExpensesMinor != 70 {
		t.Errorf("ILS = %+v", got[core.ILS])
	}
}

func TestTotalsWithActivity(t *testing.T) {
	paidEarly := at("2024-01-03T09:00:00Z")
	paidLate := at("2024-01-20T09:00:00Z")

	a := ev("a", core.Inflow, 100, core.USD, "2024-01-02T00:00:00Z", core.StatePaid, core.SourceActualIncome)
	a.PaidAt = &paidLate
	b := ev("b", core.Inflow, 100, core.USD, "2024-01-25T00:00:00Z", core.StatePaid, core.SourceActualIncome)
	b.PaidAt = &paidEarly
	c := ev("c", core.Outflow, 100, core.USD, "2024-01-10T00:00:00Z", core.StatePaid, core.SourceActualCost)
	c.PaidAt = &paidLate

	got := TotalsWithActivity([]core.MoneyEvent{a, b, c}, ActivityOptions{TrackPayments: true})
	if got.LastActivityAt == nil || !got.LastActivityAt.Equal(at("2024-01-25T00:00:00Z")) {
		t.Errorf("LastActivityAt = %v", got.LastActivityAt)
	}
	if got.LastPaymentAt == nil || !got.LastPaymentAt.Equal(paidLate) {
		t.Errorf("LastPaymentAt = %v, want %v", got.LastPaymentAt, paidLate)
	}

	got = TotalsWithActivity([]core.MoneyEvent{a, b}, ActivityOptions{})
	if got.LastPaymentAt != nil {
		t.Errorf("LastPaymentAt set without tracking: %v", got.LastPaymentAt)
	}
	if empty := TotalsWithActivity(nil, ActivityOptions{TrackPayments: true}); empty.LastActivityAt != nil {
		t.Errorf("empty batch has activity %v", empty.LastActivityAt)
	}
}

func TestActivityByCurrency(t *testing.T) {
	paid := at("2024-01-12T08:00:00Z")
	usd := ev("a", core.Inflow, 1000, core.USD, "2024-01-10T00:00:00Z", core.StatePaid, core.SourceActualIncome)
	usd.PaidAt = &paid
	ils := ev("b", core.Outflow, 70, core.ILS, "2024-01-15T00:00:00Z", core.StatePaid, core.SourceActualCost)
	unknown := ev("c", core.Inflow, 5, core.Currency("GBP"), "2024-01-01T00:00:00Z", core.StatePaid, core.SourceActualIncome)

	got := ActivityByCurrency([]core.MoneyEvent{usd, ils, unknown}, ActivityOptions{TrackPayments: true})
	if len(got) != 2 {
		t.Fatalf("got %d currencies, want 2: %v", len(got), got)
	}
	if got[core.USD].PaidIncomeMinor != 1000 || got[core.USD].LastPaymentAt == nil || !got[core.USD].LastPaymentAt.Equal(paid) {
		t.Errorf("USD = %+v", got[core.USD])
	}
	if got[core.ILS].ExpensesMinor != 70 || got[core.ILS].LastPaymentAt != nil {
		t.Errorf("ILS = %+v", got[core.ILS])
	}
	if got[core.ILS].LastActivityAt == nil || !got[core.ILS].LastActivityAt.Equal(at("2024-01-15T00:00:00Z")) {
		t.Errorf("ILS LastActivityAt = %v", got[core.ILS].LastActivityAt)
	}
}

func TestFilter_InclusiveEndOfDay(t *testing.T) {
	events := []core.MoneyEvent{
		ev("late", core.Inflow, 1, core.USD, "2024-01-31T22:00:00Z", core.StatePaid, core.SourceActualIncome),
		ev("next", core.Inflow, 1, core.USD, "2024-02-01T00:00:01Z", core.StatePaid, core.SourceActualIncome),
		ev("before", core.Inflow, 1, core.USD, "2023-12-31T23:59:59Z", core.StatePaid, core.SourceActualIncome),
		ev("ils", core.Inflow, 1, core.ILS, "2024-01-15T00:00:00Z", core.StatePaid, core.SourceActualIncome),
	}
	opts := FilterOptions{
		Range:    core.DateRange{From: core.NewDate(2024, 1, 1), ToInclusive: core.NewDate(2024, 1, 31)},
		Currency: core.USD,
	}

	got := Filter(events, opts)
	if len(got) != 1 || got[0].ID != "late" {
		t.Fatalf("Filter() = %v, want only late", ids(got))
	}

	got = Filter(events, FilterOptions{})
	if len(got) != len(events) {
		t.Errorf("zero options dropped events: %v", ids(got))
	}
}

func ids(events []core.MoneyEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func januaryEvents() []core.MoneyEvent {
	low := ev("low", core.Outflow, 250, core.USD, "2024-01-10T12:00:00Z", core.StateUpcoming, core.SourceProjectedExpense)
	low.Confidence = core.ConfidenceLow
	return []core.MoneyEvent{
		ev("pay", core.Inflow, 1000, core.USD, "2024-01-03T08:00:00Z", core.StatePaid, core.SourceActualIncome),
		ev("rent", core.Outflow, 400, core.USD, "2024-01-05T08:00:00Z", core.StatePaid, core.SourceProfileExpense),
		ev("due", core.Inflow, 700, core.USD, "2024-01-05T09:00:00Z", core.StateUnpaid, core.SourceReceivable),
		low,
		ev("cancelled", core.Outflow, 9999, core.USD, "2024-01-11T12:00:00Z", core.StateCancelled, core.SourceActualCost),
		ev("shekel", core.Inflow, 3600, core.ILS, "2024-01-31T23:30:00Z", core.StatePaid, core.SourceActualIncome),
		ev("feb", core.Inflow, 5, core.USD, "2024-02-01T00:00:00Z", core.StatePaid, core.SourceActualIncome),
	}
}

func TestDaily_RunningBalance(t *testing.T) {
	month := core.YearMonth{Year: 2024, Month: time.January}
	opening := Opening{core.USD: 50}

	days := Daily(januaryEvents(), opening, month.Range())
	if len(days) != 31 {
		t.Fatalf("got %d days, want 31", len(days))
	}

	for _, cur := range []core.Currency{core.USD, core.ILS} {
		prev := opening[cur]
		for i, d := range days {
			f, ok := d.Currencies[cur]
			if !ok {
				t.Fatalf("day %s missing %s", d.Date, cur)
			}
			if want := prev + f.InflowMinor - f.OutflowMinor; f.RunningBalanceMinor != want {
				t.Fatalf("%s day %d balance = %d, want %d", cur, i, f.RunningBalanceMinor, want)
			}
			if f.NetMinor != f.InflowMinor-f.OutflowMinor {
				t.Fatalf("%s day %d net = %d", cur, i, f.NetMinor)
			}
			prev = f.RunningBalanceMinor
		}
	}

	if got := days[30].Currencies[core.USD].RunningBalanceMinor; got != 50+1000-400-250 {
		t.Errorf("USD closing = %d", got)
	}
	if got := days[30].Currencies[core.ILS].InflowMinor; got != 3600 {
		t.Errorf("late-night ILS inflow booked on %d, want 3600 on Jan 31", got)
	}
	if got := days[9].Confidence; got != core.ConfidenceLow {
		t.Errorf("Jan 10 confidence = %s, want low", got)
	}
	if got := days[0].Confidence; got != core.ConfidenceHigh {
		t.Errorf("empty day confidence = %s, want high", got)
	}
	if days[4].Currencies[core.USD].InflowMinor != 0 {
		t.Error("unpaid inflow counted in daily inflow")
	}
}

func TestDaily_OpenRange(t *testing.T) {
	if got := Daily(januaryEvents(), nil, core.DateRange{}); got != nil {
		t.Errorf("open range produced %d days", len(got))
	}
}

func TestMonth_Conservation(t *testing.T) {
	month := core.YearMonth{Year: 2024, Month: time.January}
	days, summary := MonthReport(januaryEvents(), Opening{core.USD: 50}, month)

	for cur, totals := range summary.Currencies {
		var in, out int64
		for _, d := range days {
			in += d.Currencies[cur].InflowMinor
			out += d.Currencies[cur].OutflowMinor
		}
		if in != totals.TotalInflowMinor || out != totals.TotalOutflowMinor {
			t.Errorf("%s: days %d/%d, summary %d/%d", cur, in, out, totals.TotalInflowMinor, totals.TotalOutflowMinor)
		}
	}

	usd := summary.Currencies[core.USD]
	want := core.PeriodTotals{
		TotalInflowMinor:      1000,
		TotalOutflowMinor:     650,
		NetMinor:              350,
		AwaitingMinor:         700,
		ProjectedOutflowMinor: 250,
		ClosingBalanceMinor:   400,
	}
	if usd != want {
		t.Errorf("USD summary = %+v, want %+v", usd, want)
	}
}

func TestMonthReport_OffsetTimestamps(t *testing.T) {
	east := ev("east", core.Inflow, 500, core.ILS, "2024-02-01T01:00:00+03:00", core.StatePaid, core.SourceActualIncome)
	west := ev("west", core.Inflow, 70, core.ILS, "2024-01-31T21:00:00-05:00", core.StatePaid, core.SourceActualIncome)
	events := []core.MoneyEvent{east, west}

	jan := core.YearMonth{Year: 2024, Month: time.January}
	days, summary := MonthReport(events, nil, jan)
	if got := days[30].Currencies[core.ILS].InflowMinor; got != 500 {
		t.Errorf("Jan 31 ILS inflow = %d, want 500", got)
	}
	if got := summary.Currencies[core.ILS].TotalInflowMinor; got != 500 {
		t.Errorf("January ILS inflow = %d, want 500", got)
	}

	feb := core.YearMonth{Year: 2024, Month: time.February}
	days, summary = MonthReport(events, nil, feb)
	if got := days[0].Currencies[core.ILS].InflowMinor; got != 70 {
		t.Errorf("Feb 1 ILS inflow = %d, want 70", got)
	}
	if got := summary.Currencies[core.ILS].TotalInflowMinor; got != 70 {
		t.Errorf("February ILS inflow = %d, want 70", got)
	}

	year := Year(2024, events, nil)
	if got := year.Currencies[core.ILS].TotalInflowMinor; got != 570 {
		t.Errorf("year ILS inflow = %d, want 570", got)
	}
}

func TestYear(t *testing.T) {
	events := append(januaryEvents(),
		ev("mar-out", core.Outflow, 800, core.USD, "2024-03-15T00:00:00Z", core.StatePaid, core.SourceActualCost),
		ev("ret-1", core.Inflow, 100, core.USD, "2024-04-01T00:00:00Z", core.StatePaid, core.SourceRetainer),
		ev("ret-2", core.Inflow, 100, core.USD, "2024-05-01T00:00:00Z", core.StatePaid, core.SourceRetainer),
		ev("ret-3", core.Inflow, 100, core.USD, "2024-06-01T00:00:00Z", core.StateMissed, core.SourceRetainer),
		ev("ret-x", core.Inflow, 100, core.USD, "2024-07-01T00:00:00Z", core.StateCancelled, core.SourceRetainer),
		ev("last-year", core.Inflow, 100, core.USD, "2023-12-31T00:00:00Z", core.StatePaid, core.SourceActualIncome),
	)

	ys := Year(2024, events, nil)
	if len(ys.Months) != 12 {
		t.Fatalf("got %d months, want 12", len(ys.Months))
	}
	for i, m := range ys.Months {
		if m.Month.Month != time.Month(i+1) || m.Month.Year != 2024 {
			t.Errorf("months[%d] = %s", i, m.Month)
		}
	}
	if len(ys.Months[7].Currencies) == 0 {
		t.Error("empty August has no zero-valued currencies")
	}

	usd := ys.Currencies[core.USD]
	if usd.TotalInflowMinor != 1000+5+200 {
		t.Errorf("inflow = %d", usd.TotalInflowMinor)
	}
	if usd.NetMinor != usd.TotalInflowMinor-usd.TotalOutflowMinor {
		t.Errorf("net = %d", usd.NetMinor)
	}
	// awaiting: 700 in January, the missed retainer is not pending
	if usd.AvgAwaitingMinor != 58 {
		t.Errorf("avg awaiting = %d, want 58", usd.AvgAwaitingMinor)
	}
	if usd.RetainerStabilityPercent != 67 {
		t.Errorf("retainer stability = %d, want 67", usd.RetainerStabilityPercent)
	}
	if usd.BestMonth == nil || usd.BestMonth.Month != time.January {
		t.Errorf("best month = %v", usd.BestMonth)
	}
	if usd.WorstMonth == nil || usd.WorstMonth.Month != time.March {
		t.Errorf("worst month = %v", usd.WorstMonth)
	}
}

func TestRoundDiv(t *testing.T) {
	tests := []struct{ n, d, want int64 }{
		{700, 12, 58},
		{6, 12, 1},
		{5, 12, 0},
		{-6, 12, -1},
		{200, 3, 67},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := roundDiv(tt.n, tt.d); got != tt.want {
			t.Errorf("roundDiv(%d, %d) = %d, want %d", tt.n, tt.d, got, tt.want)
		}
	}
}
