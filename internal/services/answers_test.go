package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mutaba/internal/aggregate"
	"mutaba/internal/core"
	"mutaba/internal/fx"
)

type memoryEvents struct {
	events []core.MoneyEvent
	err    error
}

func (m *memoryEvents) ListEvents(_ context.Context, r core.DateRange, cur core.Currency) ([]core.MoneyEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return aggregate.Filter(m.events, aggregate.FilterOptions{Range: r, Currency: cur}), nil
}

type memoryRules []core.RecurringRule

func (m memoryRules) ListRecurringRules(context.Context) ([]core.RecurringRule, error) {
	return m, nil
}

// fixedRates answers from a table; missing pairs are unavailable.
type fixedRates struct {
	mu    sync.Mutex
	rates map[string]float64
	calls int
}

func (f *fixedRates) Get(_ context.Context, base, quote core.Currency) fx.RateResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if base == quote {
		return fx.Live{Base: base, Quote: quote, Rate: 1}
	}
	if r, ok := f.rates[fx.PairKey(base, quote)]; ok {
		return fx.Cached{Base: base, Quote: quote, Rate: r, Age: time.Hour}
	}
	return fx.Unavailable{Base: base, Quote: quote}
}

func on(day int) time.Time { return time.Date(2024, time.March, day, 9, 0, 0, 0, time.UTC) }

func sampleEvents() []core.MoneyEvent {
	overdueDue := core.NewDate(2024, 1, 20)
	return []core.MoneyEvent{
		{ID: "salary", Direction: core.Inflow, AmountMinor: 10000, Currency: core.USD, OccurredAt: on(1), State: core.StatePaid, Source: core.SourceActualIncome, Title: "Salary"},
		{ID: "invoice", Direction: core.Inflow, AmountMinor: 3000, Currency: core.USD, OccurredAt: on(10), State: core.StateOverdue, Source: core.SourceReceivable, Title: "Invoice", DueDate: &overdueDue},
		{ID: "retainer", Direction: core.Inflow, AmountMinor: 2000, Currency: core.USD, OccurredAt: on(25), State: core.StateUpcoming, Source: core.SourceRetainer, Title: "Retainer"},
		{ID: "rent", Direction: core.Outflow, AmountMinor: 4000, Currency: core.ILS, OccurredAt: on(2), State: core.StatePaid, Source: core.SourceProfileExpense, Title: "Rent"},
	}
}

func newService(events EventSource, rates RateSource, opts ...Option) *AnswersService {
	opts = append(opts, WithClock(func() time.Time { return on(15) }))
	return NewAnswersService(events, rates, opts...)
}

func TestAnswersService_EventsToggles(t *testing.T) {
	rules := memoryRules{{ID: "phone", Title: "Phone", AmountMinor: 100, Currency: core.USD,
		Frequency: core.Monthly, StartDate: core.NewDate(2024, 1, 5)}}
	svc := newService(&memoryEvents{events: sampleEvents()}, &fixedRates{}, WithRules(rules))
	month := core.YearMonth{Year: 2024, Month: time.March}

	tests := []struct {
		name    string
		filters core.Filters
		want    []string
	}{
		{"defaults", core.DefaultFilters(month), []string{"salary", "invoice", "retainer", "rent", "proj-phone-2024-03"}},
		{"no projections", core.Filters{Month: month, IncludeReceivables: true}, []string{"salary", "invoice", "rent"}},
		{"no receivables", core.Filters{Month: month, IncludeProjections: true}, []string{"salary", "retainer", "rent", "proj-phone-2024-03"}},
		{"ILS only", core.Filters{Month: month, Currency: core.ILS, IncludeProjections: true, IncludeReceivables: true}, []string{"rent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := svc.Events(context.Background(), month.Range(), tt.filters)
			if err != nil {
				t.Fatal(err)
			}
			if len(events) != len(tt.want) {
				t.Fatalf("got %d events, want %v", len(events), tt.want)
			}
			for i, e := range events {
				if e.ID != tt.want[i] {
					t.Errorf("events[%d] = %s, want %s", i, e.ID, tt.want[i])
				}
			}
		})
	}
}

func TestAnswersService_StoreError(t *testing.T) {
	boom := errors.New("disk on fire")
	svc := newService(&memoryEvents{err: boom}, &fixedRates{})
	_, err := svc.Month(context.Background(), core.DefaultFilters(core.YearMonth{Year: 2024, Month: time.March}), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}

func TestAnswersService_RequiresPeriod(t *testing.T) {
	svc := newService(&memoryEvents{}, &fixedRates{})
	if _, err := svc.KPIs(context.Background(), core.Filters{}, nil); !errors.Is(err, ErrMonthRequired) {
		t.Errorf("KPIs err = %v", err)
	}
	if _, err := svc.Year(context.Background(), core.Filters{}, nil); !errors.Is(err, ErrYearRequired) {
		t.Errorf("Year err = %v", err)
	}
}

func TestAnswersService_MonthAndKPIs(t *testing.T) {
	svc := newService(&memoryEvents{events: sampleEvents()}, &fixedRates{})
	f := core.DefaultFilters(core.YearMonth{Year: 2024, Month: time.March})
	opening := aggregate.Opening{core.ILS: 5000}

	report, err := svc.Month(context.Background(), f, opening)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Days) != 31 {
		t.Errorf("days = %d", len(report.Days))
	}
	if got := report.Summary.Currencies[core.ILS].ClosingBalanceMinor; got != 1000 {
		t.Errorf("ILS closing = %d, want 1000", got)
	}
	usdTotals := report.Totals[core.USD]
	if usdTotals.PaidIncomeMinor != 10000 || usdTotals.UnpaidIncomeMinor != 5000 {
		t.Errorf("USD totals = %+v", usdTotals)
	}
	if usdTotals.LastActivityAt == nil || !usdTotals.LastActivityAt.Equal(on(25)) {
		t.Errorf("USD last activity = %v, want %v", usdTotals.LastActivityAt, on(25))
	}
	if report.Totals[core.ILS].ExpensesMinor != 4000 {
		t.Errorf("ILS totals = %+v", report.Totals[core.ILS])
	}

	bundles, err := svc.KPIs(context.Background(), f, opening)
	if err != nil {
		t.Fatal(err)
	}
	usd := bundles[core.USD]
	if usd.CashOnHandMinor != 10000 || usd.ComingMinor != 5000 || usd.WillMakeItMinor != 15000 {
		t.Errorf("USD bundle = %+v", usd)
	}
	if bundles[core.ILS].CashOnHandMinor != 1000 {
		t.Errorf("ILS bundle = %+v", bundles[core.ILS])
	}
}

func TestAnswersService_Totals(t *testing.T) {
	svc := newService(&memoryEvents{events: sampleEvents()}, &fixedRates{})
	r := core.DateRange{From: core.NewDate(2024, 3, 1), ToInclusive: core.NewDate(2024, 3, 10)}

	tests := []struct {
		name     string
		currency core.Currency
		noRecv   bool
		want     map[core.Currency]core.Totals
	}{
		{
			name: "every currency",
			want: map[core.Currency]core.Totals{
				core.USD: {PaidIncomeMinor: 10000, UnpaidIncomeMinor: 3000},
				core.ILS: {ExpensesMinor: 4000},
			},
		},
		{
			name:     "one currency without receivables",
			currency: core.USD,
			noRecv:   true,
			want:     map[core.Currency]core.Totals{core.USD: {PaidIncomeMinor: 10000}},
		},
		{
			name:     "currency with no events",
			currency: core.EUR,
			want:     map[core.Currency]core.Totals{core.EUR: {}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := core.DefaultFilters(core.YearMonth{Year: 2024, Month: time.March})
			f.Currency = tc.currency
			f.IncludeReceivables = !tc.noRecv

			report, err := svc.Totals(context.Background(), r, f)
			if err != nil {
				t.Fatal(err)
			}
			if report.Range.String() != r.String() {
				t.Errorf("range = %v, want %v", report.Range, r)
			}
			if len(report.Currencies) != len(tc.want) {
				t.Fatalf("currencies = %v, want %v", report.Currencies, tc.want)
			}
			for cur, want := range tc.want {
				if got := report.Currencies[cur]; got != want {
					t.Errorf("%s = %+v, want %+v", cur, got, want)
				}
			}
		})
	}

	backwards := core.DateRange{From: core.NewDate(2024, 3, 10), ToInclusive: core.NewDate(2024, 3, 1)}
	if _, err := svc.Totals(context.Background(), backwards, core.DefaultFilters(core.YearMonth{})); !errors.Is(err, core.ErrInvalidRange) {
		t.Errorf("err = %v, want ErrInvalidRange", err)
	}
}

func TestAnswersService_Guidance(t *testing.T) {
	svc := newService(&memoryEvents{events: sampleEvents()}, &fixedRates{})
	f := core.DefaultFilters(core.YearMonth{Year: 2024, Month: time.March})

	items, err := svc.Guidance(context.Background(), f, aggregate.Opening{core.ILS: 1000})
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]core.GuidanceItem{}
	for _, item := range items {
		ids[item.ID] = item
	}
	if item, ok := ids["overdue-30-days"]; !ok || item.ImpactCurrency != core.USD {
		t.Errorf("missing USD overdue-30-days in %v", items)
	}
	if item, ok := ids["projected-shortfall"]; !ok || item.ImpactCurrency != core.ILS || item.ImpactMinor != 3000 {
		t.Errorf("missing ILS shortfall of 3000 in %+v", items)
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].Severity.Rank() > items[i].Severity.Rank() {
			t.Fatalf("items not ranked: %s before %s", items[i-1].Severity, items[i].Severity)
		}
	}
}

func TestAnswersService_Unify(t *testing.T) {
	rates := &fixedRates{rates: map[string]float64{"USD-ILS": 3.6}}
	svc := newService(&memoryEvents{}, rates)

	res := svc.Unify(context.Background(), map[core.Currency]int64{core.USD: 100, core.EUR: 50}, core.ILS)
	if res.TotalMinor != nil {
		t.Fatalf("partial unification returned %d", *res.TotalMinor)
	}
	if res.Rates[core.EUR].Source != fx.SourceNone {
		t.Errorf("EUR view = %+v", res.Rates[core.EUR])
	}

	res = svc.Unify(context.Background(), map[core.Currency]int64{core.USD: 100, core.EUR: 0, core.ILS: 40}, core.ILS)
	if res.TotalMinor == nil || *res.TotalMinor != 400 {
		t.Fatalf("total = %v, want 400", res.TotalMinor)
	}
	if _, asked := res.Rates[core.EUR]; asked {
		t.Error("rate fetched for zero amount")
	}
}

func TestAnswersService_UnifyKPIs(t *testing.T) {
	rates := &fixedRates{rates: map[string]float64{"USD-ILS": 4}}
	svc := newService(&memoryEvents{}, rates)

	got := svc.UnifyKPIs(context.Background(), map[core.Currency]core.KpiBundle{
		core.USD: {WillMakeItMinor: 100, CashOnHandMinor: 100},
		core.ILS: {WillMakeItMinor: 50, CashOnHandMinor: 50},
		core.EUR: {ComingMinor: 10},
	}, core.ILS)

	if got.WillMakeItMinor == nil || *got.WillMakeItMinor != 450 {
		t.Errorf("will make it = %v", got.WillMakeItMinor)
	}
	if got.ComingMinor != nil {
		t.Errorf("coming unified without EUR rate: %d", *got.ComingMinor)
	}
	if got.LeakingMinor == nil || *got.LeakingMinor != 0 {
		t.Errorf("leaking = %v, want 0", got.LeakingMinor)
	}
}

func TestAnswersService_Rates(t *testing.T) {
	rates := &fixedRates{rates: map[string]float64{"USD-ILS": 3.6}}
	svc := newService(&memoryEvents{}, rates, WithCurrencies([]core.Currency{core.USD, core.EUR, core.ILS}))

	got := svc.Rates(context.Background(), core.ILS)
	if len(got) != 3 {
		t.Fatalf("got %d rates", len(got))
	}
	if got[core.EUR].Source() != fx.SourceNone || got[core.USD].Source() != fx.SourceCached {
		t.Errorf("rates = %+v", got)
	}
}
