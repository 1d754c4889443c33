package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"mutaba/internal/aggregate"
	"mutaba/internal/core"
	"mutaba/internal/fx"
	"mutaba/internal/guidance"
	"mutaba/internal/kpi"
	applog "mutaba/internal/log"
)

// EventSource is the record store's read side.
type EventSource interface {
	// ListEvents returns events dated inside r. An empty currency means all.
	ListEvents(ctx context.Context, r core.DateRange, currency core.Currency) ([]core.MoneyEvent, error)
}

// RuleSource lists recurring rules to project.
type RuleSource interface {
	ListRecurringRules(ctx context.Context) ([]core.RecurringRule, error)
}

// RateSource resolves exchange rates; *fx.Accessor satisfies it.
type RateSource interface {
	Get(ctx context.Context, base, quote core.Currency) fx.RateResult
}

var (
	ErrMonthRequired = errors.New("month is required")
	ErrYearRequired  = errors.New("year is required")
)

// AnswersService answers "where do I stand" questions over the books.
type AnswersService struct {
	events     EventSource
	rules      RuleSource
	rates      RateSource
	engine     *guidance.Engine
	thresholds guidance.Thresholds
	currencies []core.Currency
	now        func() time.Time
}

type Option func(*AnswersService)

func WithRules(r RuleSource) Option {
	return func(s *AnswersService) { s.rules = r }
}

func WithThresholds(t guidance.Thresholds) Option {
	return func(s *AnswersService) { s.thresholds = t }
}

func WithEngine(e *guidance.Engine) Option {
	return func(s *AnswersService) { s.engine = e }
}

func WithCurrencies(c []core.Currency) Option {
	return func(s *AnswersService) {
		if len(c) > 0 {
			s.currencies = c
		}
	}
}

// WithClock overrides the source of "today".
func WithClock(now func() time.Time) Option {
	return func(s *AnswersService) { s.now = now }
}

func NewAnswersService(events EventSource, rates RateSource, opts ...Option) *AnswersService {
	s := &AnswersService{
		events:     events,
		rates:      rates,
		engine:     guidance.Default(),
		thresholds: guidance.DefaultThresholds(),
		currencies: core.SupportedCurrencies,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AnswersService) Currencies() []core.Currency { return s.currencies }

func (s *AnswersService) today() core.Date { return core.DateOf(s.now().UTC()) }

// currenciesFor returns the currencies a request covers.
func (s *AnswersService) currenciesFor(f core.Filters) []core.Currency {
	if f.Currency != "" {
		return []core.Currency{f.Currency}
	}
	return s.currencies
}

// Events loads the events of r, applies the receivable and projection toggles,
// and merges projected recurring expenses when projections are on.
func (s *AnswersService) Events(ctx context.Context, r core.DateRange, f core.Filters) ([]core.MoneyEvent, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.events.ListEvents(ctx, r, f.Currency)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]core.MoneyEvent, 0, len(raw))
	for _, e := range aggregate.Filter(raw, aggregate.FilterOptions{Range: r, Currency: f.Currency}) {
		if e.Source == core.SourceReceivable && !f.IncludeReceivables {
			continue
		}
		if e.Source.Projected() && !f.IncludeProjections {
			continue
		}
		events = append(events, e)
	}

	if f.IncludeProjections && s.rules != nil {
		rules, err := s.rules.ListRecurringRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("list recurring rules: %w", err)
		}
		for _, e := range ProjectRules(rules, r) {
			if f.Currency == "" || e.Currency == f.Currency {
				events = append(events, e)
			}
		}
	}

	month := ""
	if f.Month.Year != 0 {
		month = f.Month.String()
	}
	fields := applog.NewFields().
		WithComponent(applog.ComponentAnswers).
		WithOperation(applog.OpList).
		WithPeriod(f.Year, month)
	slog.DebugContext(ctx, "Report events loaded", append(fields.ToSlice(), "count", len(events))...)
	return events, nil
}

// MonthReport is the daily view of a month with its summary. Totals splits
// the month per currency and carries the latest activity and payment.
type MonthReport struct {
	Days    []core.DailyAggregate                     `json:"days"`
	Summary core.MonthSummary                         `json:"summary"`
	Totals  map[core.Currency]core.TotalsWithActivity `json:"totals"`
}

func (s *AnswersService) Month(ctx context.Context, f core.Filters, opening aggregate.Opening) (MonthReport, error) {
	if f.Month == (core.YearMonth{}) {
		return MonthReport{}, ErrMonthRequired
	}
	events, err := s.Events(ctx, f.Month.Range(), f)
	if err != nil {
		return MonthReport{}, err
	}
	days, summary := aggregate.MonthReport(events, opening, f.Month)
	return MonthReport{
		Days:    days,
		Summary: summary,
		Totals:  aggregate.ActivityByCurrency(events, aggregate.ActivityOptions{TrackPayments: true}),
	}, nil
}

// TotalsReport splits the events of a date range into paid income, unpaid
// income and expenses per currency.
type TotalsReport struct {
	Range      core.DateRange                `json:"range"`
	Currencies map[core.Currency]core.Totals `json:"currencies"`
}

// Totals folds the events of r under the filters' currency and toggles. The
// filters' month is ignored.
func (s *AnswersService) Totals(ctx context.Context, r core.DateRange, f core.Filters) (TotalsReport, error) {
	events, err := s.Events(ctx, r, f)
	if err != nil {
		return TotalsReport{}, err
	}
	report := TotalsReport{Range: r}
	if f.Currency != "" {
		report.Currencies = map[core.Currency]core.Totals{f.Currency: aggregate.Totals(events)}
	} else {
		report.Currencies = aggregate.TotalsByCurrency(events)
	}
	return report, nil
}

func (s *AnswersService) Year(ctx context.Context, f core.Filters, opening aggregate.Opening) (core.YearSummary, error) {
	if f.Year < 1 {
		return core.YearSummary{}, ErrYearRequired
	}
	events, err := s.Events(ctx, core.YearRange(f.Year), f)
	if err != nil {
		return core.YearSummary{}, err
	}
	return aggregate.Year(f.Year, events, opening), nil
}

// KPIs returns one bundle per currency. Currencies are never combined here;
// see UnifyKPIs.
func (s *AnswersService) KPIs(ctx context.Context, f core.Filters, opening aggregate.Opening) (map[core.Currency]core.KpiBundle, error) {
	if f.Month == (core.YearMonth{}) {
		return nil, ErrMonthRequired
	}
	events, err := s.Events(ctx, f.Month.Range(), f)
	if err != nil {
		return nil, err
	}
	return kpi.ForFilters(events, f, opening, s.currencies, s.today()), nil
}

// Guidance evaluates the rule table for every covered currency and returns
// the combined list, critical first.
func (s *AnswersService) Guidance(ctx context.Context, f core.Filters, opening aggregate.Opening) ([]core.GuidanceItem, error) {
	if f.Month == (core.YearMonth{}) {
		return nil, ErrMonthRequired
	}
	events, err := s.Events(ctx, f.Month.Range(), f)
	if err != nil {
		return nil, err
	}

	today := s.today()
	currencies := s.currenciesFor(f)
	inputs := make([]guidance.Input, len(currencies))
	_, summary := aggregate.MonthReport(events, opening, f.Month)

	g, _ := errgroup.WithContext(ctx)
	for i, cur := range currencies {
		g.Go(func() error {
			inputs[i] = guidance.Input{
				Currency: cur,
				Events:   events,
				Summary:  summary.Currencies[cur],
				KPIs: kpi.Calculate(kpi.Input{
					Currency:           cur,
					Month:              f.Month,
					Events:             events,
					Opening:            opening[cur],
					Today:              today,
					IncludeReceivables: f.IncludeReceivables,
					IncludeProjections: f.IncludeProjections,
				}),
				Today:      today,
				Thresholds: s.thresholds,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.engine.EvaluateAll(inputs), nil
}

// Rates looks up the rate of every other enabled currency into target.
func (s *AnswersService) Rates(ctx context.Context, target core.Currency) map[core.Currency]fx.RateResult {
	results := make([]fx.RateResult, len(s.currencies))
	g, gctx := errgroup.WithContext(ctx)
	for i, cur := range s.currencies {
		g.Go(func() error {
			results[i] = s.rates.Get(gctx, cur, target)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[core.Currency]fx.RateResult, len(results))
	for i, cur := range s.currencies {
		out[cur] = results[i]
	}
	return out
}

// UnifyResult is a combined amount and the rates it was computed with.
// TotalMinor is nil when any needed rate was unavailable.
type UnifyResult struct {
	Target     core.Currency                   `json:"target"`
	TotalMinor *int64                          `json:"totalMinor"`
	Rates      map[core.Currency]fx.ResultView `json:"rates"`
}

// Unify combines per-currency amounts into target, fetching only the rates it needs.
func (s *AnswersService) Unify(ctx context.Context, amounts map[core.Currency]int64, target core.Currency) UnifyResult {
	var needed []core.Currency
	for cur, amount := range amounts {
		if amount != 0 && cur != target {
			needed = append(needed, cur)
		}
	}

	results := make([]fx.RateResult, len(needed))
	g, gctx := errgroup.WithContext(ctx)
	for i, cur := range needed {
		g.Go(func() error {
			results[i] = s.rates.Get(gctx, cur, target)
			return nil
		})
	}
	_ = g.Wait()

	res := UnifyResult{Target: target, Rates: make(map[core.Currency]fx.ResultView, len(results))}
	for _, r := range results {
		base, _ := r.Pair()
		res.Rates[base] = fx.View(r)
	}
	if total, ok := fx.Unify(amounts, target, fx.RatesFrom(results)); ok {
		res.TotalMinor = &total
	} else {
		fields := applog.NewFields().
			WithComponent(applog.ComponentAnswers).
			WithOperation(applog.OpUnify)
		slog.InfoContext(ctx, "Unification incomplete, rate unavailable", append(fields.ToSlice(), "target", target)...)
	}
	return res
}

// UnifiedKPIs is the opt-in single-currency view of per-currency bundles.
// Each field is nil when it could not be unified.
type UnifiedKPIs struct {
	Currency         core.Currency `json:"currency"`
	WillMakeItMinor  *int64        `json:"willMakeItMinor"`
	CashOnHandMinor  *int64        `json:"cashOnHandMinor"`
	ComingMinor      *int64        `json:"comingMinor"`
	LeakingMinor     *int64        `json:"leakingMinor"`
	NetForecastMinor *int64        `json:"netForecastMinor"`
}

func (s *AnswersService) UnifyKPIs(ctx context.Context, bundles map[core.Currency]core.KpiBundle, target core.Currency) UnifiedKPIs {
	field := func(get func(core.KpiBundle) int64) map[core.Currency]int64 {
		m := make(map[core.Currency]int64, len(bundles))
		for cur, b := range bundles {
			m[cur] = get(b)
		}
		return m
	}
	total := func(get func(core.KpiBundle) int64) *int64 {
		return s.Unify(ctx, field(get), target).TotalMinor
	}
	return UnifiedKPIs{
		Currency:         target,
		WillMakeItMinor:  total(func(b core.KpiBundle) int64 { return b.WillMakeItMinor }),
		CashOnHandMinor:  total(func(b core.KpiBundle) int64 { return b.CashOnHandMinor }),
		ComingMinor:      total(func(b core.KpiBundle) int64 { return b.ComingMinor }),
		LeakingMinor:     total(func(b core.KpiBundle) int64 { return b.LeakingMinor }),
		NetForecastMinor: total(func(b core.KpiBundle) int64 { return b.NetForecastMinor }),
	}
}
