// Package guidance turns a month's figures into ranked advisory items.
package guidance

import (
	"errors"
	"fmt"
	"sort"

	"mutaba/internal/aggregate"
	"mutaba/internal/core"
)

// Thresholds tune the default rule table. They can be loaded from TOML.
type Thresholds struct {
	OverdueDays       int     `toml:"overdue_days" json:"overdueDays"`
	LargeOverdueRatio float64 `toml:"large_overdue_ratio" json:"largeOverdueRatio"`
	DueSoonDays       int     `toml:"due_soon_days" json:"dueSoonDays"`
	LargeExpenseRatio float64 `toml:"large_expense_ratio" json:"largeExpenseRatio"`
	DefaultBasisMinor int64   `toml:"default_basis_minor" json:"defaultBasisMinor"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		OverdueDays:       30,
		LargeOverdueRatio: 0.2,
		DueSoonDays:       7,
		LargeExpenseRatio: 0.3,
		DefaultBasisMinor: 100000,
	}
}

func (t Thresholds) Validate() error {
	var errs []error
	if t.OverdueDays < 0 {
		errs = append(errs, fmt.Errorf("overdue_days must be >= 0, got %d", t.OverdueDays))
	}
	if t.DueSoonDays < 0 {
		errs = append(errs, fmt.Errorf("due_soon_days must be >= 0, got %d", t.DueSoonDays))
	}
	if t.LargeOverdueRatio <= 0 {
		errs = append(errs, fmt.Errorf("large_overdue_ratio must be > 0, got %v", t.LargeOverdueRatio))
	}
	if t.LargeExpenseRatio <= 0 {
		errs = append(errs, fmt.Errorf("large_expense_ratio must be > 0, got %v", t.LargeExpenseRatio))
	}
	if t.DefaultBasisMinor <= 0 {
		errs = append(errs, fmt.Errorf("default_basis_minor must be > 0, got %d", t.DefaultBasisMinor))
	}
	return errors.Join(errs...)
}

// Input is one currency's view of the month.
type Input struct {
	Currency   core.Currency
	Events     []core.MoneyEvent
	Summary    core.PeriodTotals
	KPIs       core.KpiBundle
	Today      core.Date
	Thresholds Thresholds
}

// basis is the income figure "large" amounts are measured against.
func (in Input) basis() int64 {
	if in.Summary.TotalInflowMinor > 0 {
		return in.Summary.TotalInflowMinor
	}
	return in.Thresholds.DefaultBasisMinor
}

// Rule is one row of the rule table. Build is only called when Applies is true
// and may return several items, e.g. one per large event.
type Rule struct {
	ID       string
	Severity core.Severity
	Category string
	Applies  func(Input) bool
	Build    func(Input) []core.GuidanceItem
}

// Engine evaluates an ordered rule table. It holds no state between calls.
type Engine struct {
	rules []Rule
}

func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// Default returns an engine over the standard rule table.
func Default() *Engine {
	return NewEngine(DefaultRules()...)
}

func (e *Engine) Rules() []Rule { return e.rules }

// Evaluate runs every rule against in and returns the matches, critical first.
// Items of equal severity keep rule-table order.
func (e *Engine) Evaluate(in Input) []core.GuidanceItem {
	in.Events = aggregate.Filter(in.Events, aggregate.FilterOptions{Currency: in.Currency})

	var items []core.GuidanceItem
	for _, r := range e.rules {
		if !r.Applies(in) {
			continue
		}
		for _, item := range r.Build(in) {
			if item.ID == "" {
				item.ID = r.ID
			}
			item.Severity = r.Severity
			item.Category = r.Category
			if item.ImpactCurrency == "" {
				item.ImpactCurrency = in.Currency
			}
			items = append(items, item)
		}
	}
	Rank(items)
	return items
}

// EvaluateAll evaluates each input in order and ranks the combined list.
func (e *Engine) EvaluateAll(inputs []Input) []core.GuidanceItem {
	var items []core.GuidanceItem
	for _, in := range inputs {
		items = append(items, e.Evaluate(in)...)
	}
	Rank(items)
	return items
}

// Rank stable-sorts items by severity.
func Rank(items []core.GuidanceItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Severity.Rank() < items[j].Severity.Rank()
	})
}
