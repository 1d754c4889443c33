// Package services orchestrates the record store, the rate accessor and the
// pure aggregation packages into the answers the API and CLI serve.
//
// This file projects recurring rules into upcoming expense events. Each
// frequency has its own occurrence strategy, looked up in a registry.
package services

import (
	"fmt"
	"sort"
	"time"

	"mutaba/internal/core"
)

// SourceEntityRecurringRule marks events projected from a RecurringRule.
const SourceEntityRecurringRule = "recurring_rule"

// OccurrenceStrategy decides whether a rule produces an occurrence in a month.
type OccurrenceStrategy interface {
	OccursIn(rule core.RecurringRule, month core.YearMonth) bool
}

// MonthlyOccurrence occurs every month.
type MonthlyOccurrence struct{}

func (MonthlyOccurrence) OccursIn(core.RecurringRule, core.YearMonth) bool { return true }

// YearlyOccurrence occurs only in the month of the start date.
type YearlyOccurrence struct{}

func (YearlyOccurrence) OccursIn(rule core.RecurringRule, month core.YearMonth) bool {
	return month.Month == rule.StartDate.Month()
}

var occurrenceStrategies = map[core.Frequency]OccurrenceStrategy{
	core.Monthly: MonthlyOccurrence{},
	core.Yearly:  YearlyOccurrence{},
}

// GetOccurrenceStrategy returns the strategy registered for a frequency.
func GetOccurrenceStrategy(frequency core.Frequency) (OccurrenceStrategy, error) {
	s, ok := occurrenceStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidFrequency, frequency)
	}
	return s, nil
}

// RegisterOccurrenceStrategy adds or replaces the strategy of a frequency.
func RegisterOccurrenceStrategy(frequency core.Frequency, s OccurrenceStrategy) {
	occurrenceStrategies[frequency] = s
}

// OccurrenceDate is the rule's day within month, clamped to the month's last day.
func OccurrenceDate(rule core.RecurringRule, month core.YearMonth) core.Date {
	day := rule.StartDate.Day()
	if last := month.Last().Day(); day > last {
		day = last
	}
	return core.NewDate(month.Year, int(month.Month), day)
}

// ProjectRules expands active rules into upcoming projected_expense events
// dated inside r, sorted by date. Paused and unknown-frequency rules are skipped.
func ProjectRules(rules []core.RecurringRule, r core.DateRange) []core.MoneyEvent {
	if r.From.IsZero() || r.ToInclusive.IsZero() || r.ToInclusive.Before(r.From) {
		return nil
	}

	var events []core.MoneyEvent
	for _, rule := range rules {
		if rule.Paused || !rule.Currency.Valid() {
			continue
		}
		strategy, err := GetOccurrenceStrategy(rule.Frequency)
		if err != nil {
			continue
		}
		for month := r.From.YearMonth(); !month.First().After(r.ToInclusive); month = nextMonth(month) {
			if !strategy.OccursIn(rule, month) {
				continue
			}
			d := OccurrenceDate(rule, month)
			if d.Before(rule.StartDate) || rule.Ended(d) || !r.ContainsDate(d) {
				continue
			}
			events = append(events, projectedEvent(rule, month, d))
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events
}

func nextMonth(m core.YearMonth) core.YearMonth {
	if m.Month == time.December {
		return core.YearMonth{Year: m.Year + 1, Month: time.January}
	}
	return core.YearMonth{Year: m.Year, Month: m.Month + 1}
}

func projectedEvent(rule core.RecurringRule, month core.YearMonth, d core.Date) core.MoneyEvent {
	e := core.MoneyEvent{
		ID:               fmt.Sprintf("proj-%s-%s", rule.ID, month),
		Direction:        core.Outflow,
		AmountMinor:      rule.AmountMinor,
		Currency:         rule.Currency,
		OccurredAt:       d.Time,
		State:            core.StateUpcoming,
		Source:           core.SourceProjectedExpense,
		SourceEntityType: SourceEntityRecurringRule,
		SourceEntityID:   rule.ID,
		Title:            rule.Title,
		Confidence:       core.ConfidenceMedium,
	}
	if rule.Vendor != "" {
		e.Counterparty = &core.Counterparty{Name: rule.Vendor, Type: "vendor"}
	}
	return e
}
