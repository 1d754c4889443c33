package guidance

import (
	"fmt"

	"mutaba/internal/core"
)

const (
	CategoryCollect = "collect"
	CategoryReduce  = "reduce"
	CategoryHygiene = "hygiene"
)

const (
	ActionViewReceivables = "viewReceivables"
	ActionViewRetainers   = "viewRetainers"
	ActionViewExpenses    = "viewExpenses"
	ActionMarkPaid        = "markPaid"
)

// DefaultRules is the standard rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "overdue-30-days",
			Severity: core.SeverityCritical,
			Category: CategoryCollect,
			Applies:  func(in Input) bool { return len(longOverdue(in)) > 0 },
			Build: func(in Input) []core.GuidanceItem {
				events := longOverdue(in)
				return []core.GuidanceItem{{
					Title:           fmt.Sprintf("%s overdue %d+ days", plural(len(events), "payment"), in.Thresholds.OverdueDays),
					Description:     "These receivables are significantly overdue. Consider following up urgently.",
					ImpactMinor:     sum(events),
					RelatedEventIDs: idsOf(events),
					PrimaryAction:   &core.Action{Label: "View Details", Type: ActionViewReceivables},
				}}
			},
		},
		{
			ID:       "large-overdue",
			Severity: core.SeverityCritical,
			Category: CategoryCollect,
			Applies:  func(in Input) bool { return len(largeOverdue(in)) > 0 },
			Build: func(in Input) []core.GuidanceItem {
				var items []core.GuidanceItem
				for _, e := range largeOverdue(in) {
					items = append(items, core.GuidanceItem{
						ID:              "large-overdue-" + e.ID,
						Title:           "Large overdue: " + e.Title,
						Description:     "This overdue amount represents a significant portion of your monthly income.",
						ImpactMinor:     e.AmountMinor,
						RelatedEventIDs: []string{e.ID},
						PrimaryAction: &core.Action{
							Label:   "Mark Paid",
							Type:    ActionMarkPaid,
							Payload: map[string]any{"eventId": entityID(e)},
						},
					})
				}
				return items
			},
		},
		{
			ID:       "projected-shortfall",
			Severity: core.SeverityCritical,
			Category: CategoryReduce,
			Applies:  func(in Input) bool { return in.KPIs.WillMakeItMinor < 0 },
			Build: func(in Input) []core.GuidanceItem {
				return []core.GuidanceItem{{
					Title:       "Projected shortfall at month end",
					Description: "Expected income does not cover what is due this month.",
					ImpactMinor: -in.KPIs.WillMakeItMinor,
					PrimaryAction: &core.Action{
						Label: "Review Expenses",
						Type:  ActionViewExpenses,
					},
				}}
			},
		},
		{
			ID:       "due-soon-7-days",
			Severity: core.SeverityWarning,
			Category: CategoryCollect,
			Applies:  func(in Input) bool { return len(dueSoon(in)) > 0 },
			Build: func(in Input) []core.GuidanceItem {
				events := dueSoon(in)
				return []core.GuidanceItem{{
					Title:           fmt.Sprintf("%s due within %d days", plural(len(events), "payment"), in.Thresholds.DueSoonDays),
					Description:     "Send reminders to ensure timely payment.",
					ImpactMinor:     sum(events),
					RelatedEventIDs: idsOf(events),
					PrimaryAction:   &core.Action{Label: "View Details", Type: ActionViewReceivables},
				}}
			},
		},
		{
			ID:       "retainer-overdue",
			Severity: core.SeverityWarning,
			Category: CategoryCollect,
			Applies:  func(in Input) bool { return len(retainerOverdue(in)) > 0 },
			Build: func(in Input) []core.GuidanceItem {
				events := retainerOverdue(in)
				return []core.GuidanceItem{{
					Title:           plural(len(events), "retainer payment") + " overdue",
					Description:     "Follow up on these recurring payments to maintain cash flow.",
					ImpactMinor:     sum(events),
					RelatedEventIDs: idsOf(events),
					PrimaryAction:   &core.Action{Label: "View Retainers", Type: ActionViewRetainers},
				}}
			},
		},
		{
			ID:       "large-expense",
			Severity: core.SeverityWarning,
			Category: CategoryReduce,
			Applies:  func(in Input) bool { return len(largeExpenses(in)) > 0 },
			Build: func(in Input) []core.GuidanceItem {
				var items []core.GuidanceItem
				for _, e := range largeExpenses(in) {
					items = append(items, core.GuidanceItem{
						ID:              "large-expense-" + e.ID,
						Title:           "Large upcoming expense: " + e.Title,
						Description:     "This expense is significant. Ensure you have sufficient funds.",
						ImpactMinor:     e.AmountMinor,
						RelatedEventIDs: []string{e.ID},
					})
				}
				return items
			},
		},
		{
			ID:       "missing-due-dates",
			Severity: core.SeverityInfo,
			Category: CategoryHygiene,
			Applies:  func(in Input) bool { return len(missingDueDates(in)) > 0 },
			Build: func(in Input) []core.GuidanceItem {
				events := missingDueDates(in)
				return []core.GuidanceItem{{
					Title:           plural(len(events), "receivable") + " without due date",
					Description:     "Add due dates to track payment timelines better.",
					ImpactMinor:     sum(events),
					RelatedEventIDs: idsOf(events),
					PrimaryAction:   &core.Action{Label: "View Details", Type: ActionViewReceivables},
				}}
			},
		},
	}
}

func selectEvents(events []core.MoneyEvent, keep func(core.MoneyEvent) bool) []core.MoneyEvent {
	var out []core.MoneyEvent
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func isOverdueIncome(e core.MoneyEvent) bool {
	return e.Direction == core.Inflow && e.State == core.StateOverdue
}

func longOverdue(in Input) []core.MoneyEvent {
	return selectEvents(in.Events, func(e core.MoneyEvent) bool {
		return isOverdueIncome(e) && e.DueDate != nil &&
			e.DueDate.DaysUntil(in.Today) > in.Thresholds.OverdueDays
	})
}

// largeOverdue skips events already reported as long overdue.
func largeOverdue(in Input) []core.MoneyEvent {
	covered := map[string]bool{}
	for _, e := range longOverdue(in) {
		covered[e.ID] = true
	}
	limit := float64(in.basis()) * in.Thresholds.LargeOverdueRatio
	return selectEvents(in.Events, func(e core.MoneyEvent) bool {
		return isOverdueIncome(e) && float64(e.AmountMinor) > limit && !covered[e.ID]
	})
}

func dueSoon(in Input) []core.MoneyEvent {
	return selectEvents(in.Events, func(e core.MoneyEvent) bool {
		if e.Direction != core.Inflow || e.State != core.StateUnpaid || e.DueDate == nil {
			return false
		}
		days := in.Today.DaysUntil(*e.DueDate)
		return days >= 0 && days <= in.Thresholds.DueSoonDays
	})
}

func retainerOverdue(in Input) []core.MoneyEvent {
	return selectEvents(in.Events, func(e core.MoneyEvent) bool {
		return e.Source == core.SourceRetainer &&
			(e.State == core.StateOverdue || e.State == core.StateMissed)
	})
}

func largeExpenses(in Input) []core.MoneyEvent {
	limit := float64(in.basis()) * in.Thresholds.LargeExpenseRatio
	return selectEvents(in.Events, func(e core.MoneyEvent) bool {
		return e.Direction == core.Outflow && e.State == core.StateUpcoming &&
			float64(e.AmountMinor) > limit
	})
}

func missingDueDates(in Input) []core.MoneyEvent {
	return selectEvents(in.Events, func(e core.MoneyEvent) bool {
		return e.Direction == core.Inflow && e.State == core.StateUnpaid && e.DueDate == nil
	})
}

func sum(events []core.MoneyEvent) int64 {
	var total int64
	for _, e := range events {
		total += e.AmountMinor
	}
	return total
}

func idsOf(events []core.MoneyEvent) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

// entityID is the record a markPaid action should update.
func entityID(e core.MoneyEvent) string {
	if e.SourceEntityID != "" {
		return e.SourceEntityID
	}
	return e.ID
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
