package services

import (
	"testing"
	"time"

	"mutaba/internal/core"
)

func dateRef(y, m, d int) *core.Date {
	date := core.NewDate(y, m, d)
	return &date
}

func TestYearlyOccurrence_OccursIn(t *testing.T) {
	rule := core.RecurringRule{StartDate: core.NewDate(2023, 6, 10)}
	tests := []struct {
		month core.YearMonth
		want  bool
	}{
		{core.YearMonth{Year: 2024, Month: time.June}, true},
		{core.YearMonth{Year: 2024, Month: time.July}, false},
		{core.YearMonth{Year: 2023, Month: time.June}, true},
	}
	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			if got := (YearlyOccurrence{}).OccursIn(rule, tt.month); got != tt.want {
				t.Errorf("OccursIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetOccurrenceStrategy(t *testing.T) {
	if _, err := GetOccurrenceStrategy(core.Monthly); err != nil {
		t.Errorf("monthly: %v", err)
	}
	if _, err := GetOccurrenceStrategy(core.Frequency("weekly")); err == nil {
		t.Error("expected error for weekly")
	}
}

func TestOccurrenceDate_ClampsToMonthEnd(t *testing.T) {
	rule := core.RecurringRule{StartDate: core.NewDate(2024, 1, 31)}
	tests := []struct {
		month core.YearMonth
		want  string
	}{
		{core.YearMonth{Year: 2024, Month: time.February}, "2024-02-29"},
		{core.YearMonth{Year: 2023, Month: time.February}, "2023-02-28"},
		{core.YearMonth{Year: 2024, Month: time.April}, "2024-04-30"},
		{core.YearMonth{Year: 2024, Month: time.May}, "2024-05-31"},
	}
	for _, tt := range tests {
		if got := OccurrenceDate(rule, tt.month).String(); got != tt.want {
			t.Errorf("OccurrenceDate(%s) = %s, want %s", tt.month, got, tt.want)
		}
	}
}

func TestProjectRules(t *testing.T) {
	rules := []core.RecurringRule{
		{ID: "rent", Title: "Rent", AmountMinor: 4000, Currency: core.ILS, Frequency: core.Monthly,
			StartDate: core.NewDate(2024, 1, 31), EndMode: core.EndNever},
		{ID: "domain", Title: "Domain", Vendor: "Registrar", AmountMinor: 1500, Currency: core.USD, Frequency: core.Yearly,
			StartDate: core.NewDate(2023, 3, 5), EndMode: core.EndNever},
		{ID: "gym", Title: "Gym", AmountMinor: 200, Currency: core.ILS, Frequency: core.Monthly,
			StartDate: core.NewDate(2024, 1, 10), EndMode: core.EndUntilDate, EndDate: dateRef(2024, 2, 9)},
		{ID: "course", Title: "Course", AmountMinor: 300, Currency: core.EUR, Frequency: core.Monthly,
			StartDate: core.NewDate(2023, 11, 1), EndMode: core.EndOfYear},
		{ID: "paused", Title: "Paused", AmountMinor: 1, Currency: core.USD, Frequency: core.Monthly,
			StartDate: core.NewDate(2024, 1, 1), Paused: true},
		{ID: "late-start", Title: "Late", AmountMinor: 1, Currency: core.USD, Frequency: core.Monthly,
			StartDate: core.NewDate(2024, 4, 1)},
	}
	r := core.DateRange{From: core.NewDate(2024, 1, 1), ToInclusive: core.NewDate(2024, 3, 31)}

	events := ProjectRules(rules, r)

	var got []string
	for _, e := range events {
		got = append(got, e.ID+"@"+e.Date().String())
		if e.Source != core.SourceProjectedExpense || e.State != core.StateUpcoming || e.Direction != core.Outflow {
			t.Errorf("%s has wrong shape: %+v", e.ID, e)
		}
		if e.SourceEntityType != SourceEntityRecurringRule {
			t.Errorf("%s entity type = %q", e.ID, e.SourceEntityType)
		}
	}
	want := []string{
		"proj-gym-2024-01@2024-01-10",
		"proj-rent-2024-01@2024-01-31",
		"proj-rent-2024-02@2024-02-29",
		"proj-domain-2024-03@2024-03-05",
		"proj-rent-2024-03@2024-03-31",
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if events[3].Counterparty == nil || events[3].Counterparty.Name != "Registrar" {
		t.Errorf("vendor not carried: %+v", events[3].Counterparty)
	}
}

func TestProjectRules_OpenRange(t *testing.T) {
	rules := []core.RecurringRule{{ID: "r", AmountMinor: 1, Currency: core.USD, Frequency: core.Monthly, StartDate: core.NewDate(2024, 1, 1)}}
	if got := ProjectRules(rules, core.DateRange{}); got != nil {
		t.Errorf("open range projected %d events", len(got))
	}
}
