package core

import "time"

// Totals is the single-currency paid/unpaid/expense split of a set of events.
type Totals struct {
	PaidIncomeMinor   int64 `json:"paidIncomeMinor"`
	UnpaidIncomeMinor int64 `json:"unpaidIncomeMinor"`
	ExpensesMinor     int64 `json:"expensesMinor"`
}

// TotalsWithActivity adds the most recent activity and payment instants.
type TotalsWithActivity struct {
	Totals
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
	LastPaymentAt  *time.Time `json:"lastPaymentAt,omitempty"`
}

// DayFlow is one currency's movement on one day.
type DayFlow struct {
	InflowMinor         int64 `json:"inflowMinor"`
	OutflowMinor        int64 `json:"outflowMinor"`
	NetMinor            int64 `json:"netMinor"`
	RunningBalanceMinor int64 `json:"runningBalanceMinor"`
}

// DailyAggregate is one calendar day with per-currency flows and the events booked on it.
type DailyAggregate struct {
	Date       Date                 `json:"date"`
	Currencies map[Currency]DayFlow `json:"currencies"`
	Events     []MoneyEvent         `json:"events"`
	Confidence Confidence           `json:"confidence"`
}

// PeriodTotals is one currency's totals over a month.
type PeriodTotals struct {
	TotalInflowMinor      int64 `json:"totalInflowMinor"`
	TotalOutflowMinor     int64 `json:"totalOutflowMinor"`
	NetMinor              int64 `json:"netMinor"`
	AwaitingMinor         int64 `json:"awaitingMinor"`
	ProjectedOutflowMinor int64 `json:"projectedOutflowMinor"`
	ClosingBalanceMinor   int64 `json:"closingBalanceMinor"`
}

// MonthSummary is a compact summary for a specific year+month.
type MonthSummary struct {
	Month      YearMonth                 `json:"month"`
	Currencies map[Currency]PeriodTotals `json:"currencies"`
}

// YearTotals is one currency's totals over a year.
type YearTotals struct {
	TotalInflowMinor         int64      `json:"totalInflowMinor"`
	TotalOutflowMinor        int64      `json:"totalOutflowMinor"`
	NetMinor                 int64      `json:"netMinor"`
	AvgAwaitingMinor         int64      `json:"avgAwaitingMinor"`
	RetainerStabilityPercent int        `json:"retainerStabilityPercent"`
	BestMonth                *YearMonth `json:"bestMonth,omitempty"`
	WorstMonth               *YearMonth `json:"worstMonth,omitempty"`
}

// YearSummary always holds twelve months, January first.
type YearSummary struct {
	Year       int                     `json:"year"`
	Months     []MonthSummary          `json:"months"`
	Currencies map[Currency]YearTotals `json:"currencies"`
}

// KpiBundle is the month forecast of a single currency.
type KpiBundle struct {
	Currency         Currency `json:"currency"`
	WillMakeItMinor  int64    `json:"willMakeItMinor"`
	CashOnHandMinor  int64    `json:"cashOnHandMinor"`
	ComingMinor      int64    `json:"comingMinor"`
	LeakingMinor     int64    `json:"leakingMinor"`
	NetForecastMinor int64    `json:"netForecastMinor"`
}

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Severity of a guidance item.
type Severity string

// Rank orders severities for display: critical first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	}
	return 2
}

// Action is a suggested follow-up the presentation layer can offer.
type Action struct {
	Label   string         `json:"label"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// GuidanceItem is a ranked advisory derived from the month's figures.
type GuidanceItem struct {
	ID              string   `json:"id"`
	Severity        Severity `json:"severity"`
	Category        string   `json:"category"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	ImpactMinor     int64    `json:"impactMinor"`
	ImpactCurrency  Currency `json:"impactCurrency"`
	RelatedEventIDs []string `json:"relatedEventIds,omitempty"`
	PrimaryAction   *Action  `json:"primaryAction,omitempty"`
}

// Filters selects the slice of the books a report covers.
type Filters struct {
	Month              YearMonth
	Year               int
	Currency           Currency // empty means every enabled currency
	IncludeReceivables bool
	IncludeProjections bool
}

// DefaultFilters returns filters for month with both toggles on.
func DefaultFilters(month YearMonth) Filters {
	return Filters{
		Month:              month,
		Year:               month.Year,
		IncludeReceivables: true,
		IncludeProjections: true,
	}
}
