package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateFormat is the ISO-8601 calendar date layout used on the wire.
const DateFormat = "2006-01-02"

// Date is a calendar day, always held at midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current UTC calendar day.
func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses a YYYY-MM-DD string. A full RFC 3339 timestamp is also
// accepted and truncated to its UTC day.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateFormat, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t.UTC()), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// AddDays returns the day n days after d.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of whole days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.Sub(d.Time).Hours() / 24)
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

// YearMonth returns the month d falls in.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year(), Month: d.Time.Month()}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateFormat)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange is a span of calendar days. ToInclusive covers the whole of its
// day: an instant at 23:59:59.999 on that day is inside the range.
// A zero bound leaves that side open.
type DateRange struct {
	From        Date `json:"from"`
	ToInclusive Date `json:"toInclusive"`
}

// NewDateRange builds a closed range and checks its ordering.
func NewDateRange(from, toInclusive Date) (DateRange, error) {
	r := DateRange{From: from, ToInclusive: toInclusive}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.ToInclusive.IsZero() && r.ToInclusive.Before(r.From) {
		return fmt.Errorf("%w: %s after %s", ErrInvalidRange, r.From, r.ToInclusive)
	}
	return nil
}

// Contains reports whether the instant t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From.Time) {
		return false
	}
	if !r.ToInclusive.IsZero() && !t.Before(r.ToInclusive.AddDays(1).Time) {
		return false
	}
	return true
}

// ContainsDate reports whether the calendar day d falls inside the range.
func (r DateRange) ContainsDate(d Date) bool {
	return r.Contains(d.Time)
}

// Days lists every calendar day of a closed range in ascending order.
func (r DateRange) Days() []Date {
	if r.From.IsZero() || r.ToInclusive.IsZero() || r.ToInclusive.Before(r.From) {
		return nil
	}
	days := make([]Date, 0, r.From.DaysUntil(r.ToInclusive)+1)
	for d := r.From; !d.After(r.ToInclusive); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return r.From.String() + ".." + r.ToInclusive.String()
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q want YYYY-MM", ErrInvalidMonth, s)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) First() Date { return NewDate(ym.Year, int(ym.Month), 1) }

func (ym YearMonth) Last() Date { return NewDate(ym.Year, int(ym.Month)+1, 0) }

// Range returns the month as a closed date range.
func (ym YearMonth) Range() DateRange {
	return DateRange{From: ym.First(), ToInclusive: ym.Last()}
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(ym.String())
}

func (ym *YearMonth) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

// YearRange returns January 1st to December 31st of year.
func YearRange(year int) DateRange {
	return DateRange{From: NewDate(year, 1, 1), ToInclusive: NewDate(year, 12, 31)}
}

// MonthsOf returns the twelve months of year in order.
func MonthsOf(year int) []YearMonth {
	months := make([]YearMonth, 12)
	for i := range months {
		months[i] = YearMonth{Year: year, Month: time.Month(i + 1)}
	}
	return months
}
