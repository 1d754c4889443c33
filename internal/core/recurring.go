package core

import (
	"errors"
	"strings"
)

const (
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	EndNever     EndMode = "noEnd"
	EndOfYear    EndMode = "endOfYear"
	EndUntilDate EndMode = "untilDate"
)

type (
	// Frequency of a recurring rule.
	Frequency string
	// EndMode says when a recurring rule stops.
	EndMode string
)

// RecurringRule is a repeating expense template. It is never a MoneyEvent by
// itself; occurrences are projected into events on demand.
type RecurringRule struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Vendor      string    `json:"vendor,omitempty"`
	AmountMinor int64     `json:"amountMinor"`
	Currency    Currency  `json:"currency"`
	Frequency   Frequency `json:"frequency"`
	StartDate   Date      `json:"startDate"`
	EndMode     EndMode   `json:"endMode"`
	EndDate     *Date     `json:"endDate,omitempty"`
	Paused      bool      `json:"paused"`
}

var (
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidEndMode   = errors.New("invalid end mode")
)

func (r RecurringRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyID
	}
	if r.AmountMinor <= 0 {
		return ErrInvalidAmount
	}
	if !r.Currency.Valid() {
		return ErrUnknownCurrency
	}
	if r.Frequency != Monthly && r.Frequency != Yearly {
		return ErrInvalidFrequency
	}
	if err := r.StartDate.Validate(); err != nil {
		return err
	}
	switch r.EndMode {
	case EndNever, EndOfYear, "":
	case EndUntilDate:
		if r.EndDate == nil || r.EndDate.Before(r.StartDate) {
			return ErrInvalidRange
		}
	default:
		return ErrInvalidEndMode
	}
	return nil
}

// Ended reports whether the rule has stopped by day d.
func (r RecurringRule) Ended(d Date) bool {
	switch r.EndMode {
	case EndOfYear:
		return d.Year() > r.StartDate.Year()
	case EndUntilDate:
		return r.EndDate != nil && d.After(*r.EndDate)
	}
	return false
}
