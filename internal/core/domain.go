package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Inflow  Direction = "inflow"
	Outflow Direction = "outflow"
)

const (
	StatePaid      State = "paid"
	StateUnpaid    State = "unpaid"
	StateOverdue   State = "overdue"
	StateUpcoming  State = "upcoming"
	StateMissed    State = "missed"
	StateCancelled State = "cancelled"
)

const (
	SourceActualIncome     Source = "actual_income"
	SourceActualCost       Source = "actual_cost"
	SourceReceivable       Source = "receivable"
	SourceProfileExpense   Source = "profile_expense"
	SourceProjectedExpense Source = "projected_expense"
	SourceRetainer         Source = "retainer"
)

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type (
	Direction  string
	State      string
	Source     string
	Confidence string

	// Counterparty is the client or vendor on the other side of an event.
	Counterparty struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"` // client | vendor
	}

	// MoneyEvent is a single dated movement of money in one currency.
	// Events are produced by the record store and never mutated here.
	MoneyEvent struct {
		ID               string        `json:"id"`
		Direction        Direction     `json:"direction"`
		AmountMinor      int64         `json:"amountMinor"`
		Currency         Currency      `json:"currency"`
		OccurredAt       time.Time     `json:"occurredAt"`
		State            State         `json:"state"`
		Source           Source        `json:"source"`
		SourceEntityType string        `json:"sourceEntityType,omitempty"`
		SourceEntityID   string        `json:"sourceEntityId,omitempty"`
		Counterparty     *Counterparty `json:"counterparty,omitempty"`
		Title            string        `json:"title"`
		DueDate          *Date         `json:"dueDate,omitempty"`
		PaidAt           *time.Time    `json:"paidAt,omitempty"`
		DeletedAt        *time.Time    `json:"deletedAt,omitempty"`
		Confidence       Confidence    `json:"confidence,omitempty"`
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidRange     = errors.New("invalid date range")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrUnknownCurrency  = errors.New("unknown currency")
	ErrEmptyID          = errors.New("empty event id")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidSource    = errors.New("invalid source")
)

func (d Direction) Valid() bool { return d == Inflow || d == Outflow }

func (s State) Valid() bool {
	switch s {
	case StatePaid, StateUnpaid, StateOverdue, StateUpcoming, StateMissed, StateCancelled:
		return true
	}
	return false
}

// Pending reports whether money in this state is still expected to move.
func (s State) Pending() bool {
	return s == StateUnpaid || s == StateOverdue || s == StateUpcoming
}

func (s Source) Valid() bool {
	switch s {
	case SourceActualIncome, SourceActualCost, SourceReceivable,
		SourceProfileExpense, SourceProjectedExpense, SourceRetainer:
		return true
	}
	return false
}

// Projected reports whether the source is a forecast rather than a recorded fact.
func (s Source) Projected() bool {
	return s == SourceProjectedExpense || s == SourceRetainer
}

// rank orders confidence from best (0) to worst (2); unknown values count as high.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceMedium:
		return 1
	case ConfidenceLow:
		return 2
	}
	return 0
}

// Lower returns the lower of two confidence levels.
func (c Confidence) Lower(o Confidence) Confidence {
	if o.rank() > c.rank() {
		return o
	}
	if c == "" {
		return ConfidenceHigh
	}
	return c
}

// Deleted reports whether the event was soft-deleted in the store.
func (e MoneyEvent) Deleted() bool {
	return e.DeletedAt != nil && !e.DeletedAt.IsZero()
}

// Date returns the UTC calendar day the event is booked on, the same day
// DateRange.Contains places it in whatever offset OccurredAt carries.
func (e MoneyEvent) Date() Date {
	return DateOf(e.OccurredAt.UTC())
}

// IsPaidIncome reports whether the event is realized income.
func (e MoneyEvent) IsPaidIncome() bool {
	return e.Direction == Inflow && e.State == StatePaid
}

func (e MoneyEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if !e.Direction.Valid() {
		return ErrInvalidDirection
	}
	if !e.Currency.Valid() {
		return ErrUnknownCurrency
	}
	if e.AmountMinor < 0 {
		return ErrInvalidAmount
	}
	if e.OccurredAt.IsZero() {
		return ErrInvalidDate
	}
	if !e.State.Valid() {
		return ErrInvalidState
	}
	if !e.Source.Valid() {
		return ErrInvalidSource
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	return nil
}
