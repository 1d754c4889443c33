package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"mutaba/internal/core"
	"mutaba/internal/fx"
	applog "mutaba/internal/log"
)

// RecordStore is the write side of the record store.
type RecordStore interface {
	SaveEvents(ctx context.Context, events []core.MoneyEvent) error
	SoftDeleteEvent(ctx context.Context, id string, at time.Time) error
	SaveRecurringRule(ctx context.Context, rule core.RecurringRule) error
	SetRulePaused(ctx context.Context, id string, paused bool) error
}

// RefreshPublisher asks the rate worker to refetch pairs; *amqp.Client satisfies it.
type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, pairs ...string) error
}

// RecordService writes events and recurring rules locally, then asks the
// rate worker to refresh the pairs the new records touch.
type RecordService struct {
	store      RecordStore
	publisher  RefreshPublisher
	currencies []core.Currency
	now        func() time.Time
}

func NewRecordService(store RecordStore, publisher RefreshPublisher, currencies []core.Currency) *RecordService {
	if len(currencies) == 0 {
		currencies = core.SupportedCurrencies
	}
	return &RecordService{
		store:      store,
		publisher:  publisher,
		currencies: currencies,
		now:        time.Now,
	}
}

// ImportEvents validates and upserts events as one batch.
func (s *RecordService) ImportEvents(ctx context.Context, events []core.MoneyEvent) error {
	seen := make(map[string]struct{}, len(events))
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event %d (%q): %w", i, e.ID, err)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("event %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	if len(events) == 0 {
		return nil
	}

	// Save locally first; the refresh request is best effort.
	if err := s.store.SaveEvents(ctx, events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}

	used := make([]core.Currency, 0, len(events))
	for _, e := range events {
		used = append(used, e.Currency)
	}
	s.requestRefresh(ctx, used)
	return nil
}

// ImportRules validates every rule before saving any of them.
func (s *RecordService) ImportRules(ctx context.Context, rules []core.RecurringRule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d (%q): %w", i, r.ID, err)
		}
	}
	used := make([]core.Currency, 0, len(rules))
	for _, r := range rules {
		if err := s.store.SaveRecurringRule(ctx, r); err != nil {
			return fmt.Errorf("save rules: %w", err)
		}
		used = append(used, r.Currency)
	}
	s.requestRefresh(ctx, used)
	return nil
}

func (s *RecordService) DeleteEvent(ctx context.Context, id string) error {
	if err := s.store.SoftDeleteEvent(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (s *RecordService) PauseRule(ctx context.Context, id string, paused bool) error {
	if err := s.store.SetRulePaused(ctx, id, paused); err != nil {
		return fmt.Errorf("pause rule: %w", err)
	}
	return nil
}

// refreshPairs pairs each used currency with every other enabled one.
func (s *RecordService) refreshPairs(used []core.Currency) []string {
	set := map[string]struct{}{}
	for _, base := range used {
		for _, quote := range s.currencies {
			if base != quote {
				set[fx.PairKey(base, quote)] = struct{}{}
			}
		}
	}
	pairs := make([]string, 0, len(set))
	for p := range set {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	return pairs
}

func (s *RecordService) requestRefresh(ctx context.Context, used []core.Currency) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Refresh publisher not configured, skipping refresh request")
		return
	}
	pairs := s.refreshPairs(used)
	if len(pairs) == 0 {
		return
	}
	if err := s.publisher.PublishRefresh(ctx, pairs...); err != nil {
		fields := applog.NewFields().WithOperation(applog.OpImport).WithError(err)
		slog.ErrorContext(ctx, "Failed to publish refresh request", append(fields.ToSlice(), "pairs", pairs)...)
	}
}

// ReadEvents decodes a JSON array of events.
func ReadEvents(r io.Reader) ([]core.MoneyEvent, error) {
	var events []core.MoneyEvent
	if err := decodeStrict(r, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// ReadRules decodes a JSON array of recurring rules.
func ReadRules(r io.Reader) ([]core.RecurringRule, error) {
	var rules []core.RecurringRule
	if err := decodeStrict(r, &rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return rules, nil
}

func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
