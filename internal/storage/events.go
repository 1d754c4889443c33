package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"mutaba/internal/core"
	applog "mutaba/internal/log"
)

const eventColumns = `id, direction, amount_minor, currency, occurred_at, state, source,
	source_entity_type, source_entity_id, counterparty_id, counterparty_name, counterparty_type,
	title, due_date, paid_at, deleted_at, confidence`

// ListEvents returns the live events dated inside r, oldest first. An empty
// currency lists all currencies. Rows that fail to decode are logged and skipped.
func (r *SQLiteRepository) ListEvents(ctx context.Context, dr core.DateRange, currency core.Currency) ([]core.MoneyEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM money_events WHERE deleted_at IS NULL`
	var args []any
	if !dr.From.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, formatTime(dr.From.Time))
	}
	if !dr.ToInclusive.IsZero() {
		query += ` AND occurred_at < ?`
		args = append(args, formatTime(dr.ToInclusive.AddDays(1).Time))
	}
	if currency != "" {
		query += ` AND currency = ?`
		args = append(args, string(currency))
	}
	query += ` ORDER BY occurred_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []core.MoneyEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable event row", logFields(applog.OpList, err)...)
			continue
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetEvent returns one event, including soft-deleted ones.
func (r *SQLiteRepository) GetEvent(ctx context.Context, id string) (core.MoneyEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM money_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		return core.MoneyEvent{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// SaveEvents upserts events in a single transaction. Invalid events abort the batch.
func (r *SQLiteRepository) SaveEvents(ctx context.Context, events []core.MoneyEvent) error {
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event %q: %w", e.ID, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO money_events (`+eventColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			direction = excluded.direction,
			amount_minor = excluded.amount_minor,
			currency = excluded.currency,
			occurred_at = excluded.occurred_at,
			state = excluded.state,
			source = excluded.source,
			source_entity_type = excluded.source_entity_type,
			source_entity_id = excluded.source_entity_id,
			counterparty_id = excluded.counterparty_id,
			counterparty_name = excluded.counterparty_name,
			counterparty_type = excluded.counterparty_type,
			title = excluded.title,
			due_date = excluded.due_date,
			paid_at = excluded.paid_at,
			deleted_at = excluded.deleted_at,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, e := range events {
		var cpID, cpName, cpType sql.NullString
		if e.Counterparty != nil {
			cpID, cpName, cpType = nullString(e.Counterparty.ID), nullString(e.Counterparty.Name), nullString(e.Counterparty.Type)
		}
		var due, paid, deleted sql.NullString
		if e.DueDate != nil && !e.DueDate.IsZero() {
			due = nullString(e.DueDate.String())
		}
		if e.PaidAt != nil && !e.PaidAt.IsZero() {
			paid = nullString(formatTime(*e.PaidAt))
		}
		if e.Deleted() {
			deleted = nullString(formatTime(*e.DeletedAt))
		}

		_, err := stmt.ExecContext(ctx,
			e.ID, string(e.Direction), e.AmountMinor, string(e.Currency), formatTime(e.OccurredAt),
			string(e.State), string(e.Source), e.SourceEntityType, e.SourceEntityID,
			cpID, cpName, cpType, e.Title, due, paid, deleted, string(e.Confidence), now)
		if err != nil {
			return fmt.Errorf("upsert event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "Events saved", logFields(applog.OpImport, nil, "count", len(events))...)
	return nil
}

// SoftDeleteEvent marks an event deleted; it disappears from ListEvents.
func (r *SQLiteRepository) SoftDeleteEvent(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE money_events SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(at), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("soft delete event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("soft delete event %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (core.MoneyEvent, error) {
	var (
		e                                  core.MoneyEvent
		direction, currency, state, source string
		occurredAt, confidence             string
		cpID, cpName, cpType               sql.NullString
		due, paid, deleted                 sql.NullString
	)
	err := row.Scan(&e.ID, &direction, &e.AmountMinor, &currency, &occurredAt, &state, &source,
		&e.SourceEntityType, &e.SourceEntityID, &cpID, &cpName, &cpType,
		&e.Title, &due, &paid, &deleted, &confidence)
	if err != nil {
		return core.MoneyEvent{}, err
	}

	e.Direction = core.Direction(direction)
	e.Currency = core.Currency(currency)
	e.State = core.State(state)
	e.Source = core.Source(source)
	e.Confidence = core.Confidence(confidence)

	if e.OccurredAt, err = parseTime(occurredAt); err != nil {
		return core.MoneyEvent{}, fmt.Errorf("event %s occurred_at: %w", e.ID, err)
	}
	if cpID.Valid || cpName.Valid {
		e.Counterparty = &core.Counterparty{ID: cpID.String, Name: cpName.String, Type: cpType.String}
	}
	if due.Valid {
		d, err := core.ParseDate(due.String)
		if err != nil {
			return core.MoneyEvent{}, fmt.Errorf("event %s due_date: %w", e.ID, err)
		}
		e.DueDate = &d
	}
	if paid.Valid {
		t, err := parseTime(paid.String)
		if err != nil {
			return core.MoneyEvent{}, fmt.Errorf("event %s paid_at: %w", e.ID, err)
		}
		e.PaidAt = &t
	}
	if deleted.Valid {
		t, err := parseTime(deleted.String)
		if err != nil {
			return core.MoneyEvent{}, fmt.Errorf("event %s deleted_at: %w", e.ID, err)
		}
		e.DeletedAt = &t
	}
	return e, nil
}
