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

// ListRecurringRules returns every rule, paused ones included.
func (r *SQLiteRepository) ListRecurringRules(ctx context.Context) ([]core.RecurringRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, title, vendor, amount_minor, currency, frequency,
		start_date, end_mode, end_date, paused FROM recurring_rules ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("query recurring rules: %w", err)
	}
	defer rows.Close()

	var rules []core.RecurringRule
	for rows.Next() {
		var (
			rule                             core.RecurringRule
			currency, frequency, start, mode string
			end                              sql.NullString
			paused                           int
		)
		if err := rows.Scan(&rule.ID, &rule.Title, &rule.Vendor, &rule.AmountMinor, &currency,
			&frequency, &start, &mode, &end, &paused); err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		rule.Currency = core.Currency(currency)
		rule.Frequency = core.Frequency(frequency)
		rule.EndMode = core.EndMode(mode)
		rule.Paused = paused != 0

		if rule.StartDate, err = core.ParseDate(start); err != nil {
			slog.WarnContext(ctx, "Skipping recurring rule with bad start date", logFields(applog.OpList, err, "id", rule.ID)...)
			continue
		}
		if end.Valid {
			d, err := core.ParseDate(end.String)
			if err != nil {
				slog.WarnContext(ctx, "Ignoring bad recurring rule end date", logFields(applog.OpList, err, "id", rule.ID)...)
			} else {
				rule.EndDate = &d
			}
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveRecurringRule inserts or replaces a rule.
func (r *SQLiteRepository) SaveRecurringRule(ctx context.Context, rule core.RecurringRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("recurring rule %q: %w", rule.ID, err)
	}
	mode := rule.EndMode
	if mode == "" {
		mode = core.EndNever
	}
	var end sql.NullString
	if rule.EndDate != nil {
		end = nullString(rule.EndDate.String())
	}
	paused := 0
	if rule.Paused {
		paused = 1
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO recurring_rules
		(id, title, vendor, amount_minor, currency, frequency, start_date, end_mode, end_date, paused, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			vendor = excluded.vendor,
			amount_minor = excluded.amount_minor,
			currency = excluded.currency,
			frequency = excluded.frequency,
			start_date = excluded.start_date,
			end_mode = excluded.end_mode,
			end_date = excluded.end_date,
			paused = excluded.paused,
			updated_at = excluded.updated_at`,
		rule.ID, rule.Title, rule.Vendor, rule.AmountMinor, string(rule.Currency), string(rule.Frequency),
		rule.StartDate.String(), string(mode), end, paused, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save recurring rule %s: %w", rule.ID, err)
	}
	return nil
}

// SetRulePaused pauses or resumes a rule.
func (r *SQLiteRepository) SetRulePaused(ctx context.Context, id string, paused bool) error {
	v := 0
	if paused {
		v = 1
	}
	res, err := r.db.ExecContext(ctx, `UPDATE recurring_rules SET paused = ?, updated_at = ? WHERE id = ?`,
		v, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set rule %s paused: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set rule %s paused: %w", id, sql.ErrNoRows)
	}
	return nil
}
