package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mutaba/internal/core"
	"mutaba/internal/fx"
	applog "mutaba/internal/log"
)

// rateDocumentKey is the kv_store row that holds every cached rate as one JSON object.
const rateDocumentKey = "fx_rates"

const rateCacheTimeout = 5 * time.Second

// RateCache persists the rate cache document. Storage failures are logged and
// swallowed: reads miss and writes do nothing.
type RateCache struct {
	db *sql.DB
}

var (
	_ fx.RateCacheRepository = (*RateCache)(nil)
	_ fx.PairWriter          = (*RateCache)(nil)
)

func (r *SQLiteRepository) RateCache() *RateCache {
	return &RateCache{db: r.db}
}

func (c *RateCache) Get(base, quote core.Currency) (fx.RateCacheEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), rateCacheTimeout)
	defer cancel()

	doc, err := loadRateDocument(ctx, c.db)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read rate cache", logFields(applog.OpRead, err)...)
		return fx.RateCacheEntry{}, false
	}
	e, ok := doc[fx.PairKey(base, quote)]
	return e, ok
}

// Put replaces the pair's entry by rewriting the whole document in one transaction.
func (c *RateCache) Put(entry fx.RateCacheEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), rateCacheTimeout)
	defer cancel()

	if err := c.put(ctx, entry); err != nil {
		slog.WarnContext(ctx, "Failed to write rate cache", logFields(applog.OpWrite, err, "pair", entry.Key())...)
	}
}

// PutPair writes entry and its inverse in the same transaction.
func (c *RateCache) PutPair(entry fx.RateCacheEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), rateCacheTimeout)
	defer cancel()

	if err := c.put(ctx, entry, entry.Inverse()); err != nil {
		slog.WarnContext(ctx, "Failed to write rate cache", logFields(applog.OpWrite, err, "pair", entry.Key())...)
	}
}

func (c *RateCache) put(ctx context.Context, entries ...fx.RateCacheEntry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	doc, err := loadRateDocument(ctx, tx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		doc[e.Key()] = e
	}

	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("encode rate document: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		rateDocumentKey, string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("write rate document: %w", err)
	}
	return tx.Commit()
}

// All returns every cached entry. Unlike Get it reports storage errors.
func (c *RateCache) All(ctx context.Context) (fx.RateDocument, error) {
	return loadRateDocument(ctx, c.db)
}

func loadRateDocument(ctx context.Context, q querier) (fx.RateDocument, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, rateDocumentKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fx.RateDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rate document: %w", err)
	}
	doc, err := fx.DecodeRateDocument([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode rate document: %w", err)
	}
	return doc, nil
}
