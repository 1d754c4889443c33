// Package worker keeps the shared rate cache warm.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"mutaba/internal/amqp"
	"mutaba/internal/core"
	"mutaba/internal/fx"
	applog "mutaba/internal/log"
)

const maxParallelRefresh = 4

// Publisher announces live rates to other processes.
type Publisher interface {
	PublishRateUpdated(ctx context.Context, msg *amqp.RateUpdatedMessage) error
}

// Invalidator drops memoized lookups of a pair.
type Invalidator interface {
	Invalidate(base, quote core.Currency)
}

// RefreshReport counts the outcome of one refresh round by result source.
type RefreshReport struct {
	Live        int
	Cached      int
	Unavailable int
}

func (r RefreshReport) Total() int { return r.Live + r.Cached + r.Unavailable }

// RateRefreshWorker refetches configured pairs on a timer and on request.
// Every live rate lands in the provider's cache; the worker then invalidates
// local memos and announces the update.
type RateRefreshWorker struct {
	fetcher     fx.Fetcher
	pairs       []fx.Pair
	interval    time.Duration
	publisher   Publisher
	invalidator Invalidator
}

type Option func(*RateRefreshWorker)

func WithPublisher(p Publisher) Option {
	return func(w *RateRefreshWorker) { w.publisher = p }
}

func WithInvalidator(i Invalidator) Option {
	return func(w *RateRefreshWorker) { w.invalidator = i }
}

func NewRateRefreshWorker(fetcher fx.Fetcher, pairs []fx.Pair, interval time.Duration, opts ...Option) *RateRefreshWorker {
	if interval <= 0 {
		interval = fx.DefaultStaleAfter
	}
	w := &RateRefreshWorker{
		fetcher:  fetcher,
		pairs:    pairs,
		interval: interval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Pairs returns the configured pairs.
func (w *RateRefreshWorker) Pairs() []fx.Pair { return w.pairs }

// Refresh fetches pairs concurrently. Failures are counted, never returned.
func (w *RateRefreshWorker) Refresh(ctx context.Context, pairs []fx.Pair) RefreshReport {
	results := make([]fx.RateResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelRefresh)
	for i, p := range pairs {
		g.Go(func() error {
			results[i] = w.fetcher.Fetch(gctx, p.Base, p.Quote)
			w.announce(gctx, results[i])
			return nil
		})
	}
	_ = g.Wait()

	var report RefreshReport
	for _, res := range results {
		switch res.Source() {
		case fx.SourceLive:
			report.Live++
		case fx.SourceCached:
			report.Cached++
		default:
			report.Unavailable++
		}
	}
	slog.InfoContext(ctx, "Rate refresh completed",
		"pairs", len(pairs),
		"live", report.Live,
		"cached", report.Cached,
		"unavailable", report.Unavailable)
	return report
}

// RefreshAll refreshes every configured pair.
func (w *RateRefreshWorker) RefreshAll(ctx context.Context) RefreshReport {
	return w.Refresh(ctx, w.pairs)
}

func (w *RateRefreshWorker) announce(ctx context.Context, res fx.RateResult) {
	base, quote := res.Pair()
	rate, _ := fx.UsableRate(res)
	fields := applog.NewFields().
		WithComponent(applog.ComponentWorker).
		WithOperation(applog.OpRefresh).
		WithRate(fx.PairKey(base, quote), rate, string(res.Source()))

	live, ok := res.(fx.Live)
	if !ok {
		slog.WarnContext(ctx, "Rate not refreshed", fields.ToSlice()...)
		return
	}
	if w.invalidator != nil {
		w.invalidator.Invalidate(live.Base, live.Quote)
		w.invalidator.Invalidate(live.Quote, live.Base)
	}
	if w.publisher == nil {
		return
	}
	msg := amqp.NewRateUpdatedMessage(string(live.Base), string(live.Quote), live.Rate, live.Date.String(), live.FetchedAt)
	if err := w.publisher.PublishRateUpdated(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish rate update", fields.WithError(err).ToSlice()...)
	}
}

// HandleRefreshRequest serves an AMQP refresh request. Unparseable pairs are
// logged and skipped so the delivery is not requeued forever.
func (w *RateRefreshWorker) HandleRefreshRequest(ctx context.Context, req *amqp.RefreshRequest) error {
	pairs := w.pairs
	if len(req.Pairs) > 0 {
		pairs = make([]fx.Pair, 0, len(req.Pairs))
		for _, s := range req.Pairs {
			p, err := fx.ParsePair(s)
			if err != nil {
				slog.WarnContext(ctx, "Skipping refresh pair", "id", req.ID, "pair", s, "error", err)
				continue
			}
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	w.Refresh(ctx, pairs)
	return nil
}

// Run refreshes once immediately, then every interval until ctx is done.
func (w *RateRefreshWorker) Run(ctx context.Context) error {
	if len(w.pairs) == 0 {
		return fmt.Errorf("no pairs configured")
	}
	slog.InfoContext(ctx, "Starting rate refresh loop", "pairs", len(w.pairs), "interval", w.interval)
	w.RefreshAll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.RefreshAll(ctx)
		}
	}
}

// InvalidateOnUpdate adapts an Invalidator to the rate update consumer, so a
// process holding memoized rates drops them when another process refreshes.
func InvalidateOnUpdate(inv Invalidator) func(context.Context, *amqp.RateUpdatedMessage) error {
	return func(ctx context.Context, msg *amqp.RateUpdatedMessage) error {
		base, err := core.ParseCurrency(msg.Base)
		if err != nil {
			slog.WarnContext(ctx, "Ignoring rate update", "id", msg.ID, "error", err)
			return nil
		}
		quote, err := core.ParseCurrency(msg.Quote)
		if err != nil {
			slog.WarnContext(ctx, "Ignoring rate update", "id", msg.ID, "error", err)
			return nil
		}
		inv.Invalidate(base, quote)
		inv.Invalidate(quote, base)
		slog.DebugContext(ctx, "Rate memo invalidated", "pair", fx.PairKey(base, quote))
		return nil
	}
}
