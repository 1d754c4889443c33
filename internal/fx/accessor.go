package fx

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"mutaba/internal/cache"
	"mutaba/internal/core"
)

const (
	DefaultRetryAttempts = 2
	DefaultRetryDelay    = time.Second
	accessorMemoSize     = 64
	maxParallelLookups   = 4
)

// RetryPolicy controls how many extra lookups are made while the result is not live.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultRetryAttempts, Delay: DefaultRetryDelay}
}

// Accessor memoizes live rates for the stale-after window and retries lookups
// that did not come back live. Cached and unavailable results are never memoized,
// so the next call tries the network again.
type Accessor struct {
	fetcher Fetcher
	memo    *cache.LRUCache[RateResult]
	retry   RetryPolicy
	flights singleflight.Group
}

func NewAccessor(f Fetcher, staleAfter time.Duration, retry RetryPolicy) *Accessor {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Accessor{
		fetcher: f,
		memo:    cache.NewLRUCache[RateResult](accessorMemoSize, staleAfter),
		retry:   retry,
	}
}

// Get returns the rate for base→quote, from memory when a live rate is still fresh.
func (a *Accessor) Get(ctx context.Context, base, quote core.Currency) RateResult {
	key := PairKey(base, quote)
	if r, ok := a.memo.Get(key); ok {
		return r
	}
	v, _, _ := a.flights.Do(key, func() (any, error) {
		return a.load(ctx, base, quote), nil
	})
	return v.(RateResult)
}

func (a *Accessor) load(ctx context.Context, base, quote core.Currency) RateResult {
	res := a.fetcher.Fetch(ctx, base, quote)
	for attempt := 1; attempt <= a.retry.Attempts; attempt++ {
		if _, live := res.(Live); live {
			break
		}
		slog.DebugContext(ctx, "Retrying rate lookup",
			"base", base, "quote", quote, "attempt", attempt, "source", res.Source())
		select {
		case <-ctx.Done():
			return res
		case <-time.After(a.retry.Delay):
		}
		res = a.fetcher.Fetch(ctx, base, quote)
	}
	if _, live := res.(Live); live {
		a.memo.Set(PairKey(base, quote), res)
	}
	return res
}

// Invalidate drops the memoized result of a pair so the next Get refetches.
func (a *Accessor) Invalidate(base, quote core.Currency) {
	a.memo.Delete(PairKey(base, quote))
}

// RatesTo looks up every currency→target rate concurrently. The result always
// has one entry per input currency.
func (a *Accessor) RatesTo(ctx context.Context, target core.Currency, currencies []core.Currency) map[core.Currency]RateResult {
	results := make([]RateResult, len(currencies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, cur := range currencies {
		g.Go(func() error {
			results[i] = a.Get(gctx, cur, target)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[core.Currency]RateResult, len(currencies))
	for i, cur := range currencies {
		out[cur] = results[i]
	}
	return out
}

// Cleaner exposes the memo so a cache.Manager can sweep expired entries.
func (a *Accessor) Cleaner() cache.Cleaner { return a.memo }
