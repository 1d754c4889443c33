// Package fx acquires exchange rates and converts amounts between currencies.
//
// Rates come from a remote rate service when it is reachable and fall back to
// the last rate persisted for the pair otherwise. Conversion never happens
// without an explicit, usable rate.
package fx

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"mutaba/internal/core"
)

// DefaultStaleAfter is the age past which a cached rate is considered stale.
const DefaultStaleAfter = 4 * time.Hour

// RateCacheEntry is the last known rate of a currency pair.
// Rate is the amount of Quote bought by one unit of Base.
type RateCacheEntry struct {
	Base      core.Currency `json:"base"`
	Quote     core.Currency `json:"quote"`
	Rate      float64       `json:"rate"`
	Date      core.Date     `json:"date"`
	FetchedAt time.Time     `json:"fetchedAt"`
}

// RateCacheRepository stores one entry per (base, quote) pair.
//
// Implementations swallow their own storage failures: Get reports a miss and
// Put does nothing, so a broken medium degrades to "no rate" instead of an error.
type RateCacheRepository interface {
	Get(base, quote core.Currency) (RateCacheEntry, bool)
	// Put replaces any entry stored for the same pair.
	Put(entry RateCacheEntry)
}

// PairWriter is implemented by repositories that store an entry and its
// inverse in one write, so a failure cannot leave one direction without the other.
type PairWriter interface {
	PutPair(entry RateCacheEntry)
}

// PairKey is the persisted key of a pair, e.g. "USD-ILS".
func PairKey(base, quote core.Currency) string {
	return string(base) + "-" + string(quote)
}

// Pair is an ordered currency pair.
type Pair struct {
	Base  core.Currency
	Quote core.Currency
}

func (p Pair) String() string { return PairKey(p.Base, p.Quote) }

// ParsePair parses "USD-ILS" (case-insensitive). Both sides must be supported
// currencies.
func ParsePair(s string) (Pair, error) {
	base, quote, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Pair{}, fmt.Errorf("invalid pair %q: want BASE-QUOTE", s)
	}
	b, err := core.ParseCurrency(base)
	if err != nil {
		return Pair{}, fmt.Errorf("invalid pair %q: %w", s, err)
	}
	q, err := core.ParseCurrency(quote)
	if err != nil {
		return Pair{}, fmt.Errorf("invalid pair %q: %w", s, err)
	}
	return Pair{Base: b, Quote: q}, nil
}

// ParsePairs parses a comma separated pair list, skipping blanks and duplicates.
func ParsePairs(s string) ([]Pair, error) {
	var out []Pair
	seen := map[Pair]struct{}{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePair(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func (e RateCacheEntry) Key() string { return PairKey(e.Base, e.Quote) }

// Inverse returns the entry for the opposite direction, sharing Date and FetchedAt.
func (e RateCacheEntry) Inverse() RateCacheEntry {
	return RateCacheEntry{
		Base:      e.Quote,
		Quote:     e.Base,
		Rate:      1 / e.Rate,
		Date:      e.Date,
		FetchedAt: e.FetchedAt,
	}
}

// IsStale reports whether entry is older than maxAge at now.
// Nothing in this package enforces it; see FallbackPolicy.
func IsStale(entry RateCacheEntry, maxAge time.Duration, now time.Time) bool {
	return now.Sub(entry.FetchedAt) > maxAge
}

// RateDocument is the persisted form of the whole cache: a single JSON object
// keyed by PairKey.
type RateDocument map[string]RateCacheEntry

// DecodeRateDocument parses a persisted document. An empty input is an empty document.
func DecodeRateDocument(data []byte) (RateDocument, error) {
	doc := RateDocument{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d RateDocument) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// MemoryCache is a process-local RateCacheRepository.
type MemoryCache struct {
	mu      sync.Mutex
	entries RateDocument
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: RateDocument{}}
}

func (c *MemoryCache) Get(base, quote core.Currency) (RateCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[PairKey(base, quote)]
	return e, ok
}

func (c *MemoryCache) Put(entry RateCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key()] = entry
}

// PutPair stores entry and its inverse under one lock.
func (c *MemoryCache) PutPair(entry RateCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inv := entry.Inverse()
	c.entries[entry.Key()] = entry
	c.entries[inv.Key()] = inv
}

// Snapshot returns a copy of every stored entry.
func (c *MemoryCache) Snapshot() RateDocument {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(RateDocument, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}
