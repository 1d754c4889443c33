package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"mutaba/internal/core"
	applog "mutaba/internal/log"
)

const (
	DefaultBaseURL      = "https://api.frankfurter.dev/v1"
	DefaultFetchTimeout = 10 * time.Second
)

var (
	ErrRateStatus  = errors.New("rate service returned non-2xx status")
	ErrRateMissing = errors.New("rate service response has no usable rate")
)

// Fetcher resolves the rate of a currency pair. It never returns an error:
// every failure is folded into Cached or Unavailable.
type Fetcher interface {
	Fetch(ctx context.Context, base, quote core.Currency) RateResult
}

// latestResponse is the body of GET {base}/latest?base=XXX.
type latestResponse struct {
	Amount float64        `json:"amount"`
	Base   string         `json:"base"`
	Date   string         `json:"date"`
	Rates  map[string]any `json:"rates"`
}

// Provider fetches rates from the rate service, persists them, and falls back
// to the persisted entry when the service cannot be reached.
type Provider struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	cache   RateCacheRepository
	online  Connectivity
	policy  FallbackPolicy
	now     func() time.Time
	flights singleflight.Group
}

type ProviderOption func(*Provider)

func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

func WithBaseURL(u string) ProviderOption {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

func WithFetchTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithConnectivity(c Connectivity) ProviderOption {
	return func(p *Provider) { p.online = c }
}

func WithFallbackPolicy(fp FallbackPolicy) ProviderOption {
	return func(p *Provider) { p.policy = fp }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

func NewProvider(cache RateCacheRepository, opts ...ProviderOption) *Provider {
	p := &Provider{
		client:  &http.Client{},
		baseURL: DefaultBaseURL,
		timeout: DefaultFetchTimeout,
		cache:   cache,
		online:  StaticConnectivity(true),
		policy:  UnlimitedAgeFallback,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch returns the rate for base→quote.
//
// Concurrent calls for the same pair share a single request. If ctx ends
// before the shared request does, the caller gets the cache fallback; the
// request itself runs to completion and still updates the cache.
func (p *Provider) Fetch(ctx context.Context, base, quote core.Currency) RateResult {
	if base == quote {
		now := p.now()
		return Live{Base: base, Quote: quote, Rate: 1, Date: core.DateOf(now.UTC()), FetchedAt: now}
	}

	ch := p.flights.DoChan(PairKey(base, quote), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.fetch(fctx, base, quote), nil
	})

	select {
	case res := <-ch:
		return res.Val.(RateResult)
	case <-ctx.Done():
		slog.DebugContext(ctx, "Rate lookup abandoned by caller",
			"base", base, "quote", quote, "error", ctx.Err())
		return p.fallback(base, quote)
	}
}

func (p *Provider) fetch(ctx context.Context, base, quote core.Currency) RateResult {
	if !p.online.Online(ctx) {
		slog.DebugContext(ctx, "Offline, using cached rate", "base", base, "quote", quote)
		return p.fallback(base, quote)
	}

	entry, err := p.fetchLatest(ctx, base, quote)
	if err != nil {
		res := p.fallback(base, quote)
		rate, _ := UsableRate(res)
		fields := applog.NewFields().
			WithComponent(applog.ComponentFX).
			WithOperation(applog.OpRefresh).
			WithRate(PairKey(base, quote), rate, string(res.Source())).
			WithError(err)
		slog.WarnContext(ctx, "Failed to fetch live rate, falling back", fields.ToSlice()...)
		return res
	}

	p.store(entry)

	return Live{
		Base:      base,
		Quote:     quote,
		Rate:      entry.Rate,
		Date:      entry.Date,
		FetchedAt: entry.FetchedAt,
	}
}

// store persists entry and its inverse, atomically when the repository allows it.
func (p *Provider) store(entry RateCacheEntry) {
	if pw, ok := p.cache.(PairWriter); ok {
		pw.PutPair(entry)
		return
	}
	p.cache.Put(entry)
	p.cache.Put(entry.Inverse())
}

func (p *Provider) fetchLatest(ctx context.Context, base, quote core.Currency) (RateCacheEntry, error) {
	u := p.baseURL + "/latest?base=" + url.QueryEscape(string(base))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return RateCacheEntry{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return RateCacheEntry{}, fmt.Errorf("request %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return RateCacheEntry{}, fmt.Errorf("%w: %d", ErrRateStatus, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RateCacheEntry{}, fmt.Errorf("decode response: %w", err)
	}

	rate, ok := body.Rates[string(quote)].(float64)
	if !ok || !(rate > 0) {
		return RateCacheEntry{}, fmt.Errorf("%w: %s-%s", ErrRateMissing, base, quote)
	}

	fetchedAt := p.now()
	date, err := core.ParseDate(body.Date)
	if err != nil {
		date = core.DateOf(fetchedAt.UTC())
	}

	return RateCacheEntry{
		Base:      base,
		Quote:     quote,
		Rate:      rate,
		Date:      date,
		FetchedAt: fetchedAt,
	}, nil
}

func (p *Provider) fallback(base, quote core.Currency) RateResult {
	entry, ok := p.cache.Get(base, quote)
	if !ok || !(entry.Rate > 0) {
		return Unavailable{Base: base, Quote: quote}
	}
	age := p.now().Sub(entry.FetchedAt)
	if !p.policy.Allows(age) {
		return Unavailable{Base: base, Quote: quote}
	}
	return Cached{
		Base:      base,
		Quote:     quote,
		Rate:      entry.Rate,
		Date:      entry.Date,
		FetchedAt: entry.FetchedAt,
		Age:       age,
	}
}
