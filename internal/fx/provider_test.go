package fx

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mutaba/internal/core"
)

var fixedNow = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// rateServer serves /latest with the given quote rates for any base.
func rateServer(t *testing.T, rates string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.URL.Path != "/latest" {
			http.NotFound(w, r)
			return
		}
		base := r.URL.Query().Get("base")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"amount":1,"base":%q,"date":"2024-01-02","rates":%s}`, base, rates)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProvider_FetchLive(t *testing.T) {
	srv := rateServer(t, `{"ILS":3.6,"EUR":0.91}`, nil)
	cache := NewMemoryCache()
	p := NewProvider(cache, WithBaseURL(srv.URL), WithClock(clock))

	res := p.Fetch(context.Background(), core.USD, core.ILS)
	live, ok := res.(Live)
	if !ok {
		t.Fatalf("Fetch() = %T, want Live", res)
	}
	if live.Rate != 3.6 {
		t.Errorf("rate = %v, want 3.6", live.Rate)
	}
	if got := live.Date.String(); got != "2024-01-02" {
		t.Errorf("date = %s, want 2024-01-02", got)
	}

	fwd, ok := cache.Get(core.USD, core.ILS)
	if !ok {
		t.Fatal("forward entry not persisted")
	}
	inv, ok := cache.Get(core.ILS, core.USD)
	if !ok {
		t.Fatal("inverse entry not persisted")
	}
	if math.Abs(fwd.Rate*inv.Rate-1) > 1e-9 {
		t.Errorf("inverse inconsistent: %v × %v", fwd.Rate, inv.Rate)
	}
	if !fwd.FetchedAt.Equal(inv.FetchedAt) {
		t.Errorf("fetchedAt differs: %v vs %v", fwd.FetchedAt, inv.FetchedAt)
	}
}

// splitCache records how the provider writes through a PairWriter.
type splitCache struct {
	*MemoryCache
	puts, pairPuts int
}

func (c *splitCache) Put(e RateCacheEntry) {
	c.puts++
	c.MemoryCache.Put(e)
}

func (c *splitCache) PutPair(e RateCacheEntry) {
	c.pairPuts++
	c.MemoryCache.PutPair(e)
}

func TestProvider_WritesPairInOneCall(t *testing.T) {
	srv := rateServer(t, `{"ILS":4}`, nil)
	cache := &splitCache{MemoryCache: NewMemoryCache()}
	p := NewProvider(cache, WithBaseURL(srv.URL), WithClock(clock))

	if _, ok := p.Fetch(context.Background(), core.USD, core.ILS).(Live); !ok {
		t.Fatal("Fetch() not live")
	}
	if cache.pairPuts != 1 || cache.puts != 0 {
		t.Errorf("PutPair calls = %d, Put calls = %d, want 1 and 0", cache.pairPuts, cache.puts)
	}
	if inv, ok := cache.Get(core.ILS, core.USD); !ok || inv.Rate != 0.25 {
		t.Errorf("inverse = %+v, %v", inv, ok)
	}
}

func TestProvider_IdentityPair(t *testing.T) {
	var hits int32
	srv := rateServer(t, `{}`, &hits)
	p := NewProvider(NewMemoryCache(), WithBaseURL(srv.URL), WithClock(clock))

	res := p.Fetch(context.Background(), core.EUR, core.EUR)
	if rate, ok := UsableRate(res); !ok || rate != 1 {
		t.Fatalf("identity rate = %v, %v; want 1, true", rate, ok)
	}
	if hits != 0 {
		t.Errorf("identity pair hit the network %d times", hits)
	}
}

func TestProvider_Fallback(t *testing.T) {
	seeded := RateCacheEntry{
		Base:      core.USD,
		Quote:     core.ILS,
		Rate:      3.5,
		Date:      core.NewDate(2024, 1, 1),
		FetchedAt: fixedNow.Add(-30 * time.Hour),
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		online  bool
		seed    bool
		policy  FallbackPolicy
		want    Source
	}{
		{name: "offline with cache", online: false, seed: true, want: SourceCached},
		{name: "offline without cache", online: false, seed: false, want: SourceNone},
		{
			name:    "server error",
			online:  true,
			seed:    true,
			handler: func(w http.ResponseWriter, r *http.Request) { http.Error(w, "boom", http.StatusBadGateway) },
			want:    SourceCached,
		},
		{
			name:   "negative rate",
			online: true,
			seed:   false,
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"amount":1,"base":"USD","date":"2024-01-02","rates":{"ILS":-1}}`)
			},
			want: SourceNone,
		},
		{
			name:   "non numeric rate",
			online: true,
			seed:   true,
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"amount":1,"base":"USD","date":"2024-01-02","rates":{"ILS":"3.6"}}`)
			},
			want: SourceCached,
		},
		{
			name:   "quote missing",
			online: true,
			seed:   true,
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"amount":1,"base":"USD","date":"2024-01-02","rates":{"EUR":0.9}}`)
			},
			want: SourceCached,
		},
		{
			name:   "malformed body",
			online: true,
			seed:   true,
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `not json`)
			},
			want: SourceCached,
		},
		{name: "max age rejects old entry", online: false, seed: true, policy: MaxAgeFallback(24 * time.Hour), want: SourceNone},
		{name: "max age accepts young entry", online: false, seed: true, policy: MaxAgeFallback(48 * time.Hour), want: SourceCached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := tt.handler
			if handler == nil {
				handler = func(w http.ResponseWriter, r *http.Request) {
					t.Error("network used while offline")
				}
			}
			srv := httptest.NewServer(handler)
			defer srv.Close()

			cache := NewMemoryCache()
			if tt.seed {
				cache.Put(seeded)
			}
			p := NewProvider(cache,
				WithBaseURL(srv.URL),
				WithClock(clock),
				WithConnectivity(StaticConnectivity(tt.online)),
				WithFallbackPolicy(tt.policy),
			)

			res := p.Fetch(context.Background(), core.USD, core.ILS)
			if res.Source() != tt.want {
				t.Fatalf("source = %s, want %s", res.Source(), tt.want)
			}
			if c, ok := res.(Cached); ok {
				if c.Rate != 3.5 {
					t.Errorf("cached rate = %v, want 3.5", c.Rate)
				}
				if c.Age != 30*time.Hour {
					t.Errorf("age = %v, want 30h", c.Age)
				}
			}
			if got, _ := cache.Get(core.USD, core.ILS); tt.seed && got.Rate != 3.5 {
				t.Errorf("failed fetch overwrote cache: %v", got.Rate)
			}
		})
	}
}

func TestProvider_SharesInFlightRequest(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		fmt.Fprint(w, `{"amount":1,"base":"USD","date":"2024-01-02","rates":{"ILS":3.6}}`)
	}))
	defer srv.Close()

	p := NewProvider(NewMemoryCache(), WithBaseURL(srv.URL), WithClock(clock))

	const callers = 5
	var wg sync.WaitGroup
	results := make([]RateResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Fetch(context.Background(), core.USD, core.ILS)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}
	for i, r := range results {
		if r.Source() != SourceLive {
			t.Errorf("caller %d got %s", i, r.Source())
		}
	}
}

func TestProvider_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"amount":1,"base":"USD","date":"2024-01-02","rates":{"ILS":3.7}}`)
	}))
	defer srv.Close()

	cache := NewMemoryCache()
	cache.Put(RateCacheEntry{Base: core.USD, Quote: core.ILS, Rate: 3.5, FetchedAt: fixedNow.Add(-time.Hour)})
	p := NewProvider(cache, WithBaseURL(srv.URL), WithClock(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := p.Fetch(ctx, core.USD, core.ILS)
	if res.Source() != SourceCached {
		t.Fatalf("cancelled caller got %s, want cached", res.Source())
	}

	close(release)
	res = p.Fetch(context.Background(), core.USD, core.ILS)
	if rate, _ := UsableRate(res); rate != 3.7 {
		t.Fatalf("rate after release = %v, want 3.7", rate)
	}
	if e, _ := cache.Get(core.ILS, core.USD); math.Abs(e.Rate*3.7-1) > 1e-9 {
		t.Errorf("inverse not updated: %v", e.Rate)
	}
}

func TestIsStale(t *testing.T) {
	e := RateCacheEntry{FetchedAt: fixedNow.Add(-DefaultStaleAfter)}
	if IsStale(e, DefaultStaleAfter, fixedNow) {
		t.Error("entry exactly at the limit reported stale")
	}
	if !IsStale(e, DefaultStaleAfter, fixedNow.Add(time.Second)) {
		t.Error("entry past the limit reported fresh")
	}
}

func TestRateDocument_RoundTrip(t *testing.T) {
	doc, err := DecodeRateDocument(nil)
	if err != nil || len(doc) != 0 {
		t.Fatalf("DecodeRateDocument(nil) = %v, %v", doc, err)
	}
	e := RateCacheEntry{Base: core.EUR, Quote: core.USD, Rate: 1.1, Date: core.NewDate(2024, 1, 2), FetchedAt: fixedNow}
	doc[e.Key()] = e
	data, err := doc.Encode()
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeRateDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := back["EUR-USD"]; got.Rate != 1.1 || !got.FetchedAt.Equal(fixedNow) || got.Date.String() != "2024-01-02" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestParsePairs(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "USD-ILS,EUR-ILS", want: []string{"USD-ILS", "EUR-ILS"}},
		{in: " usd-ils , USD-ILS,", want: []string{"USD-ILS"}},
		{in: "", want: nil},
		{in: "USDILS", wantErr: true},
		{in: "USD-GBP", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePairs(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePairs(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParsePairs(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Errorf("pair %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}
