package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"mutaba/internal/amqp"
	"mutaba/internal/core"
	"mutaba/internal/fx"
)

var fetchedAt = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type stubFetcher struct {
	mu    sync.Mutex
	calls []string
	// down lists pairs that only have a cached rate.
	down map[string]bool
}

func (f *stubFetcher) Fetch(_ context.Context, base, quote core.Currency) fx.RateResult {
	key := fx.PairKey(base, quote)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if f.down[key] {
		return fx.Cached{Base: base, Quote: quote, Rate: 3.5, FetchedAt: fetchedAt.Add(-48 * time.Hour), Age: 48 * time.Hour}
	}
	if base == core.EUR && quote == core.USD {
		return fx.Unavailable{Base: base, Quote: quote}
	}
	return fx.Live{Base: base, Quote: quote, Rate: 3.7, Date: core.DateOf(fetchedAt), FetchedAt: fetchedAt}
}

func (f *stubFetcher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.RateUpdatedMessage
	err  error
}

func (p *recordingPublisher) PublishRateUpdated(_ context.Context, msg *amqp.RateUpdatedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

type recordingInvalidator struct {
	mu   sync.Mutex
	keys map[string]int
}

func (i *recordingInvalidator) Invalidate(base, quote core.Currency) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.keys == nil {
		i.keys = map[string]int{}
	}
	i.keys[fx.PairKey(base, quote)]++
}

func mustPairs(t *testing.T, s string) []fx.Pair {
	t.Helper()
	pairs, err := fx.ParsePairs(s)
	if err != nil {
		t.Fatalf("ParsePairs(%q): %v", s, err)
	}
	return pairs
}

func TestRefreshAll_CountsAndAnnouncesLiveOnly(t *testing.T) {
	fetcher := &stubFetcher{down: map[string]bool{"ILS-USD": true}}
	pub := &recordingPublisher{}
	inv := &recordingInvalidator{}
	w := NewRateRefreshWorker(fetcher, mustPairs(t, "USD-ILS,EUR-USD,ILS-USD"), time.Hour,
		WithPublisher(pub), WithInvalidator(inv))

	report := w.RefreshAll(context.Background())

	if report != (RefreshReport{Live: 1, Cached: 1, Unavailable: 1}) {
		t.Fatalf("report = %+v", report)
	}
	if report.Total() != 3 {
		t.Errorf("Total() = %d, want 3", report.Total())
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.Base != "USD" || msg.Quote != "ILS" || msg.Rate != 3.7 || msg.Date != "2026-03-02" {
		t.Errorf("message = %+v", msg)
	}
	if inv.keys["USD-ILS"] != 1 || inv.keys["ILS-USD"] != 1 || len(inv.keys) != 2 {
		t.Errorf("invalidated = %v, want both directions of USD-ILS", inv.keys)
	}
}

func TestRefresh_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("circuit breaker is open")}
	w := NewRateRefreshWorker(&stubFetcher{}, mustPairs(t, "USD-ILS,EUR-ILS"), time.Hour, WithPublisher(pub))

	report := w.RefreshAll(context.Background())
	if report.Live != 2 {
		t.Errorf("Live = %d, want 2", report.Live)
	}
	if len(pub.msgs) != 2 {
		t.Errorf("publish attempts = %d, want 2", len(pub.msgs))
	}
}

func TestRefresh_LogsRateFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	f := &stubFetcher{down: map[string]bool{"USD-ILS": true}}
	w := NewRateRefreshWorker(f, mustPairs(t, "USD-ILS"), time.Hour)
	w.Refresh(context.Background(), w.Pairs())

	out := buf.String()
	for _, want := range []string{
		`msg="Rate not refreshed"`,
		"component=worker",
		"operation=refresh",
		"pair=USD-ILS",
		"rate=3.5",
		"source=cached",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestHandleRefreshRequest(t *testing.T) {
	tests := []struct {
		name  string
		pairs []string
		want  []string
	}{
		{name: "empty means configured", pairs: nil, want: []string{"EUR-ILS", "USD-ILS"}},
		{name: "explicit pairs", pairs: []string{"usd-eur"}, want: []string{"USD-EUR"}},
		{name: "bad pairs skipped", pairs: []string{"USD-XYZ", "EUR-USD"}, want: []string{"EUR-USD"}},
		{name: "nothing valid", pairs: []string{"nope"}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &stubFetcher{}
			w := NewRateRefreshWorker(fetcher, mustPairs(t, "USD-ILS,EUR-ILS"), time.Hour)

			if err := w.HandleRefreshRequest(context.Background(), amqp.NewRefreshRequest(tt.pairs...)); err != nil {
				t.Fatalf("HandleRefreshRequest() error = %v", err)
			}
			got := fetcher.called()
			if len(got) != len(tt.want) {
				t.Fatalf("fetched %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("fetched %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestRun_RefreshesImmediatelyAndStops(t *testing.T) {
	fetcher := &stubFetcher{}
	w := NewRateRefreshWorker(fetcher, mustPairs(t, "USD-ILS"), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(fetcher.called()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no refresh on startup")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_NoPairs(t *testing.T) {
	w := NewRateRefreshWorker(&stubFetcher{}, nil, 0)
	if err := w.Run(context.Background()); err == nil {
		t.Error("Run() with no pairs should fail")
	}
}

func TestInvalidateOnUpdate(t *testing.T) {
	inv := &recordingInvalidator{}
	handle := InvalidateOnUpdate(inv)

	msg := amqp.NewRateUpdatedMessage("EUR", "ILS", 4.0, "2026-03-02", fetchedAt)
	if err := handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if inv.keys["EUR-ILS"] != 1 || inv.keys["ILS-EUR"] != 1 {
		t.Errorf("invalidated = %v", inv.keys)
	}

	bad := amqp.NewRateUpdatedMessage("EUR", "GBP", 1.1, "2026-03-02", fetchedAt)
	if err := handle(context.Background(), bad); err != nil {
		t.Errorf("unsupported currency should be ignored, got %v", err)
	}
	if len(inv.keys) != 2 {
		t.Errorf("unsupported pair invalidated something: %v", inv.keys)
	}
}
