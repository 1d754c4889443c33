package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mutaba/internal/aggregate"
	"mutaba/internal/core"
	"mutaba/internal/fx"
	applog "mutaba/internal/log"
	"mutaba/internal/services"
)

// Answers is the read API the handlers serve; *services.AnswersService
// implements it.
type Answers interface {
	Currencies() []core.Currency
	Month(ctx context.Context, f core.Filters, opening aggregate.Opening) (services.MonthReport, error)
	Year(ctx context.Context, f core.Filters, opening aggregate.Opening) (core.YearSummary, error)
	Totals(ctx context.Context, r core.DateRange, f core.Filters) (services.TotalsReport, error)
	KPIs(ctx context.Context, f core.Filters, opening aggregate.Opening) (map[core.Currency]core.KpiBundle, error)
	Guidance(ctx context.Context, f core.Filters, opening aggregate.Opening) ([]core.GuidanceItem, error)
	Rates(ctx context.Context, target core.Currency) map[core.Currency]fx.RateResult
	Unify(ctx context.Context, amounts map[core.Currency]int64, target core.Currency) services.UnifyResult
	UnifyKPIs(ctx context.Context, bundles map[core.Currency]core.KpiBundle, target core.Currency) services.UnifiedKPIs
}

var _ Answers = (*services.AnswersService)(nil)

type Server struct {
	http.Server
	answers Answers
	ready   func(context.Context) error
	now     func() time.Time
	logger  *applog.Logger
	limiter *writeLimiter
	metrics *securityMetrics

	shutdownOnce sync.Once
}

type Option func(*Server)

// WithReadiness sets the check behind /readyz, typically a database ping.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// WithClock overrides the clock used for the default report month.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, answers Answers, opts ...Option) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		answers: answers,
		ready:   func(context.Context) error { return nil },
		now:     time.Now,
		logger:  applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentHTTP}),
		limiter: newWriteLimiter(writesPerWindow, writeWindow, time.Now),
		metrics: &securityMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/fx", s.handleRates)
	mux.HandleFunc("POST /api/unify", s.handleUnify)
	mux.HandleFunc("GET /api/months/{month}", s.handleMonth)
	mux.HandleFunc("GET /api/years/{year}", s.handleYear)
	mux.HandleFunc("GET /api/totals", s.handleTotals)
	mux.HandleFunc("GET /api/kpis", s.handleKPIs)
	mux.HandleFunc("GET /api/guidance", s.handleGuidance)

	s.Handler = applog.Middleware(s.logger)(s.withSecurityHeaders(mux))
	return s
}

// Shutdown stops the limiter sweep and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// SecurityStats returns the request counters kept by the security middleware.
func (s *Server) SecurityStats() SecurityStats {
	return s.metrics.snapshot()
}
