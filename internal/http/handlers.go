package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"mutaba/internal/aggregate"
	"mutaba/internal/core"
	"mutaba/internal/fx"
	applog "mutaba/internal/log"
	"mutaba/internal/services"
)

// RatesResponse is the body of GET /api/fx.
type RatesResponse struct {
	Target core.Currency                   `json:"target"`
	Rates  map[core.Currency]fx.ResultView `json:"rates"`
}

// KPIResponse is the body of GET /api/kpis. Unified is present only when
// unifyTo was requested.
type KPIResponse struct {
	Month      core.YearMonth                   `json:"month"`
	Currencies map[core.Currency]core.KpiBundle `json:"currencies"`
	Unified    *services.UnifiedKPIs            `json:"unified,omitempty"`
}

// GuidanceResponse is the body of GET /api/guidance.
type GuidanceResponse struct {
	Month core.YearMonth      `json:"month"`
	Items []core.GuidanceItem `json:"items"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ready(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
		ServiceUnavailableError(r, "not ready").Write(w)
		return
	}
	NewJSONResponse().
		NoCache().
		Data(map[string]any{"status": "ready", "security": s.metrics.snapshot()}).
		Write(w)
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	target, err := s.targetCurrency(r)
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}

	results := s.answers.Rates(r.Context(), target)
	views := make(map[core.Currency]fx.ResultView, len(results))
	for cur, res := range results {
		views[cur] = fx.View(res)
	}
	NewJSONResponse().NoCache().Data(RatesResponse{Target: target, Rates: views}).Write(w)
}

func (s *Server) handleUnify(w http.ResponseWriter, r *http.Request) {
	target, amounts, err := DecodeUnifyRequest(w, r)
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	NewJSONResponse().NoCache().Data(s.answers.Unify(r.Context(), amounts, target)).Write(w)
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	query.Set("month", r.PathValue("month"))
	f, opening, ok := s.parseReportRequest(w, r, query)
	if !ok {
		return
	}
	report, err := s.answers.Month(r.Context(), f, opening)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(report).Write(w)
}

func (s *Server) handleYear(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r.PathValue("year"))
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	query := r.URL.Query()
	query.Del("month")
	f, opening, ok := s.parseReportRequest(w, r, query)
	if !ok {
		return
	}
	f.Year = year

	summary, err := s.answers.Year(r.Context(), f, opening)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(summary).Write(w)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	f, err := ParseFilters(query, s.now())
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	dates, err := ParseRange(query, f.Month)
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}

	report, err := s.answers.Totals(r.Context(), dates, f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().Data(report).Write(w)
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	f, opening, ok := s.parseReportRequest(w, r, r.URL.Query())
	if !ok {
		return
	}

	var unifyTo core.Currency
	if v := sanitizeInput(r.URL.Query().Get("unifyTo")); v != "" {
		c, err := core.ParseCurrency(v)
		if err != nil {
			BadRequestError(r, err.Error()).Write(w)
			return
		}
		unifyTo = c
	}

	bundles, err := s.answers.KPIs(r.Context(), f, opening)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := KPIResponse{Month: f.Month, Currencies: bundles}
	if unifyTo != "" {
		unified := s.answers.UnifyKPIs(r.Context(), bundles, unifyTo)
		resp.Unified = &unified
	}
	NewJSONResponse().Data(resp).Write(w)
}

func (s *Server) handleGuidance(w http.ResponseWriter, r *http.Request) {
	f, opening, ok := s.parseReportRequest(w, r, r.URL.Query())
	if !ok {
		return
	}
	items, err := s.answers.Guidance(r.Context(), f, opening)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []core.GuidanceItem{}
	}
	NewJSONResponse().Data(GuidanceResponse{Month: f.Month, Items: items}).Write(w)
}

// parseReportRequest parses filters and opening balances, writing a 400 on
// failure.
func (s *Server) parseReportRequest(w http.ResponseWriter, r *http.Request, query url.Values) (core.Filters, aggregate.Opening, bool) {
	f, err := ParseFilters(query, s.now())
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return core.Filters{}, nil, false
	}
	opening, err := ParseOpening(r.URL.Query().Get("opening"))
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return core.Filters{}, nil, false
	}
	return f, opening, true
}

// targetCurrency reads ?target=, defaulting to the first enabled currency.
func (s *Server) targetCurrency(r *http.Request) (core.Currency, error) {
	if v := sanitizeInput(r.URL.Query().Get("target")); v != "" {
		return core.ParseCurrency(v)
	}
	if curs := s.answers.Currencies(); len(curs) > 0 {
		return curs[0], nil
	}
	return core.USD, nil
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	fields := applog.NewFields().
		WithRequestID(applog.RequestID(r.Context())).
		WithError(err)
	switch {
	case errors.Is(err, services.ErrMonthRequired),
		errors.Is(err, services.ErrYearRequired),
		errors.Is(err, core.ErrInvalidRange),
		errors.Is(err, core.ErrUnknownCurrency):
		BadRequestError(r, err.Error()).Write(w)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.WarnContext(r.Context(), "Request abandoned", fields.ToSlice()...)
		ServiceUnavailableError(r, "request cancelled").Write(w)
	default:
		slog.ErrorContext(r.Context(), "Failed to answer request", append(fields.ToSlice(), "path", r.URL.Path)...)
		InternalServerError(r).Write(w)
	}
}
