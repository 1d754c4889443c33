// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request data:
// report filters, opening balances and the unify request body.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mutaba/internal/aggregate"
	"mutaba/internal/core"
)

const maxBodyBytes = 64 << 10

// ParseFilters reads month, year, currency and the two toggles from a query.
// A missing month defaults to the month of now; a missing year to the
// month's year. Both toggles default to true.
func ParseFilters(query url.Values, now time.Time) (core.Filters, error) {
	month := core.DateOf(now.UTC()).YearMonth()
	if v := sanitizeInput(query.Get("month")); v != "" {
		m, err := core.ParseYearMonth(v)
		if err != nil {
			return core.Filters{}, err
		}
		month = m
	}
	f := core.DefaultFilters(month)

	if v := sanitizeInput(query.Get("year")); v != "" {
		y, err := parseYear(v)
		if err != nil {
			return core.Filters{}, err
		}
		f.Year = y
	}
	if v := sanitizeInput(query.Get("currency")); v != "" {
		c, err := core.ParseCurrency(v)
		if err != nil {
			return core.Filters{}, err
		}
		f.Currency = c
	}

	var err error
	if f.IncludeReceivables, err = parseToggle(query, "includeReceivables"); err != nil {
		return core.Filters{}, err
	}
	if f.IncludeProjections, err = parseToggle(query, "includeProjections"); err != nil {
		return core.Filters{}, err
	}
	return f, nil
}

// ParseRange reads from and to as YYYY-MM-DD days. A missing bound falls back
// to the first or last day of month.
func ParseRange(query url.Values, month core.YearMonth) (core.DateRange, error) {
	r := month.Range()
	bounds := []struct {
		key string
		day *core.Date
	}{{"from", &r.From}, {"to", &r.ToInclusive}}
	for _, b := range bounds {
		v := sanitizeInput(query.Get(b.key))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			return core.DateRange{}, fmt.Errorf("invalid %s: %w", b.key, err)
		}
		*b.day = d
	}
	return core.NewDateRange(r.From, r.ToInclusive)
}

func parseToggle(query url.Values, key string) (bool, error) {
	v := sanitizeInput(query.Get(key))
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: want true or false", key, v)
	}
	return b, nil
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(s)
	if err != nil || y < 1970 || y > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return y, nil
}

// ParseOpening parses opening balances given as "USD:1200.50,ILS:-300".
// Amounts are decimal major units; unknown currencies are an error.
func ParseOpening(s string) (aggregate.Opening, error) {
	opening := aggregate.Opening{}
	for _, part := range strings.Split(sanitizeInput(s), ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		code, amount, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid opening balance %q: want CUR:amount", part)
		}
		cur, err := core.ParseCurrency(code)
		if err != nil {
			return nil, err
		}
		minor, err := core.ParseMinor(amount, cur)
		if err != nil {
			return nil, fmt.Errorf("opening balance %s: %w", cur, err)
		}
		opening[cur] = minor
	}
	return opening, nil
}

// UnifyRequest is the body of POST /api/unify. Amounts are minor units.
type UnifyRequest struct {
	Target  string           `json:"target"`
	Amounts map[string]int64 `json:"amounts"`
}

// DecodeUnifyRequest reads and validates a unify request body.
func DecodeUnifyRequest(w http.ResponseWriter, r *http.Request) (core.Currency, map[core.Currency]int64, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	var req UnifyRequest
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil, errors.New("empty request body")
		}
		return "", nil, fmt.Errorf("invalid request body: %w", err)
	}

	target, err := core.ParseCurrency(req.Target)
	if err != nil {
		return "", nil, fmt.Errorf("target: %w", err)
	}
	if len(req.Amounts) == 0 {
		return "", nil, errors.New("amounts must not be empty")
	}
	amounts := make(map[core.Currency]int64, len(req.Amounts))
	for code, minor := range req.Amounts {
		cur, err := core.ParseCurrency(code)
		if err != nil {
			return "", nil, fmt.Errorf("amounts: %w", err)
		}
		amounts[cur] += minor
	}
	return target, amounts, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
