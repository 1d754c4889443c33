package fx

import (
	"time"

	"mutaba/internal/core"
)

// Source names where a rate came from.
type Source string

const (
	SourceLive   Source = "live"
	SourceCached Source = "cached"
	SourceNone   Source = "none"
)

// RateResult is the outcome of a rate lookup. It is one of Live, Cached or
// Unavailable; callers switch on the concrete type.
type RateResult interface {
	Pair() (base, quote core.Currency)
	Source() Source
	isRateResult()
}

// Live is a rate obtained from the rate service during this lookup.
type Live struct {
	Base      core.Currency
	Quote     core.Currency
	Rate      float64
	Date      core.Date
	FetchedAt time.Time
}

// Cached is a previously persisted rate used because no live one was obtained.
type Cached struct {
	Base      core.Currency
	Quote     core.Currency
	Rate      float64
	Date      core.Date
	FetchedAt time.Time
	Age       time.Duration
}

// Unavailable means no usable rate exists for the pair.
type Unavailable struct {
	Base  core.Currency
	Quote core.Currency
}

func (r Live) Pair() (core.Currency, core.Currency)        { return r.Base, r.Quote }
func (r Cached) Pair() (core.Currency, core.Currency)      { return r.Base, r.Quote }
func (r Unavailable) Pair() (core.Currency, core.Currency) { return r.Base, r.Quote }

func (Live) Source() Source        { return SourceLive }
func (Cached) Source() Source      { return SourceCached }
func (Unavailable) Source() Source { return SourceNone }

func (Live) isRateResult()        {}
func (Cached) isRateResult()      {}
func (Unavailable) isRateResult() {}

// UsableRate extracts a strictly positive rate, or reports false.
func UsableRate(r RateResult) (float64, bool) {
	var rate float64
	switch v := r.(type) {
	case Live:
		rate = v.Rate
	case Cached:
		rate = v.Rate
	default:
		return 0, false
	}
	if !(rate > 0) {
		return 0, false
	}
	return rate, true
}

// ResultView is the wire form of a RateResult. Rate is null when unavailable.
type ResultView struct {
	Base       core.Currency `json:"base"`
	Quote      core.Currency `json:"quote"`
	Rate       *float64      `json:"rate"`
	Date       string        `json:"date,omitempty"`
	Source     Source        `json:"source"`
	FetchedAt  *time.Time    `json:"fetchedAt,omitempty"`
	AgeSeconds int64         `json:"ageSeconds,omitempty"`
}

func View(r RateResult) ResultView {
	base, quote := r.Pair()
	v := ResultView{Base: base, Quote: quote, Source: r.Source()}
	switch res := r.(type) {
	case Live:
		v.Date = res.Date.String()
		v.FetchedAt = &res.FetchedAt
	case Cached:
		v.Date = res.Date.String()
		v.FetchedAt = &res.FetchedAt
		v.AgeSeconds = int64(res.Age / time.Second)
	}
	if rate, ok := UsableRate(r); ok {
		v.Rate = &rate
	}
	return v
}
