package fx

import (
	"context"
	"net"
	"time"
)

// FallbackPolicy decides whether a cached rate may stand in for a live one.
//
// The default, UnlimitedAgeFallback, accepts a cached rate however old it is:
// when offline, an old rate is shown (flagged as cached, with its age) rather
// than nothing. MaxAgeFallback restricts the fallback to recent entries.
type FallbackPolicy struct {
	MaxAge time.Duration // zero or negative: any age
}

var UnlimitedAgeFallback = FallbackPolicy{}

func MaxAgeFallback(maxAge time.Duration) FallbackPolicy {
	return FallbackPolicy{MaxAge: maxAge}
}

// Allows reports whether an entry of the given age may be used.
func (p FallbackPolicy) Allows(age time.Duration) bool {
	return p.MaxAge <= 0 || age <= p.MaxAge
}

// Connectivity reports whether the network is believed to be reachable.
// The answer is advisory: a fetch attempted while offline simply fails and
// takes the same fallback path.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// StaticConnectivity always gives the same answer.
type StaticConnectivity bool

func (s StaticConnectivity) Online(context.Context) bool { return bool(s) }

// DialProbe considers the network up when a TCP connection to Addr succeeds.
type DialProbe struct {
	Addr    string
	Timeout time.Duration
}

func (p DialProbe) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
