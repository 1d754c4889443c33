package http

import (
	"sync"
	"sync/atomic"
	"time"

	"mutaba/internal/cache"
)

const (
	writesPerWindow   = 60
	writeWindow       = time.Minute
	maxTrackedClients = 10000
	sweepInterval     = 5 * time.Minute
)

// clientWindow counts one client's writes since start.
type clientWindow struct {
	start time.Time
	count int
}

// writeLimiter is a fixed-window limiter keyed by client IP. Idle clients
// expire from the table after one window; when the table is full the least
// recently seen client is forgotten.
type writeLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	clients *cache.LRUCache[clientWindow]
	sweeper *cache.Manager
}

func newWriteLimiter(limit int, window time.Duration, now func() time.Time) *writeLimiter {
	clients := cache.NewLRUCache[clientWindow](maxTrackedClients, window).WithClock(now)
	sweeper := cache.NewManager()
	sweeper.Register(clients)
	sweeper.StartCleanup(sweepInterval)
	return &writeLimiter{
		limit:   limit,
		window:  window,
		now:     now,
		clients: clients,
		sweeper: sweeper,
	}
}

// allow records a write from clientIP and reports whether it fits the window.
func (l *writeLimiter) allow(clientIP string, metrics *securityMetrics) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients.Get(clientIP)
	if !ok || now.Sub(w.start) >= l.window {
		w = clientWindow{start: now}
	}
	w.count++
	l.clients.Set(clientIP, w)

	if w.count > l.limit {
		if metrics != nil {
			atomic.AddInt64(&metrics.rateLimitHits, 1)
		}
		return false
	}
	return true
}

func (l *writeLimiter) stop() {
	l.sweeper.Stop()
}
