package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CommandLimiter holds one token bucket per connection for inbound commands.
// A command costs one token per alias it carries.
type CommandLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewCommandLimiter allows perSecond commands with the given burst. A
// non-positive rate disables limiting.
func NewCommandLimiter(perSecond float64, burst int) *CommandLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &CommandLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *CommandLimiter) Allow(id string) bool {
	return l.AllowN(id, 1)
}

// AllowN spends n tokens from the connection's bucket. A cost above the burst
// never succeeds.
func (l *CommandLimiter) AllowN(id string, n int) bool {
	if n <= 0 {
		n = 1
	}

	l.mu.Lock()
	lim, ok := l.limiters[id]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[id] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(time.Now(), n)
}

func (l *CommandLimiter) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, id)
}

func (l *CommandLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
