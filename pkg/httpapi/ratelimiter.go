package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 60
	defaultMaxConcurrent     = 10
	limiterIdleTTL           = 10 * time.Minute
)

// ClientRateLimiter bounds one client's request rate and in-flight requests
type ClientRateLimiter struct {
	mu            sync.Mutex
	limiter       *rate.Limiter
	maxConcurrent int
	concurrent    int
	lastSeen      time.Time
}

// NewClientRateLimiter creates a limiter allowing requestsPerMinute with a burst
// of the same size
func NewClientRateLimiter(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &ClientRateLimiter{
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		maxConcurrent: maxConcurrent,
		lastSeen:      time.Now(),
	}
}

// Acquire reserves a request slot. The returned reason is empty when allowed;
// Release must be called once the request finishes.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeen = time.Now()
	if r.concurrent >= r.maxConcurrent {
		return false, "too many concurrent requests"
	}
	if !r.limiter.Allow() {
		return false, "rate limit exceeded"
	}
	r.concurrent++
	return true, ""
}

// Release frees a slot taken by Acquire
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrent > 0 {
		r.concurrent--
	}
}

// Concurrent returns the number of in-flight requests
func (r *ClientRateLimiter) Concurrent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.concurrent
}

func (r *ClientRateLimiter) idle(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.concurrent == 0 && now.Sub(r.lastSeen) > limiterIdleTTL
}

// limiterRegistry hands out one limiter per client key
type limiterRegistry struct {
	mu                sync.Mutex
	clients           map[string]*ClientRateLimiter
	requestsPerMinute int
	maxConcurrent     int
}

func newLimiterRegistry(requestsPerMinute, maxConcurrent int) *limiterRegistry {
	return &limiterRegistry{
		clients:           make(map[string]*ClientRateLimiter),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
	}
}

func (lr *limiterRegistry) get(client string) *ClientRateLimiter {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	l, ok := lr.clients[client]
	if !ok {
		l = NewClientRateLimiter(lr.requestsPerMinute, lr.maxConcurrent)
		lr.clients[client] = l
	}
	return l
}

// prune drops limiters that have been idle for a while
func (lr *limiterRegistry) prune(now time.Time) int {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	removed := 0
	for client, l := range lr.clients {
		if l.idle(now) {
			delete(lr.clients, client)
			removed++
		}
	}
	return removed
}
