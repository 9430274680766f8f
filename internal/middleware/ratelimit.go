package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter throttles by client IP at the transport layer. The
// per-email issuance window is a separate concern handled by the auth
// service against the challenge store.
type RateLimiter struct {
	limit rate.Limit
	burst int

	// idleAfter bounds how long an inactive client's bucket is kept.
	idleAfter time.Duration

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for the provided requests-per-minute
// budget. A non-positive budget disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     burst,
		idleAfter: 5 * time.Minute,
		clients:   make(map[string]*clientLimiter),
	}
}

// Handler returns the gin middleware enforcing the budget. Rejected
// requests use the same error envelope as the auth service and carry a
// Retry-After header.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		reservation := r.limiterFor(c.ClientIP()).Reserve()
		delay := reservation.Delay()
		if delay == 0 {
			c.Next()
			return
		}
		reservation.Cancel()

		seconds := int(math.Ceil(delay.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate_limited",
			"error_description": "Too many requests. Please slow down.",
			"retry_after":       seconds,
		})
	}
}

func (r *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	entry := &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst), lastSeen: now}
	r.clients[key] = entry
	r.evictIdleLocked(now)
	return entry.limiter
}

func (r *RateLimiter) evictIdleLocked(now time.Time) {
	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > r.idleAfter {
			delete(r.clients, key)
		}
	}
}
