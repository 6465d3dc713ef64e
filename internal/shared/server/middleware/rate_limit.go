package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"stackdocs-backend/internal/shared/server/respond"
)

// Rate limit classes used by the router.
const (
	ClassDefault = "default"
	ClassPolling = "polling"
)

const (
	defaultIdleTTL = 10 * time.Minute
	sweepEvery     = time.Minute
)

// RateLimitRule is a token bucket: Rate tokens per second up to Burst.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

// RateLimitConfig maps each request to a class and each class to a rule.
// Classes without a rule are not limited.
type RateLimitConfig struct {
	Rules    map[string]RateLimitRule
	Classify func(*gin.Context) string
	Limiter  *RateLimiter
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one bucket per principal and class. Buckets idle for
// longer than IdleTTL are swept so guest ids do not accumulate.
type RateLimiter struct {
	IdleTTL time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter builds a limiter reading time from now (time.Now if nil).
func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		IdleTTL: defaultIdleTTL,
		buckets: make(map[string]*bucket),
		now:     now,
	}
}

// RateLimit rejects over-limit requests with 429, a Retry-After header and
// retry_after_ms in the error details. Requests are keyed by user id, or by
// client IP before auth has run.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	return func(c *gin.Context) {
		class := ClassDefault
		if cfg.Classify != nil {
			if got := strings.TrimSpace(cfg.Classify(c)); got != "" {
				class = got
			}
		}
		rule, ok := cfg.Rules[class]
		if !ok {
			c.Next()
			return
		}

		principal := UserIDFromContext(c)
		if principal == "" {
			principal = "ip:" + c.ClientIP()
		}
		allowed, wait := cfg.Limiter.Allow(principal+"|"+class, rule)
		if allowed {
			c.Next()
			return
		}

		waitMs := wait.Milliseconds()
		if waitMs <= 0 {
			waitMs = 1000
		}
		c.Header("Retry-After", strconv.FormatInt((waitMs+999)/1000, 10))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "Too many requests", gin.H{
			"retry_after_ms": waitMs,
		})
	}
}

// Allow takes one token from key's bucket. When none is available it
// returns the wait until the next token without consuming it.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}
	now := l.now()
	lim := l.bucketFor(key, rule, now)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len reports how many buckets are tracked.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *RateLimiter) bucketFor(key string, rule RateLimitRule, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepEvery {
		l.sweepLocked(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(rule.Rate), rule.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

func (l *RateLimiter) sweepLocked(now time.Time) {
	l.lastSweep = now
	if l.IdleTTL <= 0 {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.IdleTTL {
			delete(l.buckets, key)
		}
	}
}
