package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newLimitedRouter(limiter *RateLimiter, rules map[string]RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(userIDKey, "guest:test-guest")
		c.Next()
	})
	r.Use(RateLimit(RateLimitConfig{
		Limiter: limiter,
		Rules:   rules,
		Classify: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				return ClassPolling
			}
			return ClassDefault
		},
	}))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.GET("/api/documents/:id", ok)
	r.POST("/api/documents/upload", ok)
	return r
}

func TestRateLimitClasses(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := newLimitedRouter(NewRateLimiter(func() time.Time { return now }), map[string]RateLimitRule{
		ClassDefault: {Rate: 1, Burst: 2},
		ClassPolling: {Rate: 5, Burst: 10},
	})

	steps := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/documents/doc-1", http.StatusOK},
		{http.MethodGet, "/api/documents/doc-1", http.StatusOK},
		{http.MethodGet, "/api/documents/doc-1", http.StatusOK},
		{http.MethodPost, "/api/documents/upload", http.StatusOK},
		{http.MethodPost, "/api/documents/upload", http.StatusOK},
		{http.MethodPost, "/api/documents/upload", http.StatusTooManyRequests},
		{http.MethodGet, "/api/documents/doc-1", http.StatusOK},
	}
	for i, step := range steps {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(step.method, step.path, nil))
		if resp.Code != step.want {
			t.Fatalf("step %d %s %s: expected %d, got %d", i, step.method, step.path, step.want, resp.Code)
		}
	}
}

func TestRateLimit429Envelope(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := newLimitedRouter(NewRateLimiter(func() time.Time { return now }), map[string]RateLimitRule{
		ClassDefault: {Rate: 0.5, Burst: 1},
	})

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", first.Code)
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if got := resp.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "rate_limited" || payload.Error.Details["retry_after_ms"] != float64(2000) {
		t.Fatalf("unexpected error payload %+v", payload.Error)
	}

	// Polling has no rule here, so it is never limited.
	poll := httptest.NewRecorder()
	r.ServeHTTP(poll, httptest.NewRequest(http.MethodGet, "/api/documents/doc-1", nil))
	if poll.Code != http.StatusOK {
		t.Fatalf("unlimited class returned %d", poll.Code)
	}
}

func TestRateLimiterKeysAndRefill(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 1, Burst: 1}

	if ok, _ := limiter.Allow("user-a|default", rule); !ok {
		t.Fatalf("expected first request for user-a to pass")
	}
	if ok, wait := limiter.Allow("user-a|default", rule); ok || wait != time.Second {
		t.Fatalf("expected user-a to wait 1s, got ok=%v wait=%v", ok, wait)
	}
	if ok, _ := limiter.Allow("user-b|default", rule); !ok {
		t.Fatalf("expected user-b to have its own bucket")
	}

	now = now.Add(time.Second)
	if ok, _ := limiter.Allow("user-a|default", rule); !ok {
		t.Fatalf("expected user-a to pass after refill")
	}
}

func TestRateLimiterSweepsIdleBuckets(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	limiter.IdleTTL = 5 * time.Minute
	rule := RateLimitRule{Rate: 1, Burst: 1}

	limiter.Allow("guest:a|default", rule)
	limiter.Allow("guest:b|default", rule)
	if limiter.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", limiter.Len())
	}

	now = now.Add(6 * time.Minute)
	limiter.Allow("guest:c|default", rule)
	if limiter.Len() != 1 {
		t.Fatalf("expected idle buckets swept, got %d", limiter.Len())
	}
}
