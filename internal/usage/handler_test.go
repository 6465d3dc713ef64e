package usage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/shared/server/middleware"
)

func newUsageRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", middleware.Auth(nil, true))
	h := NewHandler(svc)
	h.RegisterRoutes(api)
	h.RegisterDevRoutes(api.Group("/dev"))
	return r
}

func TestUsageHandlerReportsRemaining(t *testing.T) {
	svc := NewService(Defaults{Tier: "free", Limit: 3})
	svc.now = fixedClock(time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC))
	if err := svc.Increment(t.Context(), "guest:g1"); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	router := newUsageRouter(svc)

	tests := []struct {
		name          string
		method        string
		path          string
		wantProcessed int
		wantRemaining int
	}{
		{name: "get", method: http.MethodGet, path: "/api/usage", wantProcessed: 1, wantRemaining: 2},
		{name: "dev reset", method: http.MethodPost, path: "/api/dev/usage/reset", wantProcessed: 0, wantRemaining: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("X-Guest-Id", "g1")
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != http.StatusOK {
				t.Fatalf("status = %d body=%s", resp.Code, resp.Body.String())
			}
			var body usageResponse
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.DocumentsProcessedThisMonth != tt.wantProcessed || body.DocumentsRemaining != tt.wantRemaining {
				t.Fatalf("unexpected body %+v", body)
			}
			if !body.CanUpload || body.SubscriptionTier != "free" {
				t.Fatalf("unexpected body %+v", body)
			}
			if !body.UsageResetDate.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)) {
				t.Fatalf("reset date = %s", body.UsageResetDate)
			}
		})
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	u := Usage{DocumentsLimit: 2, DocumentsProcessedThisMonth: 5}
	if u.Remaining() != 0 || u.CanUpload() {
		t.Fatalf("over-limit usage reports remaining=%d can=%v", u.Remaining(), u.CanUpload())
	}
}
