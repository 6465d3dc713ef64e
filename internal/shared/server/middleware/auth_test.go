package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/shared/auth"
)

func newTestVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier("test-secret", false)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(newTestVerifier(t), true))
	router.OPTIONS("/api/documents", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthResolvesIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier := newTestVerifier(t)
	valid, err := verifier.Sign("user-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	other, err := auth.NewVerifier("another-secret", false)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	forged, err := other.Sign("user-1", "", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tests := []struct {
		name        string
		allowGuests bool
		header      string
		value       string
		wantStatus  int
		wantUser    string
	}{
		{name: "bearer token", header: "Authorization", value: "Bearer " + valid, wantStatus: http.StatusOK, wantUser: "user-1"},
		{name: "wrong signature", header: "Authorization", value: "Bearer " + forged, wantStatus: http.StatusUnauthorized},
		{name: "not bearer", header: "Authorization", value: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "guest allowed", allowGuests: true, header: "X-Guest-Id", value: "g1", wantStatus: http.StatusOK, wantUser: "guest:g1"},
		{name: "guest refused", header: "X-Guest-Id", value: "g1", wantStatus: http.StatusUnauthorized},
		{name: "guest with separator", allowGuests: true, header: "X-Guest-Id", value: "a/../b", wantStatus: http.StatusUnauthorized},
		{name: "guest too long", allowGuests: true, header: "X-Guest-Id", value: strings.Repeat("x", 65), wantStatus: http.StatusUnauthorized},
		{name: "empty bearer", header: "Authorization", value: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "no identity", allowGuests: true, wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(Auth(verifier, tc.allowGuests))
			router.GET("/api/documents", func(c *gin.Context) {
				c.String(http.StatusOK, UserIDFromContext(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, resp.Code)
			}
			if tc.wantUser != "" && resp.Body.String() != tc.wantUser {
				t.Fatalf("expected user %q, got %q", tc.wantUser, resp.Body.String())
			}
		})
	}
}
