package extractions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/shared/server/middleware"
)

func newExtractionsRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := NewMemoryRepo()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seed := []Extraction{
		{ID: "ext-old", DocumentID: "doc-1", UserID: "guest:g1", Mode: ModeAuto, CreatedAt: base},
		{
			ID:               "ext-new",
			DocumentID:       "doc-1",
			UserID:           "guest:g1",
			ExtractedFields:  map[string]any{"total": 42.5},
			ConfidenceScores: map[string]float64{"total": 0.9},
			Mode:             ModeAuto,
			Status:           StatusCompleted,
			CreatedAt:        base.Add(time.Hour),
		},
		{ID: "ext-other", DocumentID: "doc-2", UserID: "guest:g2", Mode: ModeAuto, CreatedAt: base},
	}
	for _, ext := range seed {
		if err := repo.Create(t.Context(), ext); err != nil {
			t.Fatalf("seed %s: %v", ext.ID, err)
		}
	}

	r := gin.New()
	api := r.Group("/api", middleware.Auth(nil, true))
	NewHandler(&Service{Repo: repo}).RegisterRoutes(api)
	return r
}

func TestExtractionReadEndpoints(t *testing.T) {
	router := newExtractionsRouter(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantID     string
	}{
		{name: "latest for document", path: "/api/documents/doc-1/extraction", wantStatus: http.StatusOK, wantID: "ext-new"},
		{name: "by id", path: "/api/extractions/ext-old", wantStatus: http.StatusOK, wantID: "ext-old"},
		{name: "other user's extraction", path: "/api/extractions/ext-other", wantStatus: http.StatusNotFound},
		{name: "document without extraction", path: "/api/documents/doc-9/extraction", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Guest-Id", "g1")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantID == "" {
				if !strings.Contains(rec.Body.String(), `"code":"not_found"`) {
					t.Fatalf("body = %s, want not_found envelope", rec.Body.String())
				}
				return
			}
			var got ExtractionResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.ExtractionID != tt.wantID {
				t.Fatalf("extraction_id = %q, want %q", got.ExtractionID, tt.wantID)
			}
			if got.ExtractedFields == nil || got.ConfidenceScores == nil {
				t.Fatalf("maps must never be null: %+v", got)
			}
		})
	}
}

func TestExtractionExportIsAttachment(t *testing.T) {
	router := newExtractionsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/extractions/ext-new/export", nil)
	req.Header.Set("X-Guest-Id", "g1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="extraction-ext-new.xlsx"`) {
		t.Fatalf("content disposition = %q", cd)
	}
	// xlsx files are zip archives.
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Fatalf("body is not a zip archive")
	}
}
