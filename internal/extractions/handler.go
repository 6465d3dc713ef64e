package extractions

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/shared/server/middleware"
	"stackdocs-backend/internal/shared/server/respond"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches extraction read routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id/extraction", h.latest)
	rg.GET("/extractions/:id", h.get)
	rg.GET("/extractions/:id/export", h.export)
}

func (h *Handler) latest(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := strings.TrimSpace(c.Param("id"))
	middleware.TagDocument(c, documentID)

	ext, err := h.Svc.Latest(c.Request.Context(), userID, documentID)
	if err != nil {
		writeError(c, err)
		return
	}
	middleware.TagExtraction(c, ext.ID)
	respond.OK(c, toResponse(ext))
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	extractionID := strings.TrimSpace(c.Param("id"))
	middleware.TagExtraction(c, extractionID)

	ext, err := h.Svc.Get(c.Request.Context(), userID, extractionID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toResponse(ext))
}

func (h *Handler) export(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	extractionID := strings.TrimSpace(c.Param("id"))
	middleware.TagExtraction(c, extractionID)

	ext, err := h.Svc.Get(c.Request.Context(), userID, extractionID)
	if err != nil {
		writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := ExportXLSX(&buf, ext); err != nil {
		respond.Internal(c, "failed to export extraction", err)
		return
	}
	respond.Attachment(c, "extraction-"+ext.ID+".xlsx", xlsxContentType, buf.Bytes())
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "No extraction found", nil)
	default:
		respond.Internal(c, "failed to fetch extraction", err)
	}
}
