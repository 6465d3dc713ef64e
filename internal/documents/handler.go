package documents

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/shared/server/middleware"
	"stackdocs-backend/internal/shared/server/respond"
)

// multipart framing allowance on top of MaxFileSize
const uploadBodySlack = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/document/upload", h.upload)
	rg.POST("/document/retry-ocr", h.retryOCR)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxFileSize+uploadBodySlack)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusBadRequest, "validation_error", userMessage(ErrFileTooLarge), nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	doc, err := h.Svc.Upload(c.Request.Context(), UploadInput{
		UserID:    userID,
		FileName:  fileHeader.Filename,
		MimeType:  fileHeader.Header.Get("Content-Type"),
		SizeBytes: fileHeader.Size,
		Body:      file,
		RequestID: middleware.RequestIDFromContext(c),
	})
	if err != nil {
		h.writeError(c, err, "failed to upload document")
		return
	}

	middleware.TagDocument(c, doc.ID)
	respond.JSON(c, http.StatusOK, toUploadResponse(doc))
}

type retryOCRRequest struct {
	DocumentID string `json:"document_id" form:"document_id"`
}

func (h *Handler) retryOCR(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req retryOCRRequest
	if err := c.ShouldBind(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document_id is required", nil)
		return
	}
	middleware.TagDocument(c, req.DocumentID)

	doc, err := h.Svc.RetryOCR(c.Request.Context(), userID, req.DocumentID, middleware.RequestIDFromContext(c))
	if err != nil {
		h.writeError(c, err, "failed to retry ocr")
		return
	}
	middleware.TagTransition(c, string(doc.Status))
	respond.JSON(c, http.StatusOK, toUploadResponse(doc))
}

func (h *Handler) get(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := strings.TrimSpace(c.Param("id"))
	middleware.TagDocument(c, documentID)

	doc, err := h.Svc.Get(c.Request.Context(), userID, documentID)
	if err != nil {
		h.writeError(c, err, "failed to fetch document")
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(c, err, "failed to list documents")
		return
	}

	resp := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toResponse(doc))
	}
	respond.JSON(c, http.StatusOK, gin.H{"documents": resp})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	var (
		unsupported UnsupportedTypeError
		notRetry    NotRetryableError
	)
	switch {
	case errors.Is(err, ErrLimitReached):
		respond.Error(c, http.StatusForbidden, "limit_reached", "Upload limit reached. Please upgrade your plan.", nil)
	case errors.As(err, &unsupported):
		respond.Error(c, http.StatusBadRequest, "unsupported_type", unsupported.Error(), nil)
	case errors.As(err, &notRetry):
		respond.Error(c, http.StatusBadRequest, "not_retryable", notRetry.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "Document not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", userMessage(err), nil)
	default:
		respond.Internal(c, fallback, err)
	}
}
