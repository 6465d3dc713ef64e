package usage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/shared/server/middleware"
	"stackdocs-backend/internal/shared/server/respond"
)

// Handler exposes the caller's usage counter. The reset route is mounted
// only in dev-like environments.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/usage", h.getUsage)
}

// RegisterDevRoutes attaches dev-only usage routes.
func (h *Handler) RegisterDevRoutes(rg *gin.RouterGroup) {
	rg.POST("/usage/reset", h.resetUsage)
}

type usageResponse struct {
	DocumentsProcessedThisMonth int       `json:"documents_processed_this_month"`
	DocumentsLimit              int       `json:"documents_limit"`
	DocumentsRemaining          int       `json:"documents_remaining"`
	CanUpload                   bool      `json:"can_upload"`
	SubscriptionTier            string    `json:"subscription_tier"`
	UsageResetDate              time.Time `json:"usage_reset_date"`
}

func toResponse(u Usage) usageResponse {
	return usageResponse{
		DocumentsProcessedThisMonth: u.DocumentsProcessedThisMonth,
		DocumentsLimit:              u.DocumentsLimit,
		DocumentsRemaining:          u.Remaining(),
		CanUpload:                   u.CanUpload(),
		SubscriptionTier:            u.SubscriptionTier,
		UsageResetDate:              u.UsageResetDate,
	}
}

func (h *Handler) getUsage(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	u, err := h.Svc.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to fetch usage")
		return
	}
	respond.OK(c, toResponse(u))
}

func (h *Handler) resetUsage(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	u, err := h.Svc.Reset(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to reset usage")
		return
	}
	respond.OK(c, toResponse(u))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrUserRequired):
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Internal(c, fallback, err)
	}
}
