package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/shared/server/middleware"
	"stackdocs-backend/internal/shared/server/respond"
)

type meResponse struct {
	UserID  string `json:"user_id"`
	IsGuest bool   `json:"is_guest"`
	Email   string `json:"email,omitempty"`
}

// meHandler echoes the identity the auth middleware resolved, so clients
// can tell a signed-in session from a guest one.
func meHandler(c *gin.Context) {
	id := middleware.IdentityFromContext(c)
	if id.UserID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return
	}
	respond.OK(c, meResponse{UserID: id.UserID, IsGuest: id.IsGuest, Email: id.Email})
}
