package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stackdocs-backend/internal/shared/auth"
	"stackdocs-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	userEmailKey = "userEmail"
	isGuestKey   = "isGuest"

	guestHeader     = "X-Guest-Id"
	guestPrefix     = "guest:"
	maxGuestIDBytes = 64
)

var (
	errNoIdentity   = errors.New("missing identity")
	errInvalidToken = errors.New("missing or invalid token")
	errInvalidGuest = errors.New("invalid guest id")
)

// Identity is the resolved caller of an /api request.
type Identity struct {
	UserID  string
	Email   string
	IsGuest bool
}

// Auth resolves the caller and stores it on the context. A Bearer token
// always wins; X-Guest-Id is honored only when allowGuests is set and maps
// to the user id "guest:<id>". Preflights pass through untouched.
func Auth(verifier *auth.Verifier, allowGuests bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		id, err := resolveIdentity(c.Request, verifier, allowGuests)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
			return
		}
		c.Set(userIDKey, id.UserID)
		c.Set(isGuestKey, id.IsGuest)
		if id.Email != "" {
			c.Set(userEmailKey, id.Email)
		}
		c.Next()
	}
}

func resolveIdentity(r *http.Request, verifier *auth.Verifier, allowGuests bool) (Identity, error) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" || verifier == nil {
			return Identity{}, errInvalidToken
		}
		claims, err := verifier.Verify(token)
		if err != nil || strings.TrimSpace(claims.Subject) == "" {
			return Identity{}, errInvalidToken
		}
		return Identity{UserID: claims.Subject, Email: claims.Email}, nil
	}

	guestID := strings.TrimSpace(r.Header.Get(guestHeader))
	if guestID == "" || !allowGuests {
		return Identity{}, errNoIdentity
	}
	if !validGuestID(guestID) {
		return Identity{}, errInvalidGuest
	}
	return Identity{UserID: guestPrefix + guestID, IsGuest: true}, nil
}

// validGuestID accepts the browser-generated ids clients send: short runs
// of letters, digits, '-' and '_'. Anything else could smuggle separators
// into storage keys.
func validGuestID(id string) bool {
	if len(id) > maxGuestIDBytes {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// UserIDFromContext fetches the user id set by Auth.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(userIDKey)
}

// IdentityFromContext returns everything Auth resolved.
func IdentityFromContext(c *gin.Context) Identity {
	return Identity{
		UserID:  UserIDFromContext(c),
		Email:   c.GetString(userEmailKey),
		IsGuest: c.GetBool(isGuestKey),
	}
}
