package agent

import (
	"context"
	"errors"
	"time"

	"stackdocs-backend/internal/llm"
)

// ErrSessionNotFound indicates a missing, foreign or expired session.
var ErrSessionNotFound = errors.New("agent session not found")

// DefaultSessionTTL is used when no TTL is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Session is a resumable agent conversation.
type Session struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Workflow  string        `json:"workflow"`
	Messages  []llm.Message `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionStore persists conversations for later correction turns.
type SessionStore interface {
	Save(ctx context.Context, sess Session) error
	Get(ctx context.Context, userID, sessionID string) (Session, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
