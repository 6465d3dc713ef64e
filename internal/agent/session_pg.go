package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGSessionStore persists sessions in the agent_sessions table.
type PGSessionStore struct {
	DB *sql.DB
}

// Save upserts the session.
func (s *PGSessionStore) Save(ctx context.Context, sess Session) error {
	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("encode session messages: %w", err)
	}
	const query = `
INSERT INTO agent_sessions (id, user_id, workflow, messages, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    messages = EXCLUDED.messages,
    updated_at = EXCLUDED.updated_at,
    expires_at = EXCLUDED.expires_at
WHERE agent_sessions.user_id = EXCLUDED.user_id`
	_, err = s.DB.ExecContext(ctx, query,
		sess.ID,
		sess.UserID,
		sess.Workflow,
		string(messages),
		sess.CreatedAt,
		sess.UpdatedAt,
		sess.ExpiresAt,
	)
	return err
}

// Get loads an unexpired session owned by userID.
func (s *PGSessionStore) Get(ctx context.Context, userID, sessionID string) (Session, error) {
	const query = `
SELECT id, user_id, workflow, messages, created_at, updated_at, expires_at
FROM agent_sessions
WHERE id = $1 AND user_id = $2 AND expires_at > now()`

	var (
		sess     Session
		messages []byte
	)
	err := s.DB.QueryRowContext(ctx, query, sessionID, userID).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.Workflow,
		&messages,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&sess.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	if err := json.Unmarshal(messages, &sess.Messages); err != nil {
		return Session{}, fmt.Errorf("decode session messages: %w", err)
	}
	return sess, nil
}

// PurgeExpired deletes sessions whose expiry has passed.
func (s *PGSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM agent_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ SessionStore = (*PGSessionStore)(nil)
