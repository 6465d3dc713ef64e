package agent

import (
	"context"
	"sync"
	"time"

	"stackdocs-backend/internal/llm"
)

// MemorySessionStore keeps sessions in process.
type MemorySessionStore struct {
	mu   sync.RWMutex
	data map[string]Session
	now  func() time.Time
}

// NewMemorySessionStore constructs an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		data: make(map[string]Session),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemorySessionStore) Save(ctx context.Context, sess Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.data[sess.ID]; ok && sess.CreatedAt.IsZero() {
		sess.CreatedAt = existing.CreatedAt
	}
	sess.Messages = append([]llm.Message(nil), sess.Messages...)
	s.data[sess.ID] = sess
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, userID, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.data[sessionID]
	if !ok || sess.UserID != userID || sess.Expired(s.now()) {
		return Session{}, ErrSessionNotFound
	}
	sess.Messages = append([]llm.Message(nil), sess.Messages...)
	return sess, nil
}

func (s *MemorySessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.data {
		if sess.Expired(now) {
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
