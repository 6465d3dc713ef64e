package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "agent:session:"

// RedisSessionStore keeps sessions in Redis with a key TTL matching the
// session expiry.
type RedisSessionStore struct {
	Client *redis.Client
}

// NewRedisClient connects and pings a Redis server.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}
	return client, nil
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func (s *RedisSessionStore) Save(ctx context.Context, sess Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if sess.ExpiresAt.IsZero() {
		ttl = DefaultSessionTTL
	}
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.Client.Set(ctx, sessionKey(sess.ID), payload, ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, userID, sessionID string) (Session, error) {
	raw, err := s.Client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.UserID != userID || sess.Expired(time.Now().UTC()) {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// PurgeExpired is a no-op; Redis expires keys itself.
func (s *RedisSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	_ = ctx
	_ = now
	return 0, nil
}

var _ SessionStore = (*RedisSessionStore)(nil)
