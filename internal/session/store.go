package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session is proof of an authenticated identity attached to a request.
type Session struct {
	ID     string
	UserID string
}

const defaultTTL = 7 * 24 * time.Hour

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return &Store{client: client, ttl: ttl}
}

// Resolve reads the session cookie and looks the session up in Redis.
// Absent, malformed, or expired credentials yield (nil, nil); only store
// connectivity failures return an error.
func (s *Store) Resolve(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, nil
	}

	id := strings.TrimSpace(cookie.Value)
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	userID, err := s.client.Get(ctx, sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	return &Session{ID: id, UserID: userID}, nil
}

func (s *Store) Create(ctx context.Context, userID string) (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	sess := Session{ID: id.String(), UserID: userID}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), userID, s.ttl)
	pipe.SAdd(ctx, userSessionsKey(userID), sess.ID)
	pipe.Expire(ctx, userSessionsKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}

	return sess, nil
}

// Destroy removes the session. Destroying an already-gone session is a no-op,
// so concurrent teardowns for the same identity are safe.
func (s *Store) Destroy(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sess.ID))
	pipe.SRem(ctx, userSessionsKey(sess.UserID), sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}

	return nil
}

// DestroyAll revokes every active session for the identity.
func (s *Store) DestroyAll(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("destroy user sessions: %w", err)
	}

	return nil
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

func sessionKey(id string) string {
	return "session:" + id
}

func userSessionsKey(userID string) string {
	return "user_sessions:" + userID
}
