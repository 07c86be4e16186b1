package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quizcheck-backend/internal/config"
)

// SessionRepository keeps the active token id per user in Redis.
type SessionRepository struct {
	rdb *redis.Client
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

// Save stores jti as the user's active session for ttl.
func (r *SessionRepository) Save(ctx context.Context, userID int, jti string, ttl time.Duration) error {
	return r.rdb.Set(ctx, config.CacheKey.UserSessionKey(userID), jti, ttl).Err()
}

// Active returns the active token id, or "" when none is stored.
func (r *SessionRepository) Active(ctx context.Context, userID int) (string, error) {
	jti, err := r.rdb.Get(ctx, config.CacheKey.UserSessionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return jti, err
}

// Revoke removes the user's active session.
func (r *SessionRepository) Revoke(ctx context.Context, userID int) error {
	return r.rdb.Del(ctx, config.CacheKey.UserSessionKey(userID)).Err()
}
