package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/peerit/auth-service/internal/models"
)

// ErrSessionMiss signals that no session exists under the requested id.
// Any other error from a store means the backing storage itself failed.
var ErrSessionMiss = errors.New("session not found")

const sessionKeyPrefix = "session:"

// RedisSessionRepository stores session records in Redis with a per-key
// TTL. Every write resets the TTL to the full window.
type RedisSessionRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSessionRepository constructs a Redis-backed session store.
func NewRedisSessionRepository(client *redis.Client, logger *zap.Logger) *RedisSessionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionRepository{client: client, logger: logger}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// Create stores a session record under its id with the given TTL.
func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.SessionID, err)
	}
	if err := r.client.Set(ctx, sessionKey(session.SessionID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session %s: %w", session.SessionID, err)
	}
	return nil
}

// Get retrieves a session record by id.
func (r *RedisSessionRepository) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionMiss
		}
		return nil, fmt.Errorf("redis get session %s: %w", sessionID, err)
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return &session, nil
}

// Update overwrites a session record, refreshing its TTL to the full window.
func (r *RedisSessionRepository) Update(ctx context.Context, session *models.Session, ttl time.Duration) error {
	return r.Create(ctx, session, ttl)
}

// Delete removes a session. Deleting an absent session is not an error.
func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session %s: %w", sessionID, err)
	}
	return nil
}

// DeleteByUser removes every session owned by the given user.
func (r *RedisSessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("redis get %s: %w", key, err)
		}

		var session models.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			r.logger.Warn("skipping undecodable session record", zap.String("key", key), zap.Error(err))
			continue
		}
		if session.UserID != userID {
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", key, err)
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan sessions: %w", err)
	}
	return nil
}

// Ping checks connectivity to the backing Redis.
func (r *RedisSessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
