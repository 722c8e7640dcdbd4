package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/praxima-health/praxis/cache"
	"github.com/praxima-health/praxis/domain"
)

// SessionStore implements the cache.SessionStore interface using Redis
type SessionStore struct {
	client *redis.Client
	prefix string // Optional prefix for keys
}

// NewSessionStore creates a new [SessionStore] instance
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the Redis key for a given session ID. The prefix already
// carries the namespace, so only the ID is appended.
func (r *SessionStore) redisKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, sessionID)
}

// Set stores a session entry in Redis with expiry derived from the entry.
func (r *SessionStore) Set(ctx context.Context, session *cache.SessionEntry) error {
	key := r.redisKey(session.SessionID)
	now := time.Now()

	entry := map[string]interface{}{
		"session_id":   session.SessionID,
		"account_id":   session.AccountID,
		"account_type": string(session.AccountType),
		"expires_at":   session.ExpiresAt.Unix(),
		"is_revoked":   strconv.FormatBool(session.IsRevoked),
		"created_at":   session.CreatedAt.Unix(),
		"last_used_at": now.Unix(),
	}

	_, err := r.client.HSet(ctx, key, entry).Result()
	if err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}

	// Set the expiry for the key
	expiryDuration := time.Until(session.ExpiresAt)
	_, err = r.client.Expire(ctx, key, expiryDuration).Result()
	if err != nil {
		return fmt.Errorf("failed to set expiry for session in Redis: %w", err)
	}

	return nil
}

// Get retrieves a session entry from Redis
func (r *SessionStore) Get(ctx context.Context, sessionID string) (*cache.SessionEntry, error) {
	key := r.redisKey(sessionID)

	res, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	if len(res) == 0 {
		return nil, fmt.Errorf("session not found")
	}

	expiresAtUnix, err := strconv.ParseInt(res["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed expires_at in session entry: %w", err)
	}
	createdAtUnix, err := strconv.ParseInt(res["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed created_at in session entry: %w", err)
	}
	lastUsedAtUnix, err := strconv.ParseInt(res["last_used_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed last_used_at in session entry: %w", err)
	}
	isRevoked, _ := strconv.ParseBool(res["is_revoked"])

	return &cache.SessionEntry{
		SessionID:   res["session_id"],
		AccountID:   res["account_id"],
		AccountType: domain.AccountType(res["account_type"]),
		ExpiresAt:   time.Unix(expiresAtUnix, 0),
		IsRevoked:   isRevoked,
		CreatedAt:   time.Unix(createdAtUnix, 0),
		LastUsedAt:  time.Unix(lastUsedAtUnix, 0),
	}, nil
}

// Delete removes a session entry from Redis
func (r *SessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := r.client.Del(ctx, r.redisKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

// Ensure interface compliance
var _ cache.SessionStore = (*SessionStore)(nil)
