package cache

import (
	"context"
	"time"

	"github.com/praxima-health/praxis/domain"
)

// SessionEntry represents a cached login session entry.
type SessionEntry struct {
	SessionID   string             `redis:"sessionId"`
	AccountID   string             `redis:"accountId"`
	AccountType domain.AccountType `redis:"accountType"`
	ExpiresAt   time.Time          `redis:"expiresAt"`
	IsRevoked   bool               `redis:"isRevoked"`
	CreatedAt   time.Time          `redis:"createdAt"`
	LastUsedAt  time.Time          `redis:"lastUsedAt"`
}

// SessionStore caches session lookups in front of the session repository.
type SessionStore interface {
	Set(ctx context.Context, session *SessionEntry) error
	Get(ctx context.Context, sessionID string) (*SessionEntry, error)
	Delete(ctx context.Context, sessionID string) error
}
