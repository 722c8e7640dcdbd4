package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemorySessionStore implements SessionStore using ttlcache.
type MemorySessionStore struct {
	cache *ttlcache.Cache[string, *SessionEntry]
}

// NewMemorySessionStore creates a new in-memory session store with automatic cleanup.
//
//nolint:ireturn
func NewMemorySessionStore(cleanupInterval time.Duration) SessionStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *SessionEntry](cleanupInterval),
		ttlcache.WithDisableTouchOnHit[string, *SessionEntry](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemorySessionStore{
		cache: cache,
	}
}

// Set implements SessionStore.Set.
func (s *MemorySessionStore) Set(_ context.Context, session *SessionEntry) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	s.cache.Set(session.SessionID, session, ttl)
	return nil
}

// Get implements SessionStore.Get.
func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*SessionEntry, error) {
	item := s.cache.Get(sessionID)
	if item == nil {
		return nil, fmt.Errorf("session not found")
	}

	entry := item.Value()
	entry.LastUsedAt = time.Now().UTC()

	return entry, nil
}

// Delete removes a session from the cache.
func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.cache.Delete(sessionID)

	return nil
}
