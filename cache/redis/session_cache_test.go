package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedisKeyAppliesPrefixOnce(t *testing.T) {
	store := NewSessionStore(nil, "praxis:session")
	assert.Equal(t, "praxis:session:abc-123", store.redisKey("abc-123"))
}

func TestRedisKeyWithoutNamespace(t *testing.T) {
	store := NewSessionStore(nil, "sessions")
	assert.Equal(t, "sessions:xyz", store.redisKey("xyz"))
}
