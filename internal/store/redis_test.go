// ABOUTME: Tests for the Redis attempt store against an in-process miniredis
// ABOUTME: Runs the shared attempt-store behaviour suite plus Redis-specific key handling

package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisAttemptStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisAttemptStore(client, ""), mr
}

func TestRedisAttempts(t *testing.T) {
	runAttemptStoreTests(t, func(t *testing.T) attemptStore {
		s, _ := newTestRedisStore(t)
		return s
	})
}

func TestRedisAttempts_KeyPrefixAndTTL(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
	require.NoError(t, err)

	key := DefaultLockoutPrefix + "alice"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, "1", mr.HGet(key, "failures"))
	assert.Zero(t, mr.TTL(key), "unlocked counters do not expire")

	for i := 1; i < testMaxAttempts; i++ {
		_, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
		require.NoError(t, err)
	}
	assert.Equal(t, testLockFor, mr.TTL(key))
}

func TestRedisAttempts_CustomPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisAttemptStore(client, "custom:")
	_, err := s.IncrementAttempts(context.Background(), "alice", baseTime, testMaxAttempts, testLockFor)
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom:alice"))
	require.NoError(t, s.Ping(context.Background()))
}
