// ABOUTME: Tests for login attempt counters in SQLite
// ABOUTME: Covers lock placement at the threshold, lock expiry restart, reset and concurrent counting

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMaxAttempts = 5
	testLockFor     = 5 * time.Minute
)

// attemptStore is satisfied by both SQLite and Redis implementations.
type attemptStore interface {
	GetAttempts(ctx context.Context, username string) (*AttemptState, error)
	IncrementAttempts(ctx context.Context, username string, now time.Time, maxAttempts int, lockFor time.Duration) (*AttemptState, error)
	ClearAttempts(ctx context.Context, username string, now time.Time) (*AttemptState, error)
	ResetAttempts(ctx context.Context, username string) error
}

func TestSQLiteAttempts(t *testing.T) {
	runAttemptStoreTests(t, func(t *testing.T) attemptStore { return newTestStore(t) })
}

func runAttemptStoreTests(t *testing.T, newStore func(t *testing.T) attemptStore) {
	t.Run("unknown username is zero state", func(t *testing.T) {
		s := newStore(t)
		state, err := s.GetAttempts(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, 0, state.Failures)
		assert.Nil(t, state.LockedUntil)
	})

	t.Run("locks on the fifth failure", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 1; i < testMaxAttempts; i++ {
			state, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
			require.NoError(t, err)
			assert.Equal(t, i, state.Failures)
			assert.Nil(t, state.LockedUntil)
		}

		state, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
		require.NoError(t, err)
		assert.Equal(t, testMaxAttempts, state.Failures)
		require.NotNil(t, state.LockedUntil)
		assert.True(t, state.LockedUntil.Equal(baseTime.Add(testLockFor)))

		got, err := s.GetAttempts(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, got.LockedUntil)
		assert.True(t, got.LockedUntil.Equal(baseTime.Add(testLockFor)))
	})

	t.Run("failures during a lock do not move it", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < testMaxAttempts; i++ {
			_, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
			require.NoError(t, err)
		}

		state, err := s.IncrementAttempts(ctx, "alice", baseTime.Add(time.Minute), testMaxAttempts, testLockFor)
		require.NoError(t, err)
		require.NotNil(t, state.LockedUntil)
		assert.True(t, state.LockedUntil.Equal(baseTime.Add(testLockFor)))
	})

	t.Run("failure after lock expiry restarts the count", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < testMaxAttempts; i++ {
			_, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
			require.NoError(t, err)
		}

		state, err := s.IncrementAttempts(ctx, "alice", baseTime.Add(testLockFor), testMaxAttempts, testLockFor)
		require.NoError(t, err)
		assert.Equal(t, 1, state.Failures)
		assert.Nil(t, state.LockedUntil)
	})

	t.Run("reset clears count and lock", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < testMaxAttempts; i++ {
			_, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
			require.NoError(t, err)
		}
		require.NoError(t, s.ResetAttempts(ctx, "alice"))

		state, err := s.GetAttempts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 0, state.Failures)
		assert.Nil(t, state.LockedUntil)
	})

	t.Run("clear resets an unlocked count", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < testMaxAttempts-1; i++ {
			_, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
			require.NoError(t, err)
		}
		state, err := s.ClearAttempts(ctx, "alice", baseTime)
		require.NoError(t, err)
		assert.Nil(t, state.LockedUntil)

		got, err := s.GetAttempts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 0, got.Failures)
	})

	t.Run("clear keeps an active lock", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < testMaxAttempts; i++ {
			_, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
			require.NoError(t, err)
		}

		state, err := s.ClearAttempts(ctx, "alice", baseTime.Add(time.Minute))
		require.NoError(t, err)
		require.NotNil(t, state.LockedUntil)
		assert.True(t, state.LockedUntil.Equal(baseTime.Add(testLockFor)))

		got, err := s.GetAttempts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, testMaxAttempts, got.Failures)
		require.NotNil(t, got.LockedUntil)

		state, err = s.ClearAttempts(ctx, "alice", baseTime.Add(testLockFor))
		require.NoError(t, err)
		assert.Nil(t, state.LockedUntil)

		got, err = s.GetAttempts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 0, got.Failures)
		assert.Nil(t, got.LockedUntil)
	})

	t.Run("clear on unknown username", func(t *testing.T) {
		s := newStore(t)
		state, err := s.ClearAttempts(context.Background(), "ghost", baseTime)
		require.NoError(t, err)
		assert.Nil(t, state.LockedUntil)
	})

	t.Run("usernames are independent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < testMaxAttempts; i++ {
			_, err := s.IncrementAttempts(ctx, "alice", baseTime, testMaxAttempts, testLockFor)
			require.NoError(t, err)
		}

		state, err := s.GetAttempts(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, 0, state.Failures)
		assert.Nil(t, state.LockedUntil)
	})

	t.Run("concurrent failures are all counted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.IncrementAttempts(ctx, "alice", baseTime, 100, testLockFor)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		state, err := s.GetAttempts(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, workers, state.Failures)
	})
}
