// ABOUTME: Tests for the login attempt guard
// ABOUTME: Runs against SQLite and Redis backends with a controllable clock

package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/store"
)

func attemptBackends(t *testing.T) map[string]func(t *testing.T) AttemptStore {
	return map[string]func(t *testing.T) AttemptStore{
		"sqlite": func(t *testing.T) AttemptStore {
			s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "lockout.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T) AttemptStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return store.NewRedisAttemptStore(client, "")
		},
	}
}

func newTestGuard(attempts AttemptStore, clock *testClock) *LoginAttemptGuard {
	g := NewLoginAttemptGuard(attempts, DefaultMaxAttempts, DefaultLockDuration, nil)
	g.now = clock.Now
	return g
}

func TestLoginAttemptGuard(t *testing.T) {
	for name, backend := range attemptBackends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("counts down then locks", func(t *testing.T) {
				clock := newTestClock()
				g := newTestGuard(backend(t), clock)
				ctx := context.Background()

				for i := 1; i < DefaultMaxAttempts; i++ {
					res, err := g.RecordFailure(ctx, "alice")
					require.NoError(t, err)
					assert.False(t, res.Locked)
					assert.Equal(t, DefaultMaxAttempts-i, res.RemainingAttempts)
				}

				res, err := g.RecordFailure(ctx, "alice")
				require.NoError(t, err)
				assert.True(t, res.Locked)
				assert.True(t, res.LockedUntil.Equal(clock.Now().Add(DefaultLockDuration)))

				status, err := g.CheckLock(ctx, "alice")
				require.NoError(t, err)
				assert.True(t, status.Locked)
			})

			t.Run("lock lapses after the duration", func(t *testing.T) {
				clock := newTestClock()
				g := newTestGuard(backend(t), clock)
				ctx := context.Background()

				for i := 0; i < DefaultMaxAttempts; i++ {
					_, err := g.RecordFailure(ctx, "alice")
					require.NoError(t, err)
				}

				clock.Advance(DefaultLockDuration - time.Second)
				status, err := g.CheckLock(ctx, "alice")
				require.NoError(t, err)
				assert.True(t, status.Locked)

				clock.Advance(time.Second)
				status, err = g.CheckLock(ctx, "alice")
				require.NoError(t, err)
				assert.False(t, status.Locked)

				res, err := g.RecordFailure(ctx, "alice")
				require.NoError(t, err)
				assert.False(t, res.Locked)
				assert.Equal(t, DefaultMaxAttempts-1, res.RemainingAttempts)
			})

			t.Run("success resets", func(t *testing.T) {
				clock := newTestClock()
				g := newTestGuard(backend(t), clock)
				ctx := context.Background()

				for i := 0; i < DefaultMaxAttempts-1; i++ {
					_, err := g.RecordFailure(ctx, "alice")
					require.NoError(t, err)
				}
				status, err := g.RecordSuccess(ctx, "alice")
				require.NoError(t, err)
				assert.False(t, status.Locked)

				res, err := g.RecordFailure(ctx, "alice")
				require.NoError(t, err)
				assert.Equal(t, DefaultMaxAttempts-1, res.RemainingAttempts)
			})

			t.Run("success leaves an active lock in place", func(t *testing.T) {
				clock := newTestClock()
				g := newTestGuard(backend(t), clock)
				ctx := context.Background()

				for i := 0; i < DefaultMaxAttempts; i++ {
					_, err := g.RecordFailure(ctx, "alice")
					require.NoError(t, err)
				}

				status, err := g.RecordSuccess(ctx, "alice")
				require.NoError(t, err)
				assert.True(t, status.Locked)
				assert.True(t, status.LockedUntil.Equal(clock.Now().Add(DefaultLockDuration)))

				status, err = g.CheckLock(ctx, "alice")
				require.NoError(t, err)
				assert.True(t, status.Locked)

				clock.Advance(DefaultLockDuration)
				status, err = g.RecordSuccess(ctx, "alice")
				require.NoError(t, err)
				assert.False(t, status.Locked)

				res, err := g.RecordFailure(ctx, "alice")
				require.NoError(t, err)
				assert.Equal(t, DefaultMaxAttempts-1, res.RemainingAttempts)
			})

			t.Run("unlock clears an active lock", func(t *testing.T) {
				clock := newTestClock()
				g := newTestGuard(backend(t), clock)
				ctx := context.Background()

				for i := 0; i < DefaultMaxAttempts; i++ {
					_, err := g.RecordFailure(ctx, "alice")
					require.NoError(t, err)
				}
				require.NoError(t, g.Unlock(ctx, "alice"))

				status, err := g.CheckLock(ctx, "alice")
				require.NoError(t, err)
				assert.False(t, status.Locked)
			})

			t.Run("usernames are normalised", func(t *testing.T) {
				clock := newTestClock()
				g := newTestGuard(backend(t), clock)
				ctx := context.Background()

				for _, name := range []string{"alice", " Alice", "ALICE ", "aLiCe", "alice"} {
					_, err := g.RecordFailure(ctx, name)
					require.NoError(t, err)
				}

				status, err := g.CheckLock(ctx, "Alice")
				require.NoError(t, err)
				assert.True(t, status.Locked)
			})

			t.Run("concurrent failures lock exactly once", func(t *testing.T) {
				clock := newTestClock()
				g := newTestGuard(backend(t), clock)
				ctx := context.Background()

				const workers = 12
				var wg sync.WaitGroup
				var mu sync.Mutex
				locked := 0
				for i := 0; i < workers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						res, err := g.RecordFailure(ctx, "alice")
						assert.NoError(t, err)
						if res.Locked {
							mu.Lock()
							locked++
							mu.Unlock()
						}
					}()
				}
				wg.Wait()

				// Failures 5 through 12 all see the lock.
				assert.Equal(t, workers-DefaultMaxAttempts+1, locked)
			})
		})
	}
}

func TestNewLoginAttemptGuard_Defaults(t *testing.T) {
	g := NewLoginAttemptGuard(nil, 0, 0, nil)
	assert.Equal(t, DefaultMaxAttempts, g.MaxAttempts())
	assert.Equal(t, DefaultLockDuration, g.lockFor)
}
