// ABOUTME: Redis-backed login attempt counters for deployments with several warden replicas
// ABOUTME: Failure counting and lock placement run as one Lua script so replicas never race

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLockoutPrefix namespaces attempt hashes in a shared Redis.
const DefaultLockoutPrefix = "warden:lockout:"

// incrementScript mirrors the SQLite upsert: an elapsed lock restarts the count,
// an active lock is left in place, and reaching max places a fresh lock.
// Returns {failures, locked_until_unix}; locked_until is 0 when unlocked.
var incrementScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local lock_for = tonumber(ARGV[3])

local failures = tonumber(redis.call('HGET', key, 'failures') or '0')
local locked = tonumber(redis.call('HGET', key, 'locked_until') or '0')

if locked > now then
	failures = failures + 1
	redis.call('HSET', key, 'failures', failures)
	return {failures, locked}
end

if locked > 0 then
	failures = 0
end
failures = failures + 1

if failures >= max then
	locked = now + lock_for
	redis.call('HSET', key, 'failures', failures, 'locked_until', locked)
	redis.call('EXPIRE', key, lock_for)
else
	locked = 0
	redis.call('HSET', key, 'failures', failures, 'locked_until', 0)
	redis.call('PERSIST', key)
end

return {failures, locked}
`)

// clearScript deletes the counter unless a lock is still active at ARGV[1].
// Returns the active locked_until, or 0 when the counter was cleared.
var clearScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])

local locked = tonumber(redis.call('HGET', key, 'locked_until') or '0')
if locked > now then
	return locked
end

redis.call('DEL', key)
return 0
`)

// RedisAttemptStore keeps login attempt state in Redis hashes.
type RedisAttemptStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisAttemptStore creates an attempt store using client. An empty prefix
// selects DefaultLockoutPrefix.
func NewRedisAttemptStore(client *redis.Client, prefix string) *RedisAttemptStore {
	if prefix == "" {
		prefix = DefaultLockoutPrefix
	}
	return &RedisAttemptStore{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "store.redis"),
	}
}

// GetAttempts returns the attempt state for a username.
func (s *RedisAttemptStore) GetAttempts(ctx context.Context, username string) (*AttemptState, error) {
	data, err := s.client.HGetAll(ctx, s.prefix+username).Result()
	if err != nil {
		return nil, fmt.Errorf("reading login attempts: %w", err)
	}

	state := &AttemptState{Username: username}
	if raw, ok := data["failures"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing failures: %w", err)
		}
		state.Failures = n
	}
	if raw, ok := data["locked_until"]; ok {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing locked_until: %w", err)
		}
		state.LockedUntil = unixToLock(unix)
	}
	return state, nil
}

// IncrementAttempts records one failed login for username at now.
func (s *RedisAttemptStore) IncrementAttempts(ctx context.Context, username string, now time.Time, maxAttempts int, lockFor time.Duration) (*AttemptState, error) {
	lockSeconds := int64(lockFor / time.Second)
	if lockSeconds < 1 {
		lockSeconds = 1
	}

	res, err := incrementScript.Run(ctx, s.client,
		[]string{s.prefix + username},
		now.Unix(), maxAttempts, lockSeconds,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("recording login failure: %w", err)
	}
	if len(res) != 2 {
		return nil, errors.New("recording login failure: unexpected script result")
	}

	state := &AttemptState{
		Username:    username,
		Failures:    int(res[0]),
		LockedUntil: unixToLock(res[1]),
	}
	if state.LockedUntil != nil {
		s.logger.Debug("lock placed or active", "username", username, "until", *state.LockedUntil)
	}
	return state, nil
}

// ClearAttempts clears the failure count for username unless a lock is active at now.
func (s *RedisAttemptStore) ClearAttempts(ctx context.Context, username string, now time.Time) (*AttemptState, error) {
	locked, err := clearScript.Run(ctx, s.client, []string{s.prefix + username}, now.Unix()).Int64()
	if err != nil {
		return nil, fmt.Errorf("clearing login attempts: %w", err)
	}
	return &AttemptState{Username: username, LockedUntil: unixToLock(locked)}, nil
}

// ResetAttempts clears the failure count and any lock for username.
func (s *RedisAttemptStore) ResetAttempts(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.prefix+username).Err(); err != nil {
		return fmt.Errorf("resetting login attempts: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *RedisAttemptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func unixToLock(unix int64) *time.Time {
	if unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0).UTC()
	return &t
}
