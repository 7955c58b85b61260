// ABOUTME: Login attempt guard placing a temporary lock after repeated failures
// ABOUTME: Counts per normalised username; each step is one atomic store primitive

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/warden/internal/store"
)

// Lockout defaults: five consecutive failures lock the account for five minutes.
const (
	DefaultMaxAttempts  = 5
	DefaultLockDuration = 5 * time.Minute
)

// AttemptStore persists consecutive failure counts.
// Implemented by store.SQLiteStore and store.RedisAttemptStore.
type AttemptStore interface {
	GetAttempts(ctx context.Context, username string) (*store.AttemptState, error)
	IncrementAttempts(ctx context.Context, username string, now time.Time, maxAttempts int, lockFor time.Duration) (*store.AttemptState, error)
	// ClearAttempts resets the count in one atomic step unless a lock is
	// active at now, in which case the lock is left alone and returned.
	ClearAttempts(ctx context.Context, username string, now time.Time) (*store.AttemptState, error)
	ResetAttempts(ctx context.Context, username string) error
}

// LockStatus is the result of CheckLock.
type LockStatus struct {
	Locked      bool
	LockedUntil time.Time
}

// FailureResult is the result of RecordFailure.
type FailureResult struct {
	RemainingAttempts int
	Locked            bool
	LockedUntil       time.Time
}

// LoginAttemptGuard tracks failed logins and reports temporary locks.
type LoginAttemptGuard struct {
	attempts    AttemptStore
	maxAttempts int
	lockFor     time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewLoginAttemptGuard creates a guard. Non-positive limits select the defaults.
func NewLoginAttemptGuard(attempts AttemptStore, maxAttempts int, lockFor time.Duration, logger *slog.Logger) *LoginAttemptGuard {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockFor <= 0 {
		lockFor = DefaultLockDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginAttemptGuard{
		attempts:    attempts,
		maxAttempts: maxAttempts,
		lockFor:     lockFor,
		now:         time.Now,
		logger:      logger.With("component", "auth.lockout"),
	}
}

// MaxAttempts returns the number of failures that places a lock.
func (g *LoginAttemptGuard) MaxAttempts() int {
	return g.maxAttempts
}

// CheckLock reports whether username is currently locked.
func (g *LoginAttemptGuard) CheckLock(ctx context.Context, username string) (LockStatus, error) {
	state, err := g.attempts.GetAttempts(ctx, NormalizeUsername(username))
	if err != nil {
		return LockStatus{}, fmt.Errorf("checking lock: %w", err)
	}

	now := g.clock()
	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		return LockStatus{Locked: true, LockedUntil: *state.LockedUntil}, nil
	}
	return LockStatus{}, nil
}

// RecordFailure counts one failed attempt. The failure that reaches the
// maximum places the lock and is itself reported as locked.
func (g *LoginAttemptGuard) RecordFailure(ctx context.Context, username string) (FailureResult, error) {
	key := NormalizeUsername(username)
	now := g.clock()

	state, err := g.attempts.IncrementAttempts(ctx, key, now, g.maxAttempts, g.lockFor)
	if err != nil {
		return FailureResult{}, fmt.Errorf("recording failure: %w", err)
	}

	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		if state.Failures == g.maxAttempts {
			g.logger.Warn("account locked after repeated failures", "username", key, "until", *state.LockedUntil)
		}
		return FailureResult{Locked: true, LockedUntil: *state.LockedUntil}, nil
	}

	remaining := g.maxAttempts - state.Failures
	if remaining < 0 {
		remaining = 0
	}
	return FailureResult{RemainingAttempts: remaining}, nil
}

// RecordSuccess clears the failure count after a correct password. If a lock
// was placed while the password was being checked it stays in force and is
// reported, and the login must be refused.
func (g *LoginAttemptGuard) RecordSuccess(ctx context.Context, username string) (LockStatus, error) {
	now := g.clock()
	state, err := g.attempts.ClearAttempts(ctx, NormalizeUsername(username), now)
	if err != nil {
		return LockStatus{}, fmt.Errorf("resetting attempts: %w", err)
	}
	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		return LockStatus{Locked: true, LockedUntil: *state.LockedUntil}, nil
	}
	return LockStatus{}, nil
}

// Unlock clears the failure count and any active lock.
func (g *LoginAttemptGuard) Unlock(ctx context.Context, username string) error {
	if err := g.attempts.ResetAttempts(ctx, NormalizeUsername(username)); err != nil {
		return fmt.Errorf("resetting attempts: %w", err)
	}
	return nil
}

// clock returns now at the one-second resolution the stores keep.
func (g *LoginAttemptGuard) clock() time.Time {
	return g.now().UTC().Truncate(time.Second)
}

// NormalizeUsername trims and lower-cases a username for keying.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
