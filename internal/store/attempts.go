// ABOUTME: Login attempt counters backing the lockout guard
// ABOUTME: Each mutation is one INSERT ... ON CONFLICT statement so concurrent failures never under-count

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetAttempts returns the attempt state for a username.
// A username with no recorded failures yields a zero state, not an error.
func (s *SQLiteStore) GetAttempts(ctx context.Context, username string) (*AttemptState, error) {
	var failures int
	var lockedUntil sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT failures, locked_until FROM login_attempts WHERE username = ?`, username,
	).Scan(&failures, &lockedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return &AttemptState{Username: username}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying login attempts: %w", err)
	}

	return buildAttemptState(username, failures, lockedUntil)
}

// IncrementAttempts records one failed login for username at now.
// If a previous lock has already elapsed the count restarts at one. When the
// count reaches maxAttempts and no lock is active, locked_until is set to now+lockFor.
// An active lock is never shortened or extended by further failures.
func (s *SQLiteStore) IncrementAttempts(ctx context.Context, username string, now time.Time, maxAttempts int, lockFor time.Duration) (*AttemptState, error) {
	nowStr := formatTime(now)
	lockUntilStr := formatTime(now.Add(lockFor))

	// SET expressions see the pre-update row, so "next" is spelled out where it is needed.
	query := `
		INSERT INTO login_attempts (username, failures, locked_until, updated_at)
		VALUES (:username, 1, CASE WHEN 1 >= :max THEN :lock_until ELSE NULL END, :now)
		ON CONFLICT(username) DO UPDATE SET
			failures = CASE
				WHEN login_attempts.locked_until IS NOT NULL AND login_attempts.locked_until <= :now THEN 1
				ELSE login_attempts.failures + 1
			END,
			locked_until = CASE
				WHEN login_attempts.locked_until IS NOT NULL AND login_attempts.locked_until > :now
					THEN login_attempts.locked_until
				WHEN (CASE
						WHEN login_attempts.locked_until IS NOT NULL AND login_attempts.locked_until <= :now THEN 1
						ELSE login_attempts.failures + 1
					END) >= :max
					THEN :lock_until
				ELSE NULL
			END,
			updated_at = :now
		RETURNING failures, locked_until
	`

	var failures int
	var lockedUntil sql.NullString
	err := s.db.QueryRowContext(ctx, query,
		sql.Named("username", username),
		sql.Named("max", maxAttempts),
		sql.Named("lock_until", lockUntilStr),
		sql.Named("now", nowStr),
	).Scan(&failures, &lockedUntil)
	if err != nil {
		return nil, fmt.Errorf("recording login failure: %w", err)
	}

	return buildAttemptState(username, failures, lockedUntil)
}

// ClearAttempts clears the failure count for username unless a lock is active
// at now. The delete is conditional so a lock placed by a concurrent failure
// is never removed. The returned state carries LockedUntil when a lock held.
func (s *SQLiteStore) ClearAttempts(ctx context.Context, username string, now time.Time) (*AttemptState, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE username = ? AND (locked_until IS NULL OR locked_until <= ?)`,
		username, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("clearing login attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("clearing login attempts: %w", err)
	}
	if n > 0 {
		return &AttemptState{Username: username}, nil
	}

	state, err := s.GetAttempts(ctx, username)
	if err != nil {
		return nil, err
	}
	if state.LockedUntil == nil || !state.LockedUntil.After(now) {
		return &AttemptState{Username: username}, nil
	}
	return state, nil
}

// ResetAttempts clears the failure count and any lock for username.
func (s *SQLiteStore) ResetAttempts(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE username = ?`, username); err != nil {
		return fmt.Errorf("resetting login attempts: %w", err)
	}
	return nil
}

func buildAttemptState(username string, failures int, lockedUntil sql.NullString) (*AttemptState, error) {
	state := &AttemptState{Username: username, Failures: failures}
	if lockedUntil.Valid {
		t, err := parseTime("locked_until", lockedUntil.String)
		if err != nil {
			return nil, err
		}
		state.LockedUntil = &t
	}
	return state, nil
}
