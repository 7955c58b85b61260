// ABOUTME: Session store methods enforcing one live session per user
// ABOUTME: Replace, touch, revoke and sweep operations, each a single atomic statement or transaction

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionColumns = `id, user_id, issued_at, last_active, expires_at, client_ip, user_agent`

// ReplaceSession atomically deletes every session owned by session.UserID and
// inserts session in their place. It returns the number of sessions revoked.
// On error or context cancellation the user's prior sessions are untouched.
func (s *SQLiteStore) ReplaceSession(ctx context.Context, session *Session) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, session.UserID)
	if err != nil {
		return 0, fmt.Errorf("revoking prior sessions: %w", err)
	}
	revoked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.UserID,
		formatTime(session.IssuedAt),
		formatTime(session.LastActive),
		formatTime(session.ExpiresAt),
		session.ClientIP,
		session.UserAgent,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing session replacement: %w", err)
	}

	s.logger.Debug("replaced session", "id", session.ID, "user_id", session.UserID, "revoked", revoked)
	return revoked, nil
}

// TouchSession marks a live session as active at now and returns it.
// Existence, expiry and the last_active update are a single statement, so a
// session being revoked concurrently is never reported as valid after its delete.
// Returns ErrSessionExpired (after deleting the row) if the session has expired,
// or ErrSessionNotFound if it does not exist.
func (s *SQLiteStore) TouchSession(ctx context.Context, id string, now time.Time) (*Session, error) {
	nowStr := formatTime(now)
	row := s.db.QueryRowContext(ctx, `
		UPDATE sessions SET last_active = ?
		WHERE id = ? AND expires_at > ?
		RETURNING `+sessionColumns,
		nowStr, id, nowStr)

	session, err := scanSession(row)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, fmt.Errorf("touching session: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND expires_at <= ?`, id, nowStr)
	if err != nil {
		return nil, fmt.Errorf("deleting expired session: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil, ErrSessionExpired
	}
	return nil, ErrSessionNotFound
}

// GetSession retrieves a session by ID regardless of expiry.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return session, nil
}

// DeleteSession deletes exactly one session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	s.logger.Debug("deleted session", "id", id)
	return nil
}

// DeleteUserSessions deletes every session owned by a user and returns how many were removed.
func (s *SQLiteStore) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting user sessions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("deleted user sessions", "user_id", userID, "count", rowsAffected)
	return rowsAffected, nil
}

// ListActiveSessions returns every unexpired session, most recently active first.
func (s *SQLiteStore) ListActiveSessions(ctx context.Context, now time.Time) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE expires_at > ?
		ORDER BY last_active DESC
	`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// DeleteExpiredSessions removes all sessions whose expiry has passed.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired sessions", "count", rowsAffected)
	}
	return rowsAffected, nil
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var issuedAtStr, lastActiveStr, expiresAtStr string

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&issuedAtStr,
		&lastActiveStr,
		&expiresAtStr,
		&session.ClientIP,
		&session.UserAgent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if session.IssuedAt, err = parseTime("issued_at", issuedAtStr); err != nil {
		return nil, err
	}
	if session.LastActive, err = parseTime("last_active", lastActiveStr); err != nil {
		return nil, err
	}
	if session.ExpiresAt, err = parseTime("expires_at", expiresAtStr); err != nil {
		return nil, err
	}

	return &session, nil
}
