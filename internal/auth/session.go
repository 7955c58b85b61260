// ABOUTME: Session authority issuing, validating and revoking the single session each user may hold
// ABOUTME: Creation replaces prior sessions atomically; validation is lazy about expiry

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/warden/internal/store"
	"github.com/google/uuid"
)

// SessionStore is the persistence the authority needs.
// Implemented by store.SQLiteStore.
type SessionStore interface {
	ReplaceSession(ctx context.Context, session *store.Session) (int64, error)
	TouchSession(ctx context.Context, id string, now time.Time) (*store.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)
	ListActiveSessions(ctx context.Context, now time.Time) ([]*store.Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// SessionAuthority enforces one live session per user.
type SessionAuthority struct {
	sessions SessionStore
	codec    TokenCodec
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionAuthority creates an authority over sessions using codec for tokens.
func NewSessionAuthority(sessions SessionStore, codec TokenCodec, logger *slog.Logger) *SessionAuthority {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAuthority{
		sessions: sessions,
		codec:    codec,
		now:      time.Now,
		logger:   logger.With("component", "auth.sessions"),
	}
}

// Create issues a new session for user, revoking every other session the user
// holds in the same transaction. If the store call fails the prior sessions remain.
func (a *SessionAuthority) Create(ctx context.Context, user *store.User, md Metadata) (string, *store.Session, error) {
	now := a.clock()
	session := &store.Session{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		IssuedAt:   now,
		LastActive: now,
		ExpiresAt:  now.Add(a.codec.TTL()),
		ClientIP:   orUnknown(md.IP),
		UserAgent:  orUnknown(md.UserAgent),
	}

	token, err := a.codec.Sign(Claims{
		SessionID: session.ID,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return "", nil, err
	}

	revoked, err := a.sessions.ReplaceSession(ctx, session)
	if err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}

	if revoked > 0 {
		a.logger.Info("replaced existing session", "user_id", user.ID, "revoked", revoked)
	}
	return token, session, nil
}

// Validate checks a token and its server-side session and returns the principal.
// A kicked session and one that never existed both yield ErrSessionNotFound.
func (a *SessionAuthority) Validate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	claims, err := a.codec.Verify(token)
	if err != nil {
		return nil, err
	}

	session, err := a.sessions.TouchSession(ctx, claims.SessionID, a.clock())
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return nil, ErrSessionNotFound
	case errors.Is(err, store.ErrSessionExpired):
		return nil, ErrSessionExpired
	case err != nil:
		return nil, fmt.Errorf("loading session: %w", err)
	}

	if session.UserID != claims.UserID {
		a.logger.Warn("session owner does not match token subject", "session_id", session.ID)
		return nil, ErrSessionNotFound
	}

	user, err := a.sessions.GetUser(ctx, session.UserID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session user: %w", err)
	}
	if user.Locked {
		return nil, ErrForbidden
	}

	return &Principal{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		Teams:     user.Teams,
		SessionID: session.ID,
	}, nil
}

// Revoke deletes the one session named by token. Expired tokens with a valid
// signature are accepted. Returns the token claims so callers can log the owner.
func (a *SessionAuthority) Revoke(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	claims, err := a.codec.Inspect(token)
	if err != nil {
		return nil, err
	}

	err = a.sessions.DeleteSession(ctx, claims.SessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		return claims, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("revoking session: %w", err)
	}
	return claims, nil
}

// RevokeByUser deletes every session of userID on behalf of callerID and
// returns how many were removed. A caller cannot kick itself.
func (a *SessionAuthority) RevokeByUser(ctx context.Context, callerID, userID string) (int64, error) {
	if callerID == userID {
		return 0, ErrSelfKick
	}

	n, err := a.sessions.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("kicking sessions: %w", err)
	}

	a.logger.Info("kicked sessions", "caller_id", callerID, "user_id", userID, "count", n)
	return n, nil
}

// ListActive returns all unexpired sessions.
func (a *SessionAuthority) ListActive(ctx context.Context) ([]*store.Session, error) {
	sessions, err := a.sessions.ListActiveSessions(ctx, a.clock())
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// SweepExpired removes expired sessions. Validation never depends on it.
func (a *SessionAuthority) SweepExpired(ctx context.Context) (int64, error) {
	n, err := a.sessions.DeleteExpiredSessions(ctx, a.clock())
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	return n, nil
}

// clock returns now at the one-second resolution tokens and the store keep.
func (a *SessionAuthority) clock() time.Time {
	return a.now().UTC().Truncate(time.Second)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
