// ABOUTME: Authenticator orchestrating lockout, credential checks and session issue
// ABOUTME: Also hosts logout, kick, password change and the administrative user mutations

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/warden/internal/store"
	"github.com/google/uuid"
)

// ActivitySink receives auditable events. Implementations must not block.
type ActivitySink interface {
	Record(rec store.ActivityRecord)
}

// UserAdmin is the user persistence used by administrative operations.
// Implemented by store.SQLiteStore.
type UserAdmin interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	CreateUser(ctx context.Context, user *store.User) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	SetUserLocked(ctx context.Context, id string, locked bool) error
}

// LoginResult is a successful login.
type LoginResult struct {
	Token   string
	Session *store.Session
	User    *store.User
}

// NewUser describes an account to create.
type NewUser struct {
	Username string
	Password string
	Role     store.Role
	Teams    []string
}

// Authenticator runs the login flow and the session-affecting operations around it.
type Authenticator struct {
	Credentials *CredentialVerifier
	Guard       *LoginAttemptGuard
	Sessions    *SessionAuthority
	Users       UserAdmin
	Hasher      Hasher
	Activity    ActivitySink
	Logger      *slog.Logger
}

func (a *Authenticator) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default().With("component", "auth")
	}
	return a.Logger
}

func (a *Authenticator) record(userID string, action store.ActivityAction, detail string, md Metadata) {
	if a.Activity == nil {
		return
	}
	a.Activity.Record(store.ActivityRecord{
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		IP:        orUnknown(md.IP),
		UserAgent: orUnknown(md.UserAgent),
		Timestamp: time.Now().UTC(),
	})
}

// Login checks the lock, verifies the password and issues a session.
//
// Failures are *LockedError (matches ErrLocked), *InvalidLoginError (matches
// ErrInvalidCredential, for both unknown users and wrong passwords) or
// ErrForbidden when the account is administratively locked. While a lock is
// active even a correct password is rejected.
func (a *Authenticator) Login(ctx context.Context, username, password string, md Metadata) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	logger := a.logger()

	lock, err := a.Guard.CheckLock(ctx, username)
	if err != nil {
		return nil, err
	}
	if lock.Locked {
		a.record("", store.ActivityLoginLocked, "username="+NormalizeUsername(username), md)
		return nil, &LockedError{Until: lock.LockedUntil}
	}

	user, err := a.Credentials.Verify(ctx, username, password)
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidCredential) {
		return nil, a.failLogin(ctx, username, user, md)
	}
	if err != nil {
		return nil, err
	}

	if user.Locked {
		logger.Warn("login by administratively locked user", "user_id", user.ID, "ip", md.IP)
		return nil, ErrForbidden
	}

	// A lock placed by failures that landed during Verify still wins.
	lock, err = a.Guard.RecordSuccess(ctx, username)
	if err != nil {
		return nil, err
	}
	if lock.Locked {
		a.record(user.ID, store.ActivityLoginLocked, "username="+NormalizeUsername(username), md)
		return nil, &LockedError{Until: lock.LockedUntil}
	}

	token, session, err := a.Sessions.Create(ctx, user, md)
	if err != nil {
		return nil, err
	}

	a.record(user.ID, store.ActivityLogin, "", md)
	logger.Info("login", "user_id", user.ID, "session_id", session.ID, "ip", md.IP)
	return &LoginResult{Token: token, Session: session, User: user}, nil
}

func (a *Authenticator) failLogin(ctx context.Context, username string, user *store.User, md Metadata) error {
	result, err := a.Guard.RecordFailure(ctx, username)
	if err != nil {
		return err
	}

	userID := ""
	if user != nil {
		userID = user.ID
	}
	a.record(userID, store.ActivityLoginFailed, "username="+NormalizeUsername(username), md)
	a.logger().Warn("login failed", "username", NormalizeUsername(username), "ip", md.IP, "locked", result.Locked)

	if result.Locked {
		return &LockedError{Until: result.LockedUntil}
	}
	return &InvalidLoginError{RemainingAttempts: result.RemainingAttempts}
}

// Logout revokes the session behind token. A session that is already gone is not an error.
func (a *Authenticator) Logout(ctx context.Context, token string, md Metadata) error {
	claims, err := a.Sessions.Revoke(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	a.record(claims.UserID, store.ActivityLogout, "", md)
	return nil
}

// Kick revokes every session of targetUserID on behalf of caller.
func (a *Authenticator) Kick(ctx context.Context, caller *Principal, targetUserID string, md Metadata) (int64, error) {
	n, err := a.Sessions.RevokeByUser(ctx, caller.UserID, targetUserID)
	if err != nil {
		return 0, err
	}

	a.record(caller.UserID, store.ActivityKick, fmt.Sprintf("target=%s revoked=%d", targetUserID, n), md)
	return n, nil
}

// ChangePassword replaces the caller's password after re-checking the current one.
// Wrong guesses count against the same lockout as logins, so failures are
// *InvalidLoginError or *LockedError.
func (a *Authenticator) ChangePassword(ctx context.Context, caller *Principal, current, next string, md Metadata) error {
	user, err := a.Users.GetUser(ctx, caller.UserID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	lock, err := a.Guard.CheckLock(ctx, user.Username)
	if err != nil {
		return err
	}
	if lock.Locked {
		return &LockedError{Until: lock.LockedUntil}
	}

	if err := ComparePassword(user.PasswordHash, current); err != nil {
		if !errors.Is(err, ErrInvalidCredential) {
			return err
		}
		result, err := a.Guard.RecordFailure(ctx, user.Username)
		if err != nil {
			return err
		}
		a.record(user.ID, store.ActivityLoginFailed, "password_change", md)
		a.logger().Warn("password change rejected", "user_id", user.ID, "ip", md.IP, "locked", result.Locked)
		if result.Locked {
			return &LockedError{Until: result.LockedUntil}
		}
		return &InvalidLoginError{RemainingAttempts: result.RemainingAttempts}
	}

	lock, err = a.Guard.RecordSuccess(ctx, user.Username)
	if err != nil {
		return err
	}
	if lock.Locked {
		return &LockedError{Until: lock.LockedUntil}
	}

	hash, err := a.Hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := a.Users.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	a.record(user.ID, store.ActivityPasswordChange, "", md)
	return nil
}

// CreateUser adds an account. caller may be nil for operator tooling.
func (a *Authenticator) CreateUser(ctx context.Context, caller *Principal, nu NewUser, md Metadata) (*store.User, error) {
	username := strings.TrimSpace(nu.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidUser)
	}
	if !nu.Role.Valid() {
		return nil, fmt.Errorf("%w: invalid role %q", ErrInvalidUser, nu.Role)
	}

	hash, err := a.Hasher.Hash(nu.Password)
	if err != nil {
		return nil, err
	}

	teams := nu.Teams
	if teams == nil {
		teams = []string{}
	}
	now := time.Now().UTC()
	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         nu.Role,
		Teams:        teams,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	actor := ""
	if caller != nil {
		actor = caller.UserID
	}
	a.record(actor, store.ActivityUserCreate, "created="+user.ID, md)
	return user, nil
}

// SetLocked sets or clears the administrative lock on userID. Unlocking also
// clears any temporary lockout from failed logins.
func (a *Authenticator) SetLocked(ctx context.Context, caller *Principal, userID string, locked bool, md Metadata) error {
	if caller != nil && caller.UserID == userID && locked {
		return ErrSelfKick
	}

	user, err := a.Users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := a.Users.SetUserLocked(ctx, userID, locked); err != nil {
		return err
	}

	actor := ""
	if caller != nil {
		actor = caller.UserID
	}
	action := store.ActivityUserLock
	if !locked {
		action = store.ActivityUserUnlock
		if err := a.Guard.Unlock(ctx, user.Username); err != nil {
			return err
		}
	}
	a.record(actor, action, "target="+userID, md)
	return nil
}
