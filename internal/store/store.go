// ABOUTME: Store types and errors for warden persistence
// ABOUTME: Defines User, Session, AttemptState, ActivityRecord and the store sentinel errors

package store

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user doesn't exist.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// ErrSessionNotFound is returned when a session doesn't exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a session existed but its expiry has passed.
// The expired row is removed before this error is returned.
var ErrSessionExpired = errors.New("session expired")

// Role is the flat authorization level of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

// User is an account that can sign in to the dashboard.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	Teams        []string
	Locked       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a server-side record of one signed-in client.
// At most one Session exists per user.
type Session struct {
	ID         string
	UserID     string
	IssuedAt   time.Time
	LastActive time.Time
	ExpiresAt  time.Time
	ClientIP   string
	UserAgent  string
}

// AttemptState is the consecutive-failure record for a username.
// LockedUntil is nil when no lock has been applied.
type AttemptState struct {
	Username    string
	Failures    int
	LockedUntil *time.Time
}

// ActivityAction names an auditable session event.
type ActivityAction string

const (
	ActivityLogin          ActivityAction = "login"
	ActivityLoginFailed    ActivityAction = "login_failed"
	ActivityLoginLocked    ActivityAction = "login_locked"
	ActivityLogout         ActivityAction = "logout"
	ActivityKick           ActivityAction = "kick"
	ActivityPasswordChange ActivityAction = "password_change"
	ActivityUserLock       ActivityAction = "user_lock"
	ActivityUserUnlock     ActivityAction = "user_unlock"
	ActivityUserCreate     ActivityAction = "user_create"
)

// ActivityRecord is one entry in the activity log.
type ActivityRecord struct {
	ID        string
	UserID    string
	Action    ActivityAction
	Detail    string
	IP        string
	UserAgent string
	Timestamp time.Time
}

// ActivityFilter narrows ListActivity results.
type ActivityFilter struct {
	UserID string
	Action ActivityAction
	Limit  int // default 100, max 1000
}
