// ABOUTME: Request and response bodies for the JSON API
// ABOUTME: Converters from store and auth types to their wire form

package api

import (
	"time"

	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/store"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

// UserInfo is the public view of an account.
type UserInfo struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Teams    []string `json:"teams"`
	Locked   bool     `json:"locked,omitempty"`
}

// LoginFailure is returned for wrong credentials.
type LoginFailure struct {
	Error             string `json:"error"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

// RetryFailure is returned when the caller must wait before trying again.
type RetryFailure struct {
	Error             string `json:"error"`
	RetryAfterSeconds int64  `json:"retry_after_seconds"`
}

// SessionResponse is the body of GET /api/auth/session.
type SessionResponse struct {
	Valid  bool      `json:"valid"`
	User   *UserInfo `json:"user,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// MeResponse is the body of GET /api/auth/me.
type MeResponse struct {
	UserInfo
	SessionID string `json:"session_id"`
}

// ChangePasswordRequest is the body of POST /api/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// KickRequest is the body of POST /api/admin/kick.
type KickRequest struct {
	TargetUserID string `json:"targetUserId"`
}

// KickResponse reports how many sessions were revoked.
type KickResponse struct {
	Revoked int64 `json:"revoked"`
}

// CreateUserRequest is the body of POST /api/admin/users.
type CreateUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Role     string   `json:"role"`
	Teams    []string `json:"teams"`
}

// SessionInfo is the admin view of a live session.
type SessionInfo struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	IssuedAt   string `json:"issued_at"`
	LastActive string `json:"last_active"`
	ExpiresAt  string `json:"expires_at"`
	ClientIP   string `json:"client_ip"`
	UserAgent  string `json:"user_agent"`
}

// ActivityInfo is one audit log entry.
type ActivityInfo struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	Timestamp string `json:"timestamp"`
}

func userInfo(u *store.User) UserInfo {
	teams := u.Teams
	if teams == nil {
		teams = []string{}
	}
	return UserInfo{
		ID:       u.ID,
		Username: u.Username,
		Role:     string(u.Role),
		Teams:    teams,
		Locked:   u.Locked,
	}
}

func principalInfo(p *auth.Principal) UserInfo {
	teams := p.Teams
	if teams == nil {
		teams = []string{}
	}
	return UserInfo{
		ID:       p.UserID,
		Username: p.Username,
		Role:     string(p.Role),
		Teams:    teams,
	}
}

func sessionInfo(s *store.Session) SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		UserID:     s.UserID,
		IssuedAt:   formatTime(s.IssuedAt),
		LastActive: formatTime(s.LastActive),
		ExpiresAt:  formatTime(s.ExpiresAt),
		ClientIP:   s.ClientIP,
		UserAgent:  s.UserAgent,
	}
}

func activityInfo(a *store.ActivityRecord) ActivityInfo {
	return ActivityInfo{
		ID:        a.ID,
		UserID:    a.UserID,
		Action:    string(a.Action),
		Detail:    a.Detail,
		IP:        a.IP,
		UserAgent: a.UserAgent,
		Timestamp: formatTime(a.Timestamp),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
