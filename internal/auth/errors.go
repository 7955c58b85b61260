// ABOUTME: Sentinel errors for credential, lockout, token and session failures
// ABOUTME: ReasonFor maps them onto the reason codes returned to clients

package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Credential errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrLocked            = errors.New("account locked")
	ErrForbidden         = errors.New("forbidden")
	ErrPasswordTooShort  = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidUser       = errors.New("invalid user")
)

// Token errors. ErrMalformedToken and ErrSignatureMismatch both match ErrInvalidToken.
var (
	ErrNoToken           = errors.New("no token")
	ErrInvalidToken      = errors.New("invalid token")
	ErrMalformedToken    = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrSignatureMismatch = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrExpiredToken      = errors.New("token expired")
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSelfKick        = errors.New("cannot kick yourself")
)

// LockedError reports a temporary lockout and when it ends. It matches ErrLocked.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return "account locked until " + e.Until.UTC().Format(time.RFC3339)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// RetryAfter returns the remaining lock time at now, rounded up to whole seconds.
func (e *LockedError) RetryAfter(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

// InvalidLoginError is the single failure a caller sees for an unknown username
// or a wrong password. It matches ErrInvalidCredential.
type InvalidLoginError struct {
	RemainingAttempts int
}

func (e *InvalidLoginError) Error() string {
	return "invalid username or password"
}

func (e *InvalidLoginError) Unwrap() error { return ErrInvalidCredential }

// Reason is a machine-readable code explaining why a request was not authenticated.
type Reason string

const (
	ReasonNoToken         Reason = "NoToken"
	ReasonInvalidToken    Reason = "InvalidToken"
	ReasonSessionNotFound Reason = "SessionNotFound"
	ReasonExpired         Reason = "Expired"
	ReasonForbidden       Reason = "Forbidden"
)

// ReasonFor maps a validation error onto its reason code.
// The second result is false for errors that are not authentication failures,
// such as store faults, which callers should answer as internal errors.
func ReasonFor(err error) (Reason, bool) {
	switch {
	case errors.Is(err, ErrNoToken):
		return ReasonNoToken, true
	case errors.Is(err, ErrInvalidToken):
		return ReasonInvalidToken, true
	case errors.Is(err, ErrExpiredToken), errors.Is(err, ErrSessionExpired):
		return ReasonExpired, true
	case errors.Is(err, ErrSessionNotFound):
		return ReasonSessionNotFound, true
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden, true
	default:
		return "", false
	}
}
