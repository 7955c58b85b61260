// ABOUTME: Handlers for login, logout, session introspection and password change
// ABOUTME: Translates authenticator failures into status codes and manages the session cookie

package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/warden/internal/auth"
)

// handleLogin handles POST /api/auth/login.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	md := auth.MetadataFromRequest(r)

	if key := h.limiterKey(r, md); h.limiter != nil && !h.limiter.Allow(key) {
		wait := h.limiter.RetryAfter(key)
		h.logger.Warn("login rate limited", "client", key, "ip", md.IP)
		h.sendRetry(w, "too many login attempts", wait)
		return
	}

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		h.sendJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password, md)
	if err != nil {
		var locked *auth.LockedError
		var invalid *auth.InvalidLoginError
		switch {
		case errors.As(err, &locked):
			wait := locked.RetryAfter(h.now())
			h.sendRetry(w, "account locked, try again in "+formatWait(wait), wait)
		case errors.As(err, &invalid):
			auth.WriteJSON(w, http.StatusUnauthorized, LoginFailure{
				Error:             invalid.Error(),
				RemainingAttempts: invalid.RemainingAttempts,
			})
		case errors.Is(err, auth.ErrForbidden):
			h.sendJSONError(w, http.StatusForbidden, "account disabled")
		default:
			h.internalError(w, r, "login failed", err)
		}
		return
	}

	h.setSessionCookie(w, r, result.Token)
	auth.WriteJSON(w, http.StatusOK, LoginResponse{
		Token: result.Token,
		User:  userInfo(result.User),
	})
}

// handleLogout handles POST /api/auth/logout. The cookie is cleared even when
// the token no longer names a live session.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r, h.cookie.Name)
	if token != "" {
		err := h.auth.Logout(r.Context(), token, auth.MetadataFromRequest(r))
		if err != nil {
			if _, ok := auth.ReasonFor(err); !ok {
				h.internalError(w, r, "logout failed", err)
				return
			}
		}
	}

	h.clearSessionCookie(w, r)
	auth.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleSession handles GET /api/auth/session. It always answers 200 and
// reports validity in the body.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r, h.cookie.Name)
	if token == "" {
		auth.WriteJSON(w, http.StatusOK, SessionResponse{Reason: string(auth.ReasonNoToken)})
		return
	}

	principal, err := h.sessions.Validate(r.Context(), token)
	if err != nil {
		reason, ok := auth.ReasonFor(err)
		if !ok {
			h.internalError(w, r, "session check failed", err)
			return
		}
		auth.WriteJSON(w, http.StatusOK, SessionResponse{Reason: string(reason)})
		return
	}

	info := principalInfo(principal)
	auth.WriteJSON(w, http.StatusOK, SessionResponse{Valid: true, User: &info})
}

// handleMe handles GET /api/auth/me.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	auth.WriteJSON(w, http.StatusOK, MeResponse{
		UserInfo:  principalInfo(p),
		SessionID: p.SessionID,
	})
}

// handleChangePassword handles POST /api/auth/password.
func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		h.sendJSONError(w, http.StatusBadRequest, "current_password and new_password are required")
		return
	}

	err := h.auth.ChangePassword(r.Context(), p, req.CurrentPassword, req.NewPassword, auth.MetadataFromRequest(r))
	var locked *auth.LockedError
	var invalid *auth.InvalidLoginError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &locked):
		wait := locked.RetryAfter(h.now())
		h.sendRetry(w, "account locked, try again in "+formatWait(wait), wait)
	case errors.As(err, &invalid):
		auth.WriteJSON(w, http.StatusUnauthorized, LoginFailure{
			Error:             "current password is incorrect",
			RemainingAttempts: invalid.RemainingAttempts,
		})
	case errors.Is(err, auth.ErrPasswordTooShort):
		h.sendJSONError(w, http.StatusBadRequest, err.Error())
	default:
		h.internalError(w, r, "password change failed", err)
	}
}

// sendRetry answers 429 with the wait in both the body and Retry-After.
func (h *Handler) sendRetry(w http.ResponseWriter, message string, wait time.Duration) {
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	auth.WriteJSON(w, http.StatusTooManyRequests, RetryFailure{
		Error:             message,
		RetryAfterSeconds: secs,
	})
}

// formatWait renders a wait as "Xm Ys".
func formatWait(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
