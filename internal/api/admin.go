// ABOUTME: Admin-only handlers for kicking sessions and managing accounts
// ABOUTME: Mounted behind the auth middleware and the admin role check

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/store"
)

// handleKick handles POST /api/admin/kick.
func (h *Handler) handleKick(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	var req KickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TargetUserID == "" {
		h.sendJSONError(w, http.StatusBadRequest, "targetUserId is required")
		return
	}

	n, err := h.auth.Kick(r.Context(), caller, req.TargetUserID, auth.MetadataFromRequest(r))
	if errors.Is(err, auth.ErrSelfKick) {
		h.sendJSONError(w, http.StatusBadRequest, "cannot kick yourself")
		return
	}
	if err != nil {
		h.internalError(w, r, "kick failed", err)
		return
	}

	auth.WriteJSON(w, http.StatusOK, KickResponse{Revoked: n})
}

// handleListSessions handles GET /api/admin/sessions.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActive(r.Context())
	if err != nil {
		h.internalError(w, r, "listing sessions failed", err)
		return
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionInfo(s))
	}
	auth.WriteJSON(w, http.StatusOK, out)
}

// handleListUsers handles GET /api/admin/users.
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListUsers(r.Context())
	if err != nil {
		h.internalError(w, r, "listing users failed", err)
		return
	}

	out := make([]UserInfo, 0, len(users))
	for _, u := range users {
		out = append(out, userInfo(u))
	}
	auth.WriteJSON(w, http.StatusOK, out)
}

// handleCreateUser handles POST /api/admin/users.
func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	role := store.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if role == "" {
		role = store.RoleStaff
	}

	user, err := h.auth.CreateUser(r.Context(), caller, auth.NewUser{
		Username: req.Username,
		Password: req.Password,
		Role:     role,
		Teams:    req.Teams,
	}, auth.MetadataFromRequest(r))
	switch {
	case err == nil:
		auth.WriteJSON(w, http.StatusCreated, userInfo(user))
	case errors.Is(err, auth.ErrInvalidUser), errors.Is(err, auth.ErrPasswordTooShort):
		h.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUsernameExists):
		h.sendJSONError(w, http.StatusConflict, "username already exists")
	default:
		h.internalError(w, r, "creating user failed", err)
	}
}

// handleLockUser handles POST /api/admin/users/{id}/lock.
func (h *Handler) handleLockUser(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

// handleUnlockUser handles POST /api/admin/users/{id}/unlock.
func (h *Handler) handleUnlockUser(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *Handler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	caller := auth.MustFromContext(r.Context())
	userID := r.PathValue("id")

	err := h.auth.SetLocked(r.Context(), caller, userID, locked, auth.MetadataFromRequest(r))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrSelfKick):
		h.sendJSONError(w, http.StatusBadRequest, "cannot lock yourself")
	case errors.Is(err, store.ErrUserNotFound):
		h.sendJSONError(w, http.StatusNotFound, "user not found")
	default:
		h.internalError(w, r, "updating lock failed", err)
	}
}

// handleListActivity handles GET /api/admin/activity?user_id=&action=&limit=.
func (h *Handler) handleListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ActivityFilter{
		UserID: q.Get("user_id"),
		Action: store.ActivityAction(q.Get("action")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	records, err := h.directory.ListActivity(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, "listing activity failed", err)
		return
	}

	out := make([]ActivityInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, activityInfo(rec))
	}
	auth.WriteJSON(w, http.StatusOK, out)
}
