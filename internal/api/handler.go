// ABOUTME: JSON HTTP API for login, logout, session introspection and user administration
// ABOUTME: Routes are registered on a ServeMux and gated by the auth middleware

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/ratelimit"
	"github.com/2389/warden/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Directory lists users and activity for the admin endpoints.
// Implemented by store.SQLiteStore.
type Directory interface {
	ListUsers(ctx context.Context) ([]*store.User, error)
	ListActivity(ctx context.Context, filter store.ActivityFilter) ([]*store.ActivityRecord, error)
}

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Name string
	// Secure forces the Secure attribute even on plain HTTP requests.
	Secure bool
	MaxAge time.Duration
}

// Options configures a Handler.
type Options struct {
	Authenticator *auth.Authenticator
	Sessions      *auth.SessionAuthority
	Directory     Directory
	// Limiter throttles login attempts per client IP. Nil disables throttling.
	Limiter *ratelimit.Limiter
	// TrustForwardedFor keys the limiter on the first X-Forwarded-For entry.
	// Only set it behind a proxy that overwrites the header.
	TrustForwardedFor bool
	Cookie            CookieOptions
	LoginPath         string
	Logger            *slog.Logger
}

// Handler serves the API.
type Handler struct {
	auth      *auth.Authenticator
	sessions  *auth.SessionAuthority
	directory Directory
	limiter   *ratelimit.Limiter
	trustXFF  bool
	cookie    CookieOptions
	loginPath string
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Handler.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookie := opts.Cookie
	if cookie.Name == "" {
		cookie.Name = auth.DefaultCookieName
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = auth.DefaultTokenTTL
	}
	return &Handler{
		auth:      opts.Authenticator,
		sessions:  opts.Sessions,
		directory: opts.Directory,
		limiter:   opts.Limiter,
		trustXFF:  opts.TrustForwardedFor,
		cookie:    cookie,
		loginPath: opts.LoginPath,
		now:       time.Now,
		logger:    logger.With("component", "api"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	authMiddleware := auth.HTTPAuthMiddleware(h.sessions, auth.HTTPOptions{
		CookieName: h.cookie.Name,
		LoginPath:  h.loginPath,
		Logger:     h.logger,
	})
	requireAdmin := auth.RequireAdminHTTP()

	protected := func(fn http.HandlerFunc) http.Handler {
		return authMiddleware(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return authMiddleware(requireAdmin(fn))
	}

	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /api/auth/session", h.handleSession)
	mux.Handle("GET /api/auth/me", protected(h.handleMe))
	mux.Handle("POST /api/auth/password", protected(h.handleChangePassword))

	mux.Handle("POST /api/admin/kick", admin(h.handleKick))
	mux.Handle("GET /api/admin/sessions", admin(h.handleListSessions))
	mux.Handle("GET /api/admin/users", admin(h.handleListUsers))
	mux.Handle("POST /api/admin/users", admin(h.handleCreateUser))
	mux.Handle("POST /api/admin/users/{id}/lock", admin(h.handleLockUser))
	mux.Handle("POST /api/admin/users/{id}/unlock", admin(h.handleUnlockUser))
	mux.Handle("GET /api/admin/activity", admin(h.handleListActivity))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// sendJSONError writes an error response with the given status code and message.
func (h *Handler) sendJSONError(w http.ResponseWriter, status int, message string) {
	auth.WriteError(w, status, message)
}

// internalError logs err and answers with a generic 500.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "path", r.URL.Path)
	h.sendJSONError(w, http.StatusInternalServerError, "internal error")
}

// limiterKey is the client address throttled on login. X-Forwarded-For is
// client-controlled, so it is used only when trustXFF is set.
func (h *Handler) limiterKey(r *http.Request, md auth.Metadata) string {
	if h.trustXFF && md.IP != "unknown" {
		return md.IP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
