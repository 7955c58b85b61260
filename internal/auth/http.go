// ABOUTME: HTTP middleware gating requests on a valid session token
// ABOUTME: Reads the bearer header or session cookie, answers 401 with a reason code or redirects browsers

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Defaults for HTTPOptions.
const (
	DefaultCookieName = "warden_session"
	DefaultLoginPath  = "/login"
)

// ReasonHeader carries the reason code on rejected responses.
const ReasonHeader = "X-Auth-Reason"

// Validator validates a session token. Implemented by SessionAuthority.
type Validator interface {
	Validate(ctx context.Context, token string) (*Principal, error)
}

// HTTPOptions configures HTTPAuthMiddleware.
type HTTPOptions struct {
	CookieName string
	LoginPath  string
	Logger     *slog.Logger
}

func (o HTTPOptions) withDefaults() HTTPOptions {
	if o.CookieName == "" {
		o.CookieName = DefaultCookieName
	}
	if o.LoginPath == "" {
		o.LoginPath = DefaultLoginPath
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Logger = o.Logger.With("component", "auth.http")
	return o
}

// ExtractToken returns the request's session token. The Authorization bearer
// header takes precedence over the cookie. Returns "" when neither is present.
func ExtractToken(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// MetadataFromRequest extracts the client IP (first X-Forwarded-For entry)
// and user agent, substituting "unknown" for either when absent.
func MetadataFromRequest(r *http.Request) Metadata {
	md := Metadata{IP: "unknown", UserAgent: "unknown"}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			md.IP = ip
		}
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		md.UserAgent = ua
	}
	return md
}

// ReasonMessage is the human-readable text sent with a reason code.
func ReasonMessage(reason Reason) string {
	switch reason {
	case ReasonNoToken:
		return "authentication required"
	case ReasonInvalidToken:
		return "invalid token"
	case ReasonSessionNotFound:
		return "session not found"
	case ReasonExpired:
		return "session expired"
	case ReasonForbidden:
		return "account locked"
	default:
		return "unauthorized"
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// isBrowserRequest reports whether a rejected request should be redirected to
// the login page rather than answered with JSON.
func isBrowserRequest(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// HTTPAuthMiddleware creates an HTTP middleware that validates the session token
// and adds the Principal to the request context using the same
// WithPrincipal/FromContext pattern as the gRPC interceptors.
func HTTPAuthMiddleware(v Validator, opts HTTPOptions) func(http.Handler) http.Handler {
	opts = opts.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r, opts.CookieName)

			var principal *Principal
			var err error
			if token == "" {
				err = ErrNoToken
			} else {
				principal, err = v.Validate(r.Context(), token)
			}

			if err != nil {
				reason, ok := ReasonFor(err)
				if !ok {
					opts.Logger.Error("session validation failed", "error", err, "path", r.URL.Path)
					WriteError(w, http.StatusInternalServerError, "internal error")
					return
				}

				opts.Logger.Warn("auth failure", "reason", string(reason), "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				w.Header().Set(ReasonHeader, string(reason))

				if isBrowserRequest(r) {
					target := opts.LoginPath + "?reason=" + url.QueryEscape(string(reason))
					http.Redirect(w, r, target, http.StatusSeeOther)
					return
				}

				WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":  ReasonMessage(reason),
					"reason": string(reason),
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdminHTTP creates an HTTP middleware that requires the admin role.
// Must be used after HTTPAuthMiddleware.
func RequireAdminHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := FromContext(r.Context())
			if principal == nil {
				WriteError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			if !principal.IsAdmin() {
				WriteError(w, http.StatusForbidden, "admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
