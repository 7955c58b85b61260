// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token precedence, reason codes, browser redirects, store faults and the admin gate

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/store"
)

// stubValidator accepts exactly one token.
type stubValidator struct {
	token     string
	principal *Principal
	err       error
}

func (s *stubValidator) Validate(_ context.Context, token string) (*Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if token != s.token {
		return nil, ErrSessionNotFound
	}
	return s.principal, nil
}

func captureHandler(got **Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHTTPAuthMiddleware_BearerToken(t *testing.T) {
	v := &stubValidator{token: "good", principal: &Principal{UserID: "u1", Role: store.RoleStaff}}
	var got *Principal

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(v, HTTPOptions{})(captureHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
}

func TestHTTPAuthMiddleware_CookieFallback(t *testing.T) {
	v := &stubValidator{token: "from-cookie", principal: &Principal{UserID: "u1"}}
	var got *Principal

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "from-cookie"})
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(v, HTTPOptions{})(captureHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
}

func TestHTTPAuthMiddleware_HeaderTakesPrecedence(t *testing.T) {
	v := &stubValidator{token: "from-cookie", principal: &Principal{UserID: "u1"}}
	var got *Principal

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer stale-header-token")
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "from-cookie"})
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(v, HTTPOptions{})(captureHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, got)
	assert.Equal(t, string(ReasonSessionNotFound), rec.Header().Get(ReasonHeader))
}

func TestHTTPAuthMiddleware_CustomCookieName(t *testing.T) {
	v := &stubValidator{token: "tok", principal: &Principal{UserID: "u1"}}
	var got *Principal

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "dash_sid", Value: "tok"})
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(v, HTTPOptions{CookieName: "dash_sid"})(captureHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPAuthMiddleware_ReasonCodes(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		reason Reason
	}{
		{"no token", "", nil, ReasonNoToken},
		{"non-bearer header", "Basic Zm9vOmJhcg==", nil, ReasonNoToken},
		{"invalid token", "Bearer x", ErrMalformedToken, ReasonInvalidToken},
		{"bad signature", "Bearer x", ErrSignatureMismatch, ReasonInvalidToken},
		{"expired token", "Bearer x", ErrExpiredToken, ReasonExpired},
		{"expired session", "Bearer x", ErrSessionExpired, ReasonExpired},
		{"kicked", "Bearer x", ErrSessionNotFound, ReasonSessionNotFound},
		{"locked user", "Bearer x", ErrForbidden, ReasonForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &stubValidator{err: tt.err}
			var got *Principal

			req := httptest.NewRequest(http.MethodPost, "/api/admin/kick", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			HTTPAuthMiddleware(v, HTTPOptions{})(captureHandler(&got)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, got)
			assert.Equal(t, string(tt.reason), rec.Header().Get(ReasonHeader))
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			body := decodeError(t, rec)
			assert.Equal(t, string(tt.reason), body["reason"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHTTPAuthMiddleware_BrowserRedirect(t *testing.T) {
	v := &stubValidator{err: ErrSessionNotFound}
	var got *Principal

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(v, HTTPOptions{LoginPath: "/signin"})(captureHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signin?reason=SessionNotFound", rec.Header().Get("Location"))
	assert.Nil(t, got)
}

func TestHTTPAuthMiddleware_BrowserPostGetsJSON(t *testing.T) {
	v := &stubValidator{err: ErrSessionNotFound}
	var got *Principal

	req := httptest.NewRequest(http.MethodPost, "/dashboard", nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(v, HTTPOptions{})(captureHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPAuthMiddleware_StoreFault(t *testing.T) {
	v := &stubValidator{err: errors.New("database is locked")}
	var got *Principal

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(v, HTTPOptions{})(captureHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get(ReasonHeader))
	assert.NotContains(t, rec.Body.String(), "database")
}

func TestHTTPAuthMiddleware_RealSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addUser(t, "alice", "correct-password", store.RoleStaff)
	res, err := h.auth.Login(ctx, "alice", "correct-password", testMetadata)
	require.NoError(t, err)

	handler := HTTPAuthMiddleware(h.sessions, HTTPOptions{})
	var got *Principal

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec := httptest.NewRecorder()
	handler(captureHandler(&got)).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id-alice", got.UserID)

	require.NoError(t, h.auth.Logout(ctx, res.Token, testMetadata))

	got = nil
	rec = httptest.NewRecorder()
	handler(captureHandler(&got)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(ReasonSessionNotFound), rec.Header().Get(ReasonHeader))
}

func TestRequireAdminHTTP(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name      string
		principal *Principal
		want      int
	}{
		{"admin", &Principal{UserID: "a", Role: store.RoleAdmin}, http.StatusNoContent},
		{"staff", &Principal{UserID: "s", Role: store.RoleStaff}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/kick", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			}
			rec := httptest.NewRecorder()
			RequireAdminHTTP()(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetadataFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	md := MetadataFromRequest(req)
	assert.Equal(t, "unknown", md.IP)
	assert.Equal(t, "unknown", md.UserAgent)

	req.Header.Set("X-Forwarded-For", " 203.0.113.5 , 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	md = MetadataFromRequest(req)
	assert.Equal(t, "203.0.113.5", md.IP)
	assert.Equal(t, "Mozilla/5.0", md.UserAgent)
}

func TestFromContext_Empty(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	assert.Panics(t, func() { MustFromContext(context.Background()) })
	assert.False(t, (*Principal)(nil).IsAdmin())
}
