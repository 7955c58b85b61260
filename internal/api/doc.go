// Package api serves warden's JSON HTTP API.
//
// # Routes
//
// Public:
//
//   - POST /api/auth/login - {username, password}; sets the session cookie
//   - POST /api/auth/logout - revokes the caller's session and clears the cookie
//   - GET /api/auth/session - {valid, user, reason}, always 200
//
// Authenticated:
//
//   - GET /api/auth/me
//   - POST /api/auth/password - {current_password, new_password}
//
// Admin:
//
//   - POST /api/admin/kick - {targetUserId}
//   - GET /api/admin/sessions
//   - GET /api/admin/users, POST /api/admin/users
//   - POST /api/admin/users/{id}/lock, POST /api/admin/users/{id}/unlock
//   - GET /api/admin/activity?user_id=&action=&limit=
//
// # Login Failures
//
// Wrong credentials and unknown users answer the same 401 with the attempts
// left before lockout. A temporary lockout answers 429 with Retry-After and
// the remaining wait. An administratively locked account answers 403.
// Requests over the per-IP rate answer 429. The rate is keyed on the TCP peer
// unless Options.TrustForwardedFor is set. Wrong current passwords on
// /api/auth/password count toward the same lockout.
package api
