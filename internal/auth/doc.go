// Package auth provides credential checks, login lockout and session control for warden.
//
// # Login Flow
//
//	LoginAttemptGuard.CheckLock -> CredentialVerifier.Verify
//	  -> RecordFailure / RecordSuccess -> SessionAuthority.Create -> token
//
// Authenticator wires these together. Unknown usernames and wrong passwords
// both surface as *InvalidLoginError so callers cannot probe for accounts;
// attempts are counted for unknown usernames too.
//
// # Lockout
//
// Five consecutive failures lock a username for five minutes (both
// configurable). While locked every attempt is rejected, even with the right
// password. A success resets the count only if no lock is active at that
// moment, so a lock placed while a correct password was being checked still
// refuses that login. A failure after the lock has lapsed
// starts counting again from one. Counts live in an AttemptStore, either the
// SQLite store or Redis for multi-host deployments.
//
// # Sessions
//
// Each user holds at most one session. Create replaces any prior session in a
// single transaction, so signing in elsewhere logs the old client out. Tokens
// are HS256 JWTs carrying the session id (jti) and user id (sub); a token is
// only honoured while its server-side session exists and has not expired.
// A kicked session and one that never existed are indistinguishable.
//
// # Access Middleware
//
// HTTPAuthMiddleware reads the Authorization bearer header, falling back to
// the session cookie, and attaches a Principal to the request context.
// Rejections carry one of the reason codes NoToken, InvalidToken,
// SessionNotFound, Expired or Forbidden, in the JSON body and the
// X-Auth-Reason header. Browser GETs are redirected to the login page instead.
//
// UnaryInterceptor and StreamInterceptor apply the same gate to gRPC, reading
// the "authorization" metadata key. The gRPC health service is exempt.
package auth
