// Package store provides persistent storage for warden using SQLite.
//
// # Data Models
//
//   - User: dashboard account with a flat role (admin or staff) and an administrative lock flag
//   - Session: the one server-side session a user may hold
//   - AttemptState: consecutive login failures and the lock they produced
//   - ActivityRecord: append-only log of sign-in, sign-out and kick events
//
// # Atomicity
//
// The single-session rule is enforced by a unique index on sessions(user_id).
// ReplaceSession deletes and inserts inside one immediate transaction, so two
// concurrent logins for the same user serialize and exactly one session survives.
//
// TouchSession checks existence and expiry and updates last_active in one
// UPDATE ... RETURNING statement. IncrementAttempts is a single upsert, so
// concurrent failures for one username are all counted.
//
// # SQLite Configuration
//
// Pragmas are applied per connection through the DSN:
//
//	busy_timeout(5000), journal_mode(WAL), foreign_keys(1), _txlock=immediate
//
// Timestamps are stored as UTC RFC3339 text so SQL comparison matches time order.
//
// # Redis
//
// RedisAttemptStore is an alternative home for login attempt state when several
// warden processes must share one lockout view. Sessions always live in SQLite.
//
// # Error Handling
//
//   - ErrUserNotFound: user does not exist
//   - ErrUsernameExists: username already taken (case-insensitive)
//   - ErrSessionNotFound: session does not exist
//   - ErrSessionExpired: session existed but had expired; the row has been removed
//
// All methods accept context.Context for cancellation support.
package store
