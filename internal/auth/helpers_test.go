// ABOUTME: Shared fixtures for auth tests
// ABOUTME: Real SQLite store, a controllable clock and a recording activity sink

package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/warden/internal/store"
)

// testSecret is a 32+ byte secret that meets MinSecretLength.
var testSecret = []byte("warden-auth-test-secret-32-bytes!")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu      sync.Mutex
	records []store.ActivityRecord
}

func (s *recordingSink) Record(rec store.ActivityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) actions() []store.ActivityAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.ActivityAction, len(s.records))
	for i, r := range s.records {
		out[i] = r.Action
	}
	return out
}

type harness struct {
	store    *store.SQLiteStore
	clock    *testClock
	codec    *JWTCodec
	guard    *LoginAttemptGuard
	sessions *SessionAuthority
	auth     *Authenticator
	sink     *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return newHarnessWithAttempts(t, s, s)
}

func newHarnessWithAttempts(t *testing.T, s *store.SQLiteStore, attempts AttemptStore) *harness {
	t.Helper()

	clock := newTestClock()

	codec, err := NewJWTCodec(testSecret, time.Hour)
	require.NoError(t, err)
	codec.now = clock.Now

	guard := NewLoginAttemptGuard(attempts, DefaultMaxAttempts, DefaultLockDuration, nil)
	guard.now = clock.Now

	sessions := NewSessionAuthority(s, codec, nil)
	sessions.now = clock.Now

	sink := &recordingSink{}
	a := &Authenticator{
		Credentials: NewCredentialVerifier(s, nil),
		Guard:       guard,
		Sessions:    sessions,
		Users:       s,
		Activity:    sink,
	}

	return &harness{
		store:    s,
		clock:    clock,
		codec:    codec,
		guard:    guard,
		sessions: sessions,
		auth:     a,
		sink:     sink,
	}
}

// addUser stores a user with a low-cost bcrypt hash of password.
func (h *harness) addUser(t *testing.T, username, password string, role store.Role) *store.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	now := h.clock.Now()
	user := &store.User{
		ID:           "id-" + username,
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Teams:        []string{"ops"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, h.store.CreateUser(context.Background(), user))
	return user
}

var testMetadata = Metadata{IP: "198.51.100.4", UserAgent: "auth-test"}
