// ABOUTME: Password hashing and credential verification against stored user hashes
// ABOUTME: Accepts bcrypt and argon2id hashes; unknown users still pay for one bcrypt compare

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/warden/internal/store"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted when one is set.
const MinPasswordLength = 8

// Hash algorithms understood by Hasher.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

const (
	argon2Time      = 3
	argon2Memory    = 64 * 1024
	argon2Threads   = 2
	argon2KeyLength = 32
	argon2SaltLen   = 16
)

// dummyHash is compared against when a username does not exist, so a miss
// costs the same as a wrong password.
var dummyHash = mustBcrypt("warden-dummy-password")

func mustBcrypt(password string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("auth: generating dummy hash: %v", err))
	}
	return h
}

// UserLookup finds users by username.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// CredentialVerifier checks a username and password against stored hashes.
type CredentialVerifier struct {
	users  UserLookup
	logger *slog.Logger
}

// NewCredentialVerifier creates a verifier reading users from users.
func NewCredentialVerifier(users UserLookup, logger *slog.Logger) *CredentialVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialVerifier{users: users, logger: logger.With("component", "auth.credentials")}
}

// Verify returns the user when password matches, ErrUserNotFound when the
// username is unknown, or ErrInvalidCredential on a mismatch.
// It does not consult the lockout state.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password string) (*store.User, error) {
	user, err := v.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := ComparePassword(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrInvalidCredential) {
			v.logger.Error("unreadable password hash", "user_id", user.ID, "error", err)
		}
		return nil, ErrInvalidCredential
	}
	return user, nil
}

// ComparePassword checks password against an encoded bcrypt or argon2id hash.
// Returns ErrInvalidCredential on mismatch, or another error if the hash cannot be read.
func ComparePassword(encodedHash, password string) error {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		ok, err := compareArgon2id(encodedHash, password)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidCredential
		}
		return nil
	case strings.HasPrefix(encodedHash, "$2a$"), strings.HasPrefix(encodedHash, "$2b$"), strings.HasPrefix(encodedHash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredential
		}
		if err != nil {
			return fmt.Errorf("comparing bcrypt hash: %w", err)
		}
		return nil
	default:
		return errors.New("unrecognized password hash format")
	}
}

func compareArgon2id(encodedHash, password string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, errors.New("invalid argon2id hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parsing argon2id version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("incompatible argon2 version %d", version)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("parsing argon2id parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding argon2id salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decoding argon2id hash: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// Hasher produces password hashes for new or changed passwords.
type Hasher struct {
	Algorithm string // AlgorithmBcrypt (default) or AlgorithmArgon2id
}

// Hash validates the password length and returns its encoded hash.
func (h Hasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	switch h.Algorithm {
	case "", AlgorithmBcrypt:
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("hashing password: %w", err)
		}
		return string(hash), nil
	case AlgorithmArgon2id:
		return hashArgon2id(password)
	default:
		return "", fmt.Errorf("unknown password hash algorithm %q", h.Algorithm)
	}
}

// HashPassword hashes password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	return Hasher{}.Hash(password)
}

func hashArgon2id(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}
