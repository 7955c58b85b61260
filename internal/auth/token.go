// ABOUTME: JWT session tokens binding a session id to a user
// ABOUTME: HS256 only, with a process-wide secret and a fixed lifetime

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/2389/warden/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum required length for JWT secrets (256 bits for HS256).
const MinSecretLength = 32

// DefaultTokenTTL is how long a signed token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims are the identity facts carried by a session token.
type Claims struct {
	SessionID string
	UserID    string
	Username  string
	Role      store.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec signs and verifies session tokens.
type TokenCodec interface {
	Sign(c Claims) (string, error)
	Verify(token string) (*Claims, error)
	Inspect(token string) (*Claims, error)
	TTL() time.Duration
}

// tokenClaims is the JWT payload: sub = user id, jti = session id.
type tokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"usr"`
	Role     string `json:"role"`
}

// JWTCodec implements TokenCodec using HS256 signed JWTs.
type JWTCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTCodec creates a codec with the given secret and token lifetime.
// Returns an error if the secret is shorter than MinSecretLength bytes.
// A zero ttl selects DefaultTokenTTL.
func NewJWTCodec(secret []byte, ttl time.Duration) (*JWTCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if ttl < 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	// Copy so later mutation of the caller's slice cannot change the key.
	key := make([]byte, len(secret))
	copy(key, secret)

	return &JWTCodec{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime given to newly signed tokens.
func (c *JWTCodec) TTL() time.Duration {
	return c.ttl
}

// Sign produces a token for c. Zero IssuedAt/ExpiresAt are filled from the
// codec clock and TTL.
func (c *JWTCodec) Sign(claims Claims) (string, error) {
	if claims.SessionID == "" || claims.UserID == "" {
		return "", errors.New("session id and user id are required")
	}

	issued := claims.IssuedAt
	if issued.IsZero() {
		issued = c.now()
	}
	expires := claims.ExpiresAt
	if expires.IsZero() {
		expires = issued.Add(c.ttl)
	}

	payload := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			ID:        claims.SessionID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Username: claims.Username,
		Role:     string(claims.Role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token and returns its claims.
// Errors are ErrMalformedToken, ErrSignatureMismatch or ErrExpiredToken.
func (c *JWTCodec) Verify(token string) (*Claims, error) {
	return c.parse(token,
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
}

// Inspect checks only the signature, accepting expired tokens.
// Used where a caller proves it once held a session, such as logout.
func (c *JWTCodec) Inspect(token string) (*Claims, error) {
	return c.parse(token, jwt.WithoutClaimsValidation())
}

func (c *JWTCodec) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	if token == "" {
		return nil, ErrMalformedToken
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parser := jwt.NewParser(opts...)

	var payload tokenClaims
	_, err := parser.ParseWithClaims(token, &payload, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureMismatch
		default:
			return nil, ErrMalformedToken
		}
	}

	if payload.Subject == "" || payload.ID == "" {
		return nil, ErrMalformedToken
	}

	claims := &Claims{
		SessionID: payload.ID,
		UserID:    payload.Subject,
		Username:  payload.Username,
		Role:      store.Role(payload.Role),
	}
	if payload.IssuedAt != nil {
		claims.IssuedAt = payload.IssuedAt.Time
	}
	if payload.ExpiresAt != nil {
		claims.ExpiresAt = payload.ExpiresAt.Time
	}
	return claims, nil
}
