// Package auth provides token issuance, password hashing, Google identity
// introspection and the request gate for the feed API.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client registers/logs in with a password, or posts a Google token
//  2. Server resolves the local user and issues an access/refresh pair
//  3. Client sends "Authorization: Bearer <access token>" on API calls
//  4. Gate middleware verifies the token and puts a Principal in the context
//  5. When the access token expires, the client trades its refresh token for
//     a new access token at /api/auth/refresh-token
//
// WHY TWO SECRETS?
// Access and refresh tokens are signed with different keys, so one kind can
// never be replayed as the other even if the typ claim were ignored.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"user_id":42,"typ":"access","exp":1234567890,...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The server verifies the signature without any DB lookup.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/sakif/feed-core/internal/apperror"
)

// TokenKind distinguishes access from refresh tokens. It is carried in the
// "typ" claim and selects the verification secret.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour

	issuer       = "feed-core"
	minSecretLen = 32
)

var (
	ErrWeakSecret  = errors.New("auth: token secrets must be at least 32 bytes")
	ErrSameSecrets = errors.New("auth: access and refresh secrets must differ")
)

// CheckSecrets enforces the signing-key rules: both secrets at least 32
// bytes, and different from each other. config.Validate runs it at load
// time so a bad secret stops startup before anything else is built.
func CheckSecrets(accessSecret, refreshSecret string) error {
	if len(accessSecret) < minSecretLen || len(refreshSecret) < minSecretLen {
		return ErrWeakSecret
	}
	if accessSecret == refreshSecret {
		return ErrSameSecrets
	}
	return nil
}

// TokenPair is what login, registration and federation hand back.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService signs and verifies both kinds of token.
//
// It holds no per-user state: once issued, a token is valid until it
// expires. Password changes do not revoke tokens and refresh tokens are not
// rotated.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now for issuing and verifying. Tests use it to
// move past expiry without sleeping.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService checks both secrets and returns a ready service.
// Generate secrets with: openssl rand -hex 32
func NewTokenService(accessSecret, refreshSecret string, opts ...TokenOption) (*TokenService, error) {
	if err := CheckSecrets(accessSecret, refreshSecret); err != nil {
		return nil, err
	}

	s := &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// claims is the JWT payload. user_id is what clients and the gate read; sub
// mirrors it as a string for standard tooling.
type claims struct {
	UserID int64     `json:"user_id"`
	Type   TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

func (s *TokenService) IssueAccessToken(userID int64) (string, error) {
	return s.issue(userID, AccessToken)
}

func (s *TokenService) IssueRefreshToken(userID int64) (string, error) {
	return s.issue(userID, RefreshToken)
}

// IssuePair mints a fresh access and refresh token for userID.
func (s *TokenService) IssuePair(userID int64) (TokenPair, error) {
	access, err := s.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) issue(userID int64, kind TokenKind) (string, error) {
	secret, ttl := s.keyFor(kind)
	now := s.now()

	c := claims{
		UserID: userID,
		Type:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	// jwt.NewWithClaims creates an unsigned token; SignedString signs it.
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", kind, err)
	}
	return signed, nil
}

func (s *TokenService) keyFor(kind TokenKind) ([]byte, time.Duration) {
	if kind == RefreshToken {
		return s.refreshSecret, RefreshTokenTTL
	}
	return s.accessSecret, AccessTokenTTL
}

// Verify checks a token of the given kind and returns its user id.
//
// Failures come back as apperror kinds:
//   - empty token                       → TokenMissing
//   - good signature, past expiry       → TokenExpired
//   - anything else (bad signature, other kind's key, wrong typ, alg
//     other than HS256, malformed, missing user_id) → TokenInvalid
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm an attacker could send a token signed with
// "none". jwt.WithValidMethods prevents this.
func (s *TokenService) Verify(tokenStr string, kind TokenKind) (int64, error) {
	if tokenStr == "" {
		return 0, apperror.TokenMissing()
	}

	secret, _ := s.keyFor(kind)
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, apperror.TokenExpired()
		}
		return 0, apperror.TokenInvalid(err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return 0, apperror.TokenInvalid(errors.New("unexpected claims type"))
	}
	if c.Type != kind {
		return 0, apperror.TokenInvalid(fmt.Errorf("token type %q, want %q", c.Type, kind))
	}
	if c.UserID <= 0 {
		return 0, apperror.TokenInvalid(errors.New("token has no user_id"))
	}

	return c.UserID, nil
}

// Refresh verifies a refresh token and mints a new access token for the same
// user. The refresh token itself stays valid until its own expiry.
func (s *TokenService) Refresh(refreshToken string) (string, error) {
	userID, err := s.Verify(refreshToken, RefreshToken)
	if err != nil {
		return "", err
	}
	return s.IssueAccessToken(userID)
}
