package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/feed-core/internal/apperror"
)

const (
	testAccessSecret  = "access-secret-for-tests-0123456789"
	testRefreshSecret = "refresh-secret-for-tests-012345678"
)

// fakeClock is a settable time source for WithClock.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// tamper swaps token's payload for donor's, keeping token's signature.
func tamper(token, donor string) string {
	parts := strings.Split(token, ".")
	donorParts := strings.Split(donor, ".")
	return parts[0] + "." + donorParts[1] + "." + parts[2]
}

// newTestTokenService creates a TokenService with fixed secrets and a
// controllable clock so tests are deterministic.
func newTestTokenService(t *testing.T) (*TokenService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	ts, err := NewTokenService(testAccessSecret, testRefreshSecret, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts, clock
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_RejectsBadSecrets(t *testing.T) {
	tests := []struct {
		name            string
		access, refresh string
		wantErr         error
	}{
		{"short access", "short", testRefreshSecret, ErrWeakSecret},
		{"short refresh", testAccessSecret, "short", ErrWeakSecret},
		{"same secrets", testAccessSecret, testAccessSecret, ErrSameSecrets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenService(tt.access, tt.refresh)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTokenService() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// =========================================================================
// ISSUE / VERIFY
// =========================================================================

func TestIssuePair_RoundTrip(t *testing.T) {
	ts, _ := newTestTokenService(t)

	pair, err := ts.IssuePair(42)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}
	if strings.Count(pair.AccessToken, ".") != 2 {
		t.Errorf("access token %q does not look like a JWT", pair.AccessToken)
	}

	if id, err := ts.Verify(pair.AccessToken, AccessToken); err != nil || id != 42 {
		t.Errorf("Verify(access) = %d, %v; want 42, nil", id, err)
	}
	if id, err := ts.Verify(pair.RefreshToken, RefreshToken); err != nil || id != 42 {
		t.Errorf("Verify(refresh) = %d, %v; want 42, nil", id, err)
	}
}

func TestIssue_TokensAreUnique(t *testing.T) {
	ts, _ := newTestTokenService(t)

	a, _ := ts.IssueAccessToken(1)
	b, _ := ts.IssueAccessToken(1)
	if a == b {
		t.Error("two tokens issued in the same second should differ (jti)")
	}
}

func TestIssue_Claims(t *testing.T) {
	ts, clock := newTestTokenService(t)

	token, err := ts.IssueRefreshToken(7)
	if err != nil {
		t.Fatalf("IssueRefreshToken() error = %v", err)
	}

	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	if c.UserID != 7 || c.Subject != "7" {
		t.Errorf("user_id = %d, sub = %q; want 7", c.UserID, c.Subject)
	}
	if c.Type != RefreshToken {
		t.Errorf("typ = %q, want %q", c.Type, RefreshToken)
	}
	if c.ID == "" {
		t.Error("jti is empty")
	}
	if got := c.ExpiresAt.Time.Sub(clock.Now()); got != RefreshTokenTTL {
		t.Errorf("lifetime = %s, want %s", got, RefreshTokenTTL)
	}
}

func TestVerify_Expiry(t *testing.T) {
	ts, clock := newTestTokenService(t)
	token, _ := ts.IssueAccessToken(5)

	clock.Advance(AccessTokenTTL - time.Second)
	if _, err := ts.Verify(token, AccessToken); err != nil {
		t.Fatalf("Verify() just before expiry error = %v", err)
	}

	clock.Advance(2 * time.Second)
	_, err := ts.Verify(token, AccessToken)
	if !errors.Is(err, apperror.ErrTokenExpired) {
		t.Errorf("Verify() after expiry error = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_Failures(t *testing.T) {
	ts, _ := newTestTokenService(t)
	access, _ := ts.IssueAccessToken(9)
	refresh, _ := ts.IssueRefreshToken(9)
	admin, _ := ts.IssueAccessToken(1)

	other, err := NewTokenService(
		"another-access-secret-0123456789xx",
		"another-refresh-secret-0123456789x",
	)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	foreign, _ := other.IssueAccessToken(9)

	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims{UserID: 9, Type: AccessToken}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		kind    TokenKind
		wantErr error
	}{
		{"empty", "", AccessToken, apperror.ErrTokenMissing},
		{"garbage", "not.a.jwt", AccessToken, apperror.ErrTokenInvalid},
		{"tampered", tamper(access, admin), AccessToken, apperror.ErrTokenInvalid},
		{"signed by another service", foreign, AccessToken, apperror.ErrTokenInvalid},
		{"refresh used as access", refresh, AccessToken, apperror.ErrTokenInvalid},
		{"access used as refresh", access, RefreshToken, apperror.ErrTokenInvalid},
		{"alg none", noneToken, AccessToken, apperror.ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Verify(tt.token, tt.kind)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_WrongTypeSameSecret(t *testing.T) {
	ts, clock := newTestTokenService(t)

	// Correctly signed with the access key but claiming to be a refresh token.
	c := claims{
		UserID: 3,
		Type:   RefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testAccessSecret))

	if _, err := ts.Verify(token, AccessToken); !errors.Is(err, apperror.ErrTokenInvalid) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
	}
}

// =========================================================================
// REFRESH
// =========================================================================

func TestRefresh(t *testing.T) {
	ts, clock := newTestTokenService(t)
	refresh, _ := ts.IssueRefreshToken(11)

	// Well past the access TTL but inside the refresh TTL.
	clock.Advance(24 * time.Hour)

	access, err := ts.Refresh(refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if id, err := ts.Verify(access, AccessToken); err != nil || id != 11 {
		t.Errorf("Verify(new access) = %d, %v; want 11, nil", id, err)
	}
}

func TestRefresh_MintsNothingOnBadToken(t *testing.T) {
	ts, clock := newTestTokenService(t)
	refresh, _ := ts.IssueRefreshToken(11)
	access, _ := ts.IssueAccessToken(11)

	other, _ := ts.IssueRefreshToken(12)
	tampered := tamper(refresh, other)
	if tok, err := ts.Refresh(tampered); !errors.Is(err, apperror.ErrTokenInvalid) || tok != "" {
		t.Errorf("Refresh(tampered) = %q, %v; want empty, ErrTokenInvalid", tok, err)
	}
	if tok, err := ts.Refresh(access); !errors.Is(err, apperror.ErrTokenInvalid) || tok != "" {
		t.Errorf("Refresh(access token) = %q, %v; want empty, ErrTokenInvalid", tok, err)
	}

	clock.Advance(RefreshTokenTTL + time.Second)
	if tok, err := ts.Refresh(refresh); !errors.Is(err, apperror.ErrTokenExpired) || tok != "" {
		t.Errorf("Refresh(expired) = %q, %v; want empty, ErrTokenExpired", tok, err)
	}
}
