package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/feed-core/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A package-private type means
// only THIS package can read or write the principal, so nothing else can
// plant one.
type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller of a request.
//
// The field is unexported: outside this package a Principal can only be
// obtained from PrincipalFromContext, after the Gate has verified a token.
type Principal struct {
	userID int64
}

func (p Principal) UserID() int64 {
	return p.userID
}

// Gate turns a bearer access token into a Principal.
type Gate struct {
	tokens *TokenService
}

func NewGate(tokens *TokenService) *Gate {
	return &Gate{tokens: tokens}
}

// Authenticate reads "Authorization: Bearer <token>" and verifies it as an
// access token. A missing header, another scheme or an empty bearer value
// all yield apperror.TokenMissing.
func (g *Gate) Authenticate(r *http.Request) (Principal, error) {
	token, ok := bearerToken(r)
	if !ok {
		return Principal{}, apperror.TokenMissing()
	}

	userID, err := g.tokens.Verify(token, AccessToken)
	if err != nil {
		return Principal{}, err
	}
	return Principal{userID: userID}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it. Chi applies them in a chain: req → M1 → M2 → Handler → M2 → M1.
//
// On failure it answers 401 with {"error": "token_missing" | "token_expired"
// | "token_invalid", "message": ...} and stops the chain.
func (g *Gate) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := g.Authenticate(r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

// OptionalAuth attaches a principal when a valid token is present and
// never rejects the request. Used on public reads where a signed-in caller
// sees a little more (e.g. whether they liked a post).
func (g *Gate) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principal, err := g.Authenticate(r); err == nil {
			r = r.WithContext(withPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

// withPrincipal stores p in ctx.
func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller, or false for anonymous requests.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.userID > 0
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := "invalid token"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   apperror.Code(err),
		"message": msg,
	})
}
