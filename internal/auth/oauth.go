package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sakif/feed-core/internal/apperror"
)

const (
	defaultTokenInfoURL    = "https://oauth2.googleapis.com/tokeninfo"
	defaultUserInfoURL     = "https://openidconnect.googleapis.com/v1/userinfo"
	defaultProviderTimeout = 5 * time.Second
)

// ExternalIdentity is what Google tells us about the token holder.
type ExternalIdentity struct {
	Subject       string // Google's stable account id ("sub")
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
}

// GoogleConfig configures a GoogleProvider. Only ClientID is required; the
// endpoint URLs default to Google's and are overridden in tests.
type GoogleConfig struct {
	ClientID     string
	Timeout      time.Duration
	TokenInfoURL string
	UserInfoURL  string
	HTTPClient   *http.Client
}

// GoogleProvider turns a token obtained by the client from Google Sign-In
// into a verified ExternalIdentity.
//
// TWO TOKEN SHAPES:
// Google Sign-In hands the browser an ID token (a JWT). Older OAuth flows
// hand it an access token (opaque). Introspect accepts either:
//   - ID token     → checked at the tokeninfo endpoint; aud must be our
//     client id, iss must be Google, exp must be in the future
//   - access token → checked at the same tokeninfo endpoint first (aud or
//     azp must be our client id, exp in the future), then used as a Bearer
//     credential against the OpenID userinfo endpoint through an oauth2
//     client. The userinfo subject must match the tokeninfo subject.
//
// An access token minted for some other client id is rejected: otherwise
// any app holding a user's Google token could sign in here as that user.
//
// Every failure (network, timeout, non-2xx, bad body, wrong audience) is
// reported as apperror.ExternalProvider so the handler can answer 502.
type GoogleProvider struct {
	config       *oauth2.Config
	timeout      time.Duration
	tokenInfoURL string
	userInfoURL  string
	httpClient   *http.Client
	now          func() time.Time
}

func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	p := &GoogleProvider{
		config: &oauth2.Config{
			ClientID: cfg.ClientID,
			Scopes:   []string{"openid", "email", "profile"},
			Endpoint: google.Endpoint,
		},
		timeout:      cfg.Timeout,
		tokenInfoURL: cfg.TokenInfoURL,
		userInfoURL:  cfg.UserInfoURL,
		httpClient:   cfg.HTTPClient,
		now:          time.Now,
	}
	if p.timeout <= 0 {
		p.timeout = defaultProviderTimeout
	}
	if p.tokenInfoURL == "" {
		p.tokenInfoURL = defaultTokenInfoURL
	}
	if p.userInfoURL == "" {
		p.userInfoURL = defaultUserInfoURL
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{}
	}
	return p
}

// Introspect resolves providerToken to the identity it was issued for.
func (p *GoogleProvider) Introspect(ctx context.Context, providerToken string) (*ExternalIdentity, error) {
	if strings.TrimSpace(providerToken) == "" {
		return nil, apperror.ValidationFailed("token", "google token is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		id  *ExternalIdentity
		err error
	)
	if looksLikeJWT(providerToken) {
		id, err = p.introspectIDToken(ctx, providerToken)
	} else {
		id, err = p.introspectAccessToken(ctx, providerToken)
	}
	if err != nil {
		return nil, providerError(ctx, err)
	}

	if id.Subject == "" {
		return nil, apperror.ExternalProvider("google returned no account id", nil)
	}
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	return id, nil
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// providerError wraps err as ExternalProvider unless it already is one.
func providerError(ctx context.Context, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperror.ExternalProvider("google did not respond in time", err)
	}
	return apperror.ExternalProvider("could not verify google token", err)
}

// tokenInfo is the tokeninfo response. Google encodes every value,
// including booleans and timestamps, as a JSON string.
type tokenInfo struct {
	Audience      string     `json:"aud"`
	AuthorizedBy  string     `json:"azp"`
	Issuer        string     `json:"iss"`
	Subject       string     `json:"sub"`
	Email         string     `json:"email"`
	EmailVerified stringBool `json:"email_verified"`
	Expiry        string     `json:"exp"`
	GivenName     string     `json:"given_name"`
	FamilyName    string     `json:"family_name"`
}

func (p *GoogleProvider) introspectIDToken(ctx context.Context, idToken string) (*ExternalIdentity, error) {
	info, err := p.fetchTokenInfo(ctx, "id_token", idToken)
	if err != nil {
		return nil, err
	}

	if info.Audience != p.config.ClientID {
		return nil, apperror.ExternalProvider("google token was issued for another application", nil)
	}
	if info.Issuer != "accounts.google.com" && info.Issuer != "https://accounts.google.com" {
		return nil, apperror.ExternalProvider("google token has an unexpected issuer", nil)
	}
	if err := p.checkExpiry(info); err != nil {
		return nil, err
	}

	return &ExternalIdentity{
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: bool(info.EmailVerified),
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
	}, nil
}

// fetchTokenInfo asks Google to describe token. param is "id_token" or
// "access_token".
func (p *GoogleProvider) fetchTokenInfo(ctx context.Context, param, token string) (*tokenInfo, error) {
	endpoint := p.tokenInfoURL + "?" + url.Values{param: {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building tokeninfo request: %w", err)
	}

	var info tokenInfo
	if err := doJSON(p.httpClient, req, &info); err != nil {
		return nil, fmt.Errorf("auth: tokeninfo: %w", err)
	}
	return &info, nil
}

func (p *GoogleProvider) checkExpiry(info *tokenInfo) error {
	exp, err := strconv.ParseInt(info.Expiry, 10, 64)
	if err != nil || !p.now().Before(time.Unix(exp, 0)) {
		return apperror.ExternalProvider("google token has expired", err)
	}
	return nil
}

// userInfo is the OpenID Connect userinfo response.
type userInfo struct {
	Subject       string     `json:"sub"`
	Email         string     `json:"email"`
	EmailVerified stringBool `json:"email_verified"`
	GivenName     string     `json:"given_name"`
	FamilyName    string     `json:"family_name"`
}

func (p *GoogleProvider) introspectAccessToken(ctx context.Context, accessToken string) (*ExternalIdentity, error) {
	// Access tokens carry no audience we can read ourselves, so ask
	// tokeninfo who the token was issued to before trusting userinfo.
	grant, err := p.fetchTokenInfo(ctx, "access_token", accessToken)
	if err != nil {
		return nil, err
	}
	if grant.Audience != p.config.ClientID && grant.AuthorizedBy != p.config.ClientID {
		return nil, apperror.ExternalProvider("google token was issued for another application", nil)
	}
	if err := p.checkExpiry(grant); err != nil {
		return nil, err
	}

	// oauth2.Config.Client returns an *http.Client that adds
	// "Authorization: Bearer <token>" to every request. The base transport
	// comes from p.httpClient via the oauth2.HTTPClient context key.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	client := p.config.Client(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}

	var info userInfo
	if err := doJSON(client, req, &info); err != nil {
		return nil, fmt.Errorf("auth: userinfo: %w", err)
	}
	if grant.Subject != "" && info.Subject != grant.Subject {
		return nil, apperror.ExternalProvider("google userinfo does not match the token", nil)
	}

	return &ExternalIdentity{
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: bool(info.EmailVerified),
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
	}, nil
}

func doJSON(client *http.Client, req *http.Request, dst any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

// stringBool accepts true, "true" and their false counterparts.
type stringBool bool

func (b *stringBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("email_verified: %w", err)
	}
	*b = stringBool(v)
	return nil
}
