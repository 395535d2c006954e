package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/feed-core/internal/apperror"
)

const testClientID = "client-123.apps.googleusercontent.com"

// fakeGoogle serves tokeninfo and userinfo from one httptest server.
func fakeGoogle(t *testing.T, tokenInfo, userInfo http.HandlerFunc) *GoogleProvider {
	t.Helper()
	mux := http.NewServeMux()
	if tokenInfo != nil {
		mux.HandleFunc("/tokeninfo", tokenInfo)
	}
	if userInfo != nil {
		mux.HandleFunc("/userinfo", userInfo)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewGoogleProvider(GoogleConfig{
		ClientID:     testClientID,
		Timeout:      200 * time.Millisecond,
		TokenInfoURL: srv.URL + "/tokeninfo",
		UserInfoURL:  srv.URL + "/userinfo",
	})
}

func tokenInfoJSON(aud, iss string, exp time.Time) string {
	return fmt.Sprintf(`{"aud":%q,"iss":%q,"sub":"1098","email":"Jane@Example.com",
		"email_verified":"true","exp":%q,"given_name":"Jane","family_name":"Doe"}`,
		aud, iss, strconv.FormatInt(exp.Unix(), 10))
}

func TestIntrospect_IDToken(t *testing.T) {
	p := fakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aaa.bbb.ccc", r.URL.Query().Get("id_token"))
		fmt.Fprint(w, tokenInfoJSON(testClientID, "https://accounts.google.com", time.Now().Add(time.Hour)))
	}, nil)

	id, err := p.Introspect(context.Background(), "aaa.bbb.ccc")
	require.NoError(t, err)
	assert.Equal(t, &ExternalIdentity{
		Subject:       "1098",
		Email:         "jane@example.com",
		EmailVerified: true,
		GivenName:     "Jane",
		FamilyName:    "Doe",
	}, id)
}

// accessTokenInfoJSON is tokeninfo's answer for an access token: no iss,
// and the client shows up in azp (aud is often the same value).
func accessTokenInfoJSON(azp, sub string, exp time.Time) string {
	return fmt.Sprintf(`{"azp":%q,"aud":%q,"sub":%q,"scope":"openid email profile","exp":%q}`,
		azp, azp, sub, strconv.FormatInt(exp.Unix(), 10))
}

func TestIntrospect_AccessToken(t *testing.T) {
	p := fakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ya29.opaque", r.URL.Query().Get("access_token"))
		fmt.Fprint(w, accessTokenInfoJSON(testClientID, "77", time.Now().Add(time.Hour)))
	}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29.opaque", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"sub":"77","email":"sam@example.com","email_verified":true,"given_name":"Sam"}`)
	})

	id, err := p.Introspect(context.Background(), "ya29.opaque")
	require.NoError(t, err)
	assert.Equal(t, "77", id.Subject)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Sam", id.GivenName)
}

func TestIntrospect_AccessTokenFailures(t *testing.T) {
	userInfo := `{"sub":"victim-1","email":"victim@example.com","email_verified":true}`

	tests := []struct {
		name         string
		tokenInfo    string
		wantUserInfo bool
	}{
		{"issued to another client", accessTokenInfoJSON("other-app.apps.googleusercontent.com", "victim-1", time.Now().Add(time.Hour)), false},
		{"no audience at all", fmt.Sprintf(`{"sub":"victim-1","exp":"%d"}`, time.Now().Add(time.Hour).Unix()), false},
		{"expired", accessTokenInfoJSON(testClientID, "victim-1", time.Now().Add(-time.Minute)), false},
		{"userinfo for another account", accessTokenInfoJSON(testClientID, "someone-else", time.Now().Add(time.Hour)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var userInfoCalled atomic.Bool
			p := fakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.tokenInfo)
			}, func(w http.ResponseWriter, r *http.Request) {
				userInfoCalled.Store(true)
				fmt.Fprint(w, userInfo)
			})

			id, err := p.Introspect(context.Background(), "ya29.token-for-another-app")
			assert.Nil(t, id)
			assert.ErrorIs(t, err, apperror.ErrExternalProvider)
			assert.Equal(t, tt.wantUserInfo, userInfoCalled.Load())
		})
	}
}

func TestIntrospect_AccessTokenRejectedByTokenInfo(t *testing.T) {
	p := fakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusBadRequest)
	}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("userinfo must not be called for a token tokeninfo rejected")
	})

	_, err := p.Introspect(context.Background(), "ya29.revoked")
	assert.ErrorIs(t, err, apperror.ErrExternalProvider)
}

func TestIntrospect_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusBadRequest)
		}},
		{"wrong audience", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, tokenInfoJSON("someone-else", "accounts.google.com", time.Now().Add(time.Hour)))
		}},
		{"wrong issuer", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, tokenInfoJSON(testClientID, "evil.example.com", time.Now().Add(time.Hour)))
		}},
		{"expired", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, tokenInfoJSON(testClientID, "accounts.google.com", time.Now().Add(-time.Minute)))
		}},
		{"bad body", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}},
		{"no subject", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"aud":%q,"iss":"accounts.google.com","exp":"%d"}`, testClientID, time.Now().Add(time.Hour).Unix())
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fakeGoogle(t, tt.handler, nil)

			_, err := p.Introspect(context.Background(), "aaa.bbb.ccc")
			assert.ErrorIs(t, err, apperror.ErrExternalProvider)
		})
	}
}

func TestIntrospect_EmptyToken(t *testing.T) {
	p := NewGoogleProvider(GoogleConfig{ClientID: testClientID})

	_, err := p.Introspect(context.Background(), "  ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
