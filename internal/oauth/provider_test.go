package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"axionslab/auth/internal/config"
)

func providerServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"Bearer","expires_in":3600}`))
	})
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer provider-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testEndpoint(srv *httptest.Server) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

var testCreds = config.OAuthProviderConfig{
	ClientID:     "client-id",
	ClientSecret: "client-secret",
	RedirectURI:  "https://axionslab.com/auth/oauth/callback",
}

func TestGoogleExchange(t *testing.T) {
	srv := providerServer(t, map[string]string{
		"/userinfo": `{"sub":"g-1","email":"Demo@AxionsLab.com","email_verified":true,"name":"Demo","picture":"https://img/x.png"}`,
	})
	p := newGoogle(testCreds, testEndpoint(srv), srv.URL+"/userinfo")

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "g-1", profile.ID)
	assert.Equal(t, "demo@axionslab.com", profile.Email)
	assert.Equal(t, "google", profile.Provider)
	assert.Equal(t, "https://img/x.png", profile.AvatarURL)

	_, err = p.Exchange(context.Background(), "bad-code")
	assert.Error(t, err)

	_, err = p.Exchange(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingCode)
}

func TestGoogleRejectsUnverifiedEmail(t *testing.T) {
	srv := providerServer(t, map[string]string{
		"/userinfo": `{"sub":"g-1","email":"demo@axionslab.com","email_verified":false}`,
	})
	p := newGoogle(testCreds, testEndpoint(srv), srv.URL+"/userinfo")

	_, err := p.Exchange(context.Background(), "good-code")
	assert.ErrorIs(t, err, ErrNoEmail)
}

func TestGitHubFallsBackToPrimaryEmail(t *testing.T) {
	srv := providerServer(t, map[string]string{
		"/user":        `{"id":42,"login":"octo","name":"","email":"","avatar_url":"https://avatars/42"}`,
		"/user/emails": `[{"email":"other@x.io","primary":false,"verified":true},{"email":"octo@axionslab.com","primary":true,"verified":true}]`,
	})
	p := newGitHub(testCreds, testEndpoint(srv), srv.URL)

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ID)
	assert.Equal(t, "octo@axionslab.com", profile.Email)
	assert.Equal(t, "octo", profile.Name)
	assert.Equal(t, "github", profile.Provider)
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	p := NewGitHub(testCreds)

	u, err := url.Parse(p.AuthCodeURL("signed-state"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "signed-state", u.Query().Get("state"))
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, testCreds.RedirectURI, u.Query().Get("redirect_uri"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistryFromConfig(config.OAuthConfig{Google: testCreds})
	assert.Equal(t, []string{"google"}, r.Names())

	p, err := r.Get("Google")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	_, err = r.Get("github")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
