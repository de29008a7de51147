// Package oauth turns third-party logins into a normalized models.Profile.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"axionslab/auth/internal/config"
	"axionslab/auth/internal/models"
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrMissingCode     = errors.New("authorization code is required")
	ErrNoEmail         = errors.New("provider returned no verified email")
)

// IdentityProvider is a single OAuth login option.
type IdentityProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (models.Profile, error)
}

type profileFunc func(ctx context.Context, client *http.Client) (models.Profile, error)

type provider struct {
	name    string
	conf    *oauth2.Config
	profile profileFunc
}

func (p *provider) Name() string { return p.name }

func (p *provider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

func (p *provider) Exchange(ctx context.Context, code string) (models.Profile, error) {
	if strings.TrimSpace(code) == "" {
		return models.Profile{}, ErrMissingCode
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	token, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s exchange: %w", p.name, err)
	}
	profile, err := p.profile(ctx, p.conf.Client(ctx, token))
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s profile: %w", p.name, err)
	}
	profile.Provider = p.name
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	if profile.Email == "" {
		return models.Profile{}, ErrNoEmail
	}
	return profile, nil
}

const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubAPIURL      = "https://api.github.com"
)

func NewGoogle(cfg config.OAuthProviderConfig) IdentityProvider {
	return newGoogle(cfg, endpoints.Google, googleUserInfoURL)
}

func newGoogle(cfg config.OAuthProviderConfig, endpoint oauth2.Endpoint, userInfoURL string) *provider {
	return &provider{
		name: "google",
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		profile: func(ctx context.Context, client *http.Client) (models.Profile, error) {
			var body struct {
				Sub           string `json:"sub"`
				Email         string `json:"email"`
				EmailVerified bool   `json:"email_verified"`
				Name          string `json:"name"`
				Picture       string `json:"picture"`
			}
			if err := getJSON(ctx, client, userInfoURL, &body); err != nil {
				return models.Profile{}, err
			}
			if !body.EmailVerified {
				return models.Profile{}, ErrNoEmail
			}
			return models.Profile{
				ID:        body.Sub,
				Email:     body.Email,
				Name:      body.Name,
				AvatarURL: body.Picture,
			}, nil
		},
	}
}

func NewGitHub(cfg config.OAuthProviderConfig) IdentityProvider {
	return newGitHub(cfg, endpoints.GitHub, githubAPIURL)
}

func newGitHub(cfg config.OAuthProviderConfig, endpoint oauth2.Endpoint, apiURL string) *provider {
	return &provider{
		name: "github",
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		profile: func(ctx context.Context, client *http.Client) (models.Profile, error) {
			var user struct {
				ID        int64  `json:"id"`
				Login     string `json:"login"`
				Name      string `json:"name"`
				Email     string `json:"email"`
				AvatarURL string `json:"avatar_url"`
			}
			if err := getJSON(ctx, client, apiURL+"/user", &user); err != nil {
				return models.Profile{}, err
			}

			email := user.Email
			if email == "" {
				var emails []struct {
					Email    string `json:"email"`
					Primary  bool   `json:"primary"`
					Verified bool   `json:"verified"`
				}
				if err := getJSON(ctx, client, apiURL+"/user/emails", &emails); err != nil {
					return models.Profile{}, err
				}
				for _, e := range emails {
					if e.Primary && e.Verified {
						email = e.Email
						break
					}
				}
			}

			name := user.Name
			if name == "" {
				name = user.Login
			}
			return models.Profile{
				ID:        fmt.Sprintf("%d", user.ID),
				Email:     email,
				Name:      name,
				AvatarURL: user.AvatarURL,
			}, nil
		},
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Registry holds the providers that have credentials configured.
type Registry struct {
	providers map[string]IdentityProvider
}

func NewRegistry(providers ...IdentityProvider) *Registry {
	r := &Registry{providers: make(map[string]IdentityProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// NewRegistryFromConfig registers every provider with a client id set.
func NewRegistryFromConfig(cfg config.OAuthConfig) *Registry {
	var providers []IdentityProvider
	if cfg.Google.ClientID != "" {
		providers = append(providers, NewGoogle(cfg.Google))
	}
	if cfg.GitHub.ClientID != "" {
		providers = append(providers, NewGitHub(cfg.GitHub))
	}
	return NewRegistry(providers...)
}

func (r *Registry) Get(name string) (IdentityProvider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
