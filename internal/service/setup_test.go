package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"axionslab/auth/internal/config"
	"axionslab/auth/internal/models"
	"axionslab/auth/internal/oauth"
	"axionslab/auth/internal/policy"
	"axionslab/auth/internal/repository"
	"axionslab/auth/internal/repository/repotest"
	"axionslab/auth/internal/security"
)

var fastArgon2 = security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func testPolicy() *policy.Policy {
	return policy.New(config.AccessConfig{
		RolePermissions: map[string][]string{
			"user":        {"profile:read", "chat:use"},
			"enterprise":  {"profile:read", "chat:use", "org:read"},
			"admin":       {"profile:read", "chat:use", "admin:read"},
			"super_admin": {"profile:read", "chat:use", "admin:read", "system:manage"},
		},
		AppRoles: map[string][]string{
			"main":  {"user", "enterprise", "admin", "super_admin"},
			"chat":  {"user", "enterprise", "admin", "super_admin"},
			"admin": {"admin", "super_admin"},
		},
		AppReturnPaths: map[string]string{"admin": "/dashboard"},
		AppInfo: map[string]config.AppInfoConfig{
			"chat": {Title: "Axions Chat", LoginCopy: "Sign in to continue to Axions Chat"},
		},
	}, config.DomainsConfig{
		Identity: "axionslab.com",
		Allowed: []config.AllowedDomain{
			{Name: "axionslab.com", Apps: []string{"main", "chat", "admin"}},
			{Name: "chat.axionslab.com", Apps: []string{"chat"}},
			{Name: "admin.axionslab.com", Apps: []string{"admin"}},
		},
	})
}

type testEnv struct {
	now      *time.Time
	mr       *miniredis.Miniredis
	store    *repository.RedisSessionStore
	users    *repotest.Users
	tokens   *security.TokenService
	sessions *SessionService
	cross    *CrossDomainAuthService
	auth     *AuthService
	demo     models.User
	admin    models.User
}

func newTestEnv(t *testing.T, providers ...oauth.IdentityProvider) *testEnv {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	clock := func() time.Time { return now }

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hasher := security.NewArgon2Hasher(fastArgon2)
	demoHash, err := hasher.Hash("demo123")
	require.NoError(t, err)
	demo := models.User{ID: "user-demo", Email: "demo@axionslab.com", PasswordHash: demoHash, Role: models.UserRoleUser}
	admin := models.User{ID: "user-admin", Email: "admin@axionslab.com", PasswordHash: demoHash, Role: models.UserRoleAdmin}
	users := repotest.NewUsers(demo, admin)

	tokens := security.NewTokenService(config.SecurityConfig{
		JWTSecret:    "test-secret-0123456789abcdef0123",
		Issuer:       "axionslab-auth",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   30 * 24 * time.Hour,
		TemporaryTTL: 5 * time.Minute,
		StateTTL:     10 * time.Minute,
	})
	tokens.SetClock(clock)

	pol := testPolicy()
	log := zerolog.Nop()
	store := repository.NewRedisSessionStore(client, "test:")
	sessions := NewSessionService(store, users, repository.NewConsumedTokens(client, "test:consumed:"), tokens, pol, 30*24*time.Hour, log)
	sessions.SetClock(clock)
	cross := NewCrossDomainAuthService(sessions, tokens, pol, "/login", log)
	auth := NewAuthService(users, hasher, sessions, cross, oauth.NewRegistry(providers...), log)

	return &testEnv{
		now:      &now,
		mr:       mr,
		store:    store,
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		cross:    cross,
		auth:     auth,
		demo:     demo,
		admin:    admin,
	}
}

func (e *testEnv) advance(d time.Duration) {
	*e.now = e.now.Add(d)
}

func (e *testEnv) login(t *testing.T, user models.User, domain string) *SessionTokens {
	t.Helper()
	tokens, err := e.sessions.CreateSession(context.Background(), user, RequestMeta{
		Domain:    domain,
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0",
		Platform:  "macOS",
		Browser:   "Chrome",
	})
	require.NoError(t, err)
	return tokens
}

func queryParam(t *testing.T, raw, key string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get(key)
}
