package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"axionslab/auth/internal/models"
	"axionslab/auth/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeValidator struct {
	sessions map[string]models.Session
	err      error
}

func (f fakeValidator) ValidateSession(_ context.Context, token string) (models.Session, error) {
	if f.err != nil {
		return models.Session{}, f.err
	}
	s, ok := f.sessions[token]
	if !ok {
		return models.Session{}, service.ErrNotAuthenticated
	}
	return s, nil
}

func demoSession(role models.UserRole) models.Session {
	return models.Session{
		ID:       "s1",
		UserID:   "u1",
		User:     models.UserSnapshot{ID: "u1", Email: "demo@axionslab.com", Role: role},
		Domain:   "axionslab.com",
		IsActive: true,
	}
}

func newAuthRouter(v SessionValidator, log zerolog.Logger, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{Auth(v, log)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		user, _ := CurrentUser(c)
		session, _ := CurrentSession(c)
		c.JSON(http.StatusOK, gin.H{"user": user.Email, "session": session.ID, "token": CurrentAccessToken(c)})
	})
	r.GET("/auth/me", handlers...)
	return r
}

func TestAuth(t *testing.T) {
	var logs bytes.Buffer
	log := zerolog.New(&logs)
	v := fakeValidator{sessions: map[string]models.Session{"good-token": demoSession(models.UserRoleUser)}}
	r := newAuthRouter(v, log)

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token is logged without the token", func(t *testing.T) {
		logs.Reset()
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer secret-bad-token")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid or expired token")
		assert.Contains(t, logs.String(), "/auth/me")
		assert.Contains(t, logs.String(), "client_ip")
		assert.NotContains(t, logs.String(), "secret-bad-token")
	})

	t.Run("non bearer scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Basic good-token")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user":"demo@axionslab.com"`)
		assert.Contains(t, w.Body.String(), `"session":"s1"`)
	})

	t.Run("session cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good-token"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuth_StoreFailureIs500(t *testing.T) {
	r := newAuthRouter(fakeValidator{err: errors.New("redis: connection refused")}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireRoles(t *testing.T) {
	v := fakeValidator{sessions: map[string]models.Session{
		"user-token":  demoSession(models.UserRoleUser),
		"admin-token": demoSession(models.UserRoleAdmin),
	}}
	r := newAuthRouter(v, zerolog.Nop(), RequireRoles(models.UserRoleAdmin, models.UserRoleSuperAdmin))

	for token, want := range map[string]int{"user-token": http.StatusForbidden, "admin-token": http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, token)
	}
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func TestRateLimit(t *testing.T) {
	newRouter := func(l Limiter) *gin.Engine {
		r := gin.New()
		r.POST("/auth/login", RateLimit(l, zerolog.Nop()), func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	blocked := &fakeLimiter{allow: false}
	w := httptest.NewRecorder()
	newRouter(blocked).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Len(t, blocked.keys, 1)
	assert.True(t, strings.HasPrefix(blocked.keys[0], "/auth/login:"))

	failing := &fakeLimiter{allow: true, err: errors.New("redis down")}
	w = httptest.NewRecorder()
	newRouter(failing).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}, func(origin string) bool {
		return strings.HasSuffix(origin, ".axionslab.com")
	}))
	r.GET("/auth/check-session", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := map[string]bool{
		"https://chat.axionslab.com": true,
		"http://localhost:3000":      true,
		"https://malicious.com":      false,
	}
	for origin, allowed := range cases {
		req := httptest.NewRequest(http.MethodGet, "/auth/check-session", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if allowed {
			assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		} else {
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/auth/check-session", nil)
	req.Header.Set("Origin", "https://chat.axionslab.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	assert.Equal(t, w.Header().Get(requestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
