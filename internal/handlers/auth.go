package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"axionslab/auth/internal/middleware"
	"axionslab/auth/internal/models"
	"axionslab/auth/internal/security"
	"axionslab/auth/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionView struct {
	ID             string            `json:"id"`
	Domain         string            `json:"domain"`
	DeviceInfo     models.DeviceInfo `json:"device_info"`
	IPAddress      string            `json:"ip_address"`
	IsActive       bool              `json:"is_active"`
	Current        bool              `json:"current"`
	ExpiresAt      time.Time         `json:"expires_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	CreatedAt      time.Time         `json:"created_at"`
}

func newSessionView(s models.Session, currentID string) sessionView {
	return sessionView{
		ID:             s.ID,
		Domain:         s.Domain,
		DeviceInfo:     s.DeviceInfo,
		IPAddress:      s.IPAddress,
		IsActive:       s.IsActive,
		Current:        s.ID == currentID,
		ExpiresAt:      s.ExpiresAt,
		LastActivityAt: s.LastActivityAt,
		CreatedAt:      s.CreatedAt,
	}
}

func tokenResponse(tokens *service.SessionTokens, user models.User) gin.H {
	return gin.H{
		"access_token":  tokens.AccessToken.Token,
		"refresh_token": tokens.RefreshToken.Token,
		"token_type":    "Bearer",
		"expires_in":    int(time.Until(tokens.AccessToken.ExpiresAt).Round(time.Second) / time.Second),
		"user":          user,
		"session":       newSessionView(tokens.Session, tokens.Session.ID),
	}
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, h.requestMeta(c, ""))
	h.metrics.Login("password", err)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setSessionCookies(c, result.SessionTokens)
	c.JSON(http.StatusOK, tokenResponse(result.SessionTokens, result.User))
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	}, h.requestMeta(c, ""))
	h.metrics.Login("register", err)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setSessionCookies(c, result.SessionTokens)
	c.JSON(http.StatusCreated, tokenResponse(result.SessionTokens, result.User))
}

// Refresh accepts the refresh token from the body or the refresh cookie.
func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body")
			return
		}
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token, _ = c.Cookie(refreshCookie)
	}
	if token == "" {
		h.badRequest(c, "refresh_token is required")
		return
	}

	tokens, err := h.sessions.RefreshSession(c.Request.Context(), token)
	h.metrics.Refresh(err)
	if err != nil {
		if service.IsNotAuthenticated(err) {
			h.clearSessionCookies(c)
		}
		h.fail(c, err)
		return
	}

	h.setSessionCookies(c, tokens)
	c.JSON(http.StatusOK, tokenResponse(tokens, tokens.Session.User.User()))
}

func (h HandlerSet) Logout(c *gin.Context) {
	fp := security.Fingerprint(middleware.CurrentAccessToken(c))
	if err := h.sessions.InvalidateSession(c.Request.Context(), fp); err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.Invalidated("single", 1)

	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h HandlerSet) LogoutAll(c *gin.Context) {
	session, _ := middleware.CurrentSession(c)
	n, err := h.sessions.InvalidateAllUserSessions(c.Request.Context(), session.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.Invalidated("all", n)

	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{
		"message":              "Logged out from all sessions",
		"sessions_invalidated": n,
	})
}

func (h HandlerSet) Me(c *gin.Context) {
	session, _ := middleware.CurrentSession(c)
	user, err := h.auth.CurrentUser(c.Request.Context(), session)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"session": newSessionView(session, session.ID),
	})
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	session, _ := middleware.CurrentSession(c)
	sessions, err := h.sessions.ListUserSessions(c.Request.Context(), session.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, newSessionView(s, session.ID))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
