package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"axionslab/auth/internal/middleware"
	"axionslab/auth/internal/service"
)

const (
	refreshCookie   = "axl_refresh"
	tempTokenCookie = "axl_temp_token"
)

// setSessionCookies stores the access and refresh tokens for the browser.
// The refresh cookie is only sent back to /auth.
func (h HandlerSet) setSessionCookies(c *gin.Context, tokens *service.SessionTokens) {
	now := time.Now()
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    tokens.AccessToken.Token,
		Path:     "/",
		Domain:   h.cfg.Domains.CookieDomain,
		MaxAge:   maxAge(tokens.AccessToken.ExpiresAt, now),
		HttpOnly: true,
		Secure:   h.cfg.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookie,
		Value:    tokens.RefreshToken.Token,
		Path:     "/auth",
		Domain:   h.cfg.Domains.CookieDomain,
		MaxAge:   maxAge(tokens.RefreshToken.ExpiresAt, now),
		HttpOnly: true,
		Secure:   h.cfg.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h HandlerSet) clearSessionCookies(c *gin.Context) {
	for _, cookie := range []struct{ name, path string }{
		{middleware.SessionCookie, "/"},
		{refreshCookie, "/auth"},
	} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     cookie.name,
			Value:    "",
			Path:     cookie.path,
			Domain:   h.cfg.Domains.CookieDomain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cfg.Cookies.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// setTempTokenCookie exposes the temporary token to the target domain's
// script for the single redirect hop.
func (h HandlerSet) setTempTokenCookie(c *gin.Context, token string, expiresIn int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     tempTokenCookie,
		Value:    token,
		Path:     "/",
		Domain:   h.cfg.Domains.CookieDomain,
		MaxAge:   expiresIn,
		Secure:   h.cfg.Cookies.Secure,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h HandlerSet) clearTempTokenCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     tempTokenCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.Domains.CookieDomain,
		MaxAge:   -1,
		Secure:   h.cfg.Cookies.Secure,
		SameSite: http.SameSiteNoneMode,
	})
}

func maxAge(expiresAt, now time.Time) int {
	secs := int(expiresAt.Sub(now) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
