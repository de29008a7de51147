package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"axionslab/auth/internal/service"
)

type oauthCallbackRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	State    string `json:"state"`
}

// OAuthStart redirects the browser to the provider. The optional redirect,
// domain and app parameters resume a cross-domain handshake after login.
func (h HandlerSet) OAuthStart(c *gin.Context) {
	redirect := service.RedirectConfig{SourceURL: c.Query("redirect")}
	if domain := c.Query("domain"); domain != "" {
		d, app, err := h.cross.ResolveApp(domain, c.Query("app"))
		if err != nil {
			h.fail(c, err)
			return
		}
		redirect.TargetDomain = d
		redirect.App = app
	}

	target, err := h.auth.OAuthStart(c.Param("provider"), redirect)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (h HandlerSet) OAuthCallback(c *gin.Context) {
	var req oauthCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	result, err := h.auth.OAuthLogin(c.Request.Context(), req.Provider, req.Code, req.State, h.requestMeta(c, ""))
	h.metrics.Login("oauth", err)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setSessionCookies(c, result.SessionTokens)
	resp := tokenResponse(result.SessionTokens, result.User)

	if st := result.State; st != nil && st.TargetDomain != result.Session.Domain {
		next, err := h.cross.HandleAppAuthentication(st.App, result.Session, st.TargetDomain)
		if err != nil {
			h.fail(c, err)
			return
		}
		resp["redirect_url"] = next.RedirectURL
		h.setTempTokenCookie(c, next.TempToken, next.ExpiresIn)
	}
	c.JSON(http.StatusOK, resp)
}
