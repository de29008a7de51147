package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"axionslab/auth/internal/middleware"
)

type initiateRequest struct {
	TargetDomain string `json:"target_domain"`
	App          string `json:"app"`
}

type exchangeRequest struct {
	Token     string `json:"token"`
	TempToken string `json:"temp_token"`
	Domain    string `json:"domain"`
}

func (r exchangeRequest) token() string {
	if r.TempToken != "" {
		return r.TempToken
	}
	return r.Token
}

// CheckSession is called by a target domain's front end with whatever
// session cookie the browser holds. It answers with the next hop.
func (h HandlerSet) CheckSession(c *gin.Context) {
	domain := c.Query("domain")
	if domain == "" {
		domain = requestHost(c)
	}

	result, err := h.cross.CheckSession(c.Request.Context(), middleware.AccessToken(c), domain, c.Query("app"))
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := gin.H{
		"authenticated": result.Authenticated,
		"redirect_url":  result.RedirectURL,
	}
	if result.Authenticated {
		resp["temp_token"] = result.TempToken
		resp["expires_in"] = result.ExpiresIn
		h.setTempTokenCookie(c, result.TempToken, result.ExpiresIn)
	}
	c.JSON(http.StatusOK, resp)
}

// InitiateCrossDomain starts the handshake from an authenticated session on
// the identity domain.
func (h HandlerSet) InitiateCrossDomain(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.TargetDomain) == "" {
		h.badRequest(c, "target_domain is required")
		return
	}

	session, _ := middleware.CurrentSession(c)
	result, err := h.cross.HandleAppAuthentication(req.App, session, req.TargetDomain)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setTempTokenCookie(c, result.TempToken, result.ExpiresIn)
	c.JSON(http.StatusOK, result)
}

// CrossDomainCallback runs on the target domain. The token comes from the
// body or the temporary token cookie.
func (h HandlerSet) CrossDomainCallback(c *gin.Context) {
	var req exchangeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body")
			return
		}
	}
	token := req.token()
	if token == "" {
		token, _ = c.Cookie(tempTokenCookie)
	}
	h.exchange(c, token, req.Domain)
}

// ExchangeTempToken is the API form of the callback for non-browser clients.
func (h HandlerSet) ExchangeTempToken(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	h.exchange(c, req.token(), req.Domain)
}

func (h HandlerSet) exchange(c *gin.Context, token, domain string) {
	if domain == "" {
		domain = requestHost(c)
	}

	tokens, err := h.cross.ValidateAndExchangeTempToken(c.Request.Context(), token, domain, h.requestMeta(c, domain))
	h.metrics.Exchange(err)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.clearTempTokenCookie(c)
	h.setSessionCookies(c, tokens)
	c.JSON(http.StatusOK, tokenResponse(tokens, tokens.Session.User.User()))
}

func (h HandlerSet) CrossDomainStatus(c *gin.Context) {
	domain := c.Query("domain")
	session, ok, err := h.cross.SessionStatus(c.Request.Context(), middleware.AccessToken(c), domain)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"domain":        session.Domain,
		"user":          session.User,
		"expires_at":    session.ExpiresAt,
	})
}

// CreateTempToken mints a temporary token for another domain without the
// browser redirect.
func (h HandlerSet) CreateTempToken(c *gin.Context) {
	domain := c.Query("domain")
	if domain == "" {
		h.badRequest(c, "domain is required")
		return
	}

	session, _ := middleware.CurrentSession(c)
	result, err := h.cross.HandleAppAuthentication(c.Query("app"), session, domain)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h HandlerSet) AppInfo(c *gin.Context) {
	app := c.Query("app")
	if app == "" {
		h.badRequest(c, "app is required")
		return
	}
	info, err := h.cross.AppInfo(app)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h HandlerSet) ValidateDomain(c *gin.Context) {
	domain := c.Query("domain")
	if domain == "" {
		h.badRequest(c, "domain is required")
		return
	}
	c.JSON(http.StatusOK, h.cross.DomainInfo(domain))
}
