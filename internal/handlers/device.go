package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"axionslab/auth/internal/policy"
	"axionslab/auth/internal/service"
)

// requestMeta collects what a new session records about the caller. Without
// an explicit domain the session is bound to the request host, or to the
// identity domain when the host is not one we serve.
func (h HandlerSet) requestMeta(c *gin.Context, domain string) service.RequestMeta {
	ua := c.Request.UserAgent()
	platform, browser := parseUserAgent(ua)
	if domain == "" {
		if host := requestHost(c); h.cross.DomainInfo(host).IsValid {
			domain = host
		}
	}
	return service.RequestMeta{
		Domain:    policy.NormalizeDomain(domain),
		IPAddress: c.ClientIP(),
		UserAgent: ua,
		Platform:  platform,
		Browser:   browser,
	}
}

// requestHost prefers the host the proxy saw.
func requestHost(c *gin.Context) string {
	if host := c.GetHeader("X-Forwarded-Host"); host != "" {
		return policy.NormalizeDomain(strings.Split(host, ",")[0])
	}
	return policy.NormalizeDomain(c.Request.Host)
}

func parseUserAgent(ua string) (platform, browser string) {
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		platform = "ios"
	case strings.Contains(lower, "android"):
		platform = "android"
	case strings.Contains(lower, "windows"):
		platform = "windows"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		platform = "macos"
	case strings.Contains(lower, "linux"):
		platform = "linux"
	default:
		platform = "unknown"
	}

	// Order matters: Edge and Opera also advertise Chrome, Chrome advertises Safari.
	switch {
	case strings.Contains(lower, "edg/"):
		browser = "edge"
	case strings.Contains(lower, "opr/"), strings.Contains(lower, "opera"):
		browser = "opera"
	case strings.Contains(lower, "firefox/"):
		browser = "firefox"
	case strings.Contains(lower, "chrome/"), strings.Contains(lower, "crios/"):
		browser = "chrome"
	case strings.Contains(lower, "safari/"):
		browser = "safari"
	case strings.Contains(lower, "curl/"):
		browser = "curl"
	default:
		browser = "unknown"
	}
	return platform, browser
}
