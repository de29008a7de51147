package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"axionslab/auth/internal/middleware"
)

func (h HandlerSet) AdminListSessions(c *gin.Context) {
	sessions, err := h.sessions.ListUserSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	current, _ := middleware.CurrentSession(c)
	items := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, newSessionView(s, current.ID))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h HandlerSet) AdminLogoutAll(c *gin.Context) {
	userID := c.Param("id")
	n, err := h.sessions.InvalidateAllUserSessions(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.metrics.Invalidated("admin", n)

	admin, _ := middleware.CurrentUser(c)
	h.log.Info().
		Str("admin_id", admin.ID).
		Str("user_id", userID).
		Int64("count", n).
		Msg("admin revoked user sessions")

	c.JSON(http.StatusOK, gin.H{"sessions_invalidated": n})
}
