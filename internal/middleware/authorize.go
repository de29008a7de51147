package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"axionslab/auth/internal/models"
)

func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			return
		}
		if _, ok := roleSet[user.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
