package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/innerchild2401/qr-menu-sub004/utils"
)

// WebSocketAuthMiddleware authenticates the staff feed, where browsers
// cannot send an Authorization header and pass the token as a query value.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(ContextRole, claims.Role)
		c.Set(ContextStaffID, claims.StaffID)
		c.Next()
	}
}
