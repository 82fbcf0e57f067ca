package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/innerchild2401/qr-menu-sub004/utils"
)

// Staff roles.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleChef  = "chef"
)

// RequireRoles lets the request through only when the authenticated role
// is one of roles. Admin is always allowed.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextRole)
		if !exists {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		role, _ := userRole.(string)
		if role == RoleAdmin {
			c.Next()
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		utils.RespondError(c, http.StatusForbidden, fmt.Errorf("role %q is not allowed here", role))
		c.Abort()
	}
}

// WebSocketRoleCheck matches the :role path parameter of the staff feed
// against the authenticated role.
func WebSocketRoleCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		requested := c.Param("role")
		userRole, _ := c.Get(ContextRole)
		role, _ := userRole.(string)

		switch requested {
		case RoleAdmin, RoleStaff, RoleChef:
		default:
			utils.RespondError(c, http.StatusNotFound, fmt.Errorf("unknown feed %q", requested))
			c.Abort()
			return
		}
		if role != requested && role != RoleAdmin {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("%s access required", requested))
			c.Abort()
			return
		}
		c.Next()
	}
}
