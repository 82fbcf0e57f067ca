package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/innerchild2401/qr-menu-sub004/utils"
)

// Context keys set by the auth middlewares.
const (
	ContextStaffID       = "staff_id"
	ContextRole          = "role"
	ContextCustomerToken = "customer_token"
)

// StaffAuthMiddleware accepts a bearer token issued to a staff member.
func StaffAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("authorization header missing"))
			c.Abort()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid token format"))
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, err)
			c.Abort()
			return
		}

		c.Set(ContextStaffID, claims.StaffID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// CustomerTokenMiddleware reads the anonymous device token sent by the
// customer app. When required is false a missing token is allowed.
func CustomerTokenMiddleware(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("X-Customer-Token"))
		if token == "" && required {
			utils.RespondError(c, http.StatusBadRequest, errors.New("X-Customer-Token header missing"))
			c.Abort()
			return
		}
		if len(token) > 64 {
			utils.RespondError(c, http.StatusBadRequest, errors.New("X-Customer-Token is too long"))
			c.Abort()
			return
		}
		if token != "" {
			c.Set(ContextCustomerToken, token)
		}
		c.Next()
	}
}
