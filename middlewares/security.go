package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/innerchild2401/qr-menu-sub004/utils"
)

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// Recovery turns a panic into a 500 envelope and logs it with the request id.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				utils.ErrorLogger.WithField("request_id", c.GetString(ContextRequestID)).
					Errorf("panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
				utils.RespondError(c, http.StatusInternalServerError, errors.New("internal server error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}
