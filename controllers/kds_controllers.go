package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/innerchild2401/qr-menu-sub004/kds"
	"github.com/innerchild2401/qr-menu-sub004/middlewares"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

type KDSController struct {
	Hub      *kds.Hub
	upgrader websocket.Upgrader
}

func NewKDSController(hub *kds.Hub, allowedOrigin string) *KDSController {
	return &KDSController{
		Hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// KDSHandler -> staff websocket feed of order and table updates
func (kc *KDSController) KDSHandler(c *gin.Context) {
	role := c.GetString(middlewares.ContextRole)

	ws, err := kc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.InfoLogger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	kc.Hub.Register(ws, role)
	utils.InfoLogger.WithField("role", role).Info("Staff feed connected")

	// Clients only listen; reading detects disconnects.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	kc.Hub.Unregister(ws)
}
