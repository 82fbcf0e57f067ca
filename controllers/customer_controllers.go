package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/innerchild2401/qr-menu-sub004/middlewares"
	"github.com/innerchild2401/qr-menu-sub004/services"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

type CustomerController struct {
	Carts *services.CartMergeEngine
}

func NewCustomerController(carts *services.CartMergeEngine) *CustomerController {
	return &CustomerController{Carts: carts}
}

// ScanTable -> validates a scanned QR code and hands the device its token.
// A device that already has a token keeps it.
func (cc *CustomerController) ScanTable(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	sessionID := c.Query("session_id")

	table, err := cc.Carts.Join(c.Request.Context(), tableID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	token := c.GetString(middlewares.ContextCustomerToken)
	if token == "" {
		token = uuid.NewString()
	}
	utils.RespondJSON(c, http.StatusOK, "Welcome to table "+table.Label, gin.H{
		"table_id":       table.ID,
		"area_id":        table.AreaID,
		"table_label":    table.Label,
		"table_status":   table.Status,
		"session_id":     table.SessionID,
		"customer_token": token,
	})
}
