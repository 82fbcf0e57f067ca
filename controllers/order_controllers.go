package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/innerchild2401/qr-menu-sub004/middlewares"
	"github.com/innerchild2401/qr-menu-sub004/models"
	"github.com/innerchild2401/qr-menu-sub004/services"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

type OrderController struct {
	Carts     *services.CartMergeEngine
	Lifecycle *services.OrderLifecycle
}

func NewOrderController(carts *services.CartMergeEngine, lifecycle *services.OrderLifecycle) *OrderController {
	return &OrderController{Carts: carts, Lifecycle: lifecycle}
}

// orderView is the customer payload: the shared order plus the caller's
// own lines.
func orderView(order *models.Order, token string) gin.H {
	mine := make([]models.OrderItem, 0)
	if order != nil {
		mine = order.ContributionOf(token)
	}
	return gin.H{
		"order":    order,
		"my_items": mine,
	}
}

// SubmitCart -> replaces the caller's lines with the full cart in the body
func (oc *OrderController) SubmitCart(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	var req struct {
		SessionID string              `json:"session_id"`
		Items     []services.CartLine `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = c.Query("session_id")
	}

	token := c.GetString(middlewares.ContextCustomerToken)
	order, err := oc.Carts.SubmitCart(c.Request.Context(), tableID, req.SessionID, token, req.Items)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cart updated", orderView(order, token))
}

// RemoveLine -> drops one product from the caller's lines
func (oc *OrderController) RemoveLine(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	token := c.GetString(middlewares.ContextCustomerToken)
	order, err := oc.Carts.RemoveLine(c.Request.Context(), tableID, c.Query("session_id"), token, c.Param("product_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Item removed", orderView(order, token))
}

// GetOrder -> the table's open order as seen by a customer
func (oc *OrderController) GetOrder(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	if _, err := oc.Carts.Join(c.Request.Context(), tableID, c.Query("session_id")); err != nil {
		respondServiceError(c, err)
		return
	}
	order, err := oc.Lifecycle.ActiveOrder(c.Request.Context(), tableID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table order", orderView(order, c.GetString(middlewares.ContextCustomerToken)))
}

// PlaceOrder -> hands the current cart to the kitchen
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	sessionID := c.Query("session_id")
	if sessionID == "" {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			sessionID = req.SessionID
		}
	}

	order, err := oc.Lifecycle.Place(c.Request.Context(), tableID, sessionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order placed", orderView(order, c.GetString(middlewares.ContextCustomerToken)))
}

// GetTableOrder -> staff view of the open order, or the last closed one
// with ?latest=true
func (oc *OrderController) GetTableOrder(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	order, err := oc.Lifecycle.ActiveOrder(c.Request.Context(), tableID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if order == nil && c.Query("latest") == "true" {
		order, err = oc.Lifecycle.LatestOrder(c.Request.Context(), tableID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
	}
	utils.RespondJSON(c, http.StatusOK, "Table order", order)
}

func (oc *OrderController) ProcessOrder(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	order, err := oc.Lifecycle.Process(c.Request.Context(), tableID, staffActor(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order processed", order)
}

// CloseOrder -> ends the order, frees the table and rotates its QR session
func (oc *OrderController) CloseOrder(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	table, order, err := oc.Lifecycle.Close(c.Request.Context(), tableID, staffActor(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order closed", gin.H{
		"table": table,
		"order": order,
	})
}

// MarkLineProcessed -> toggles the kitchen flag of one customer's line
func (oc *OrderController) MarkLineProcessed(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	var req struct {
		CustomerToken string `json:"customer_token" binding:"required"`
		Processed     *bool  `json:"processed" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Lifecycle.MarkLineProcessed(c.Request.Context(), tableID, c.Param("product_id"),
		req.CustomerToken, *req.Processed, staffActor(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order line updated", order)
}

// RemoveStaffLine -> removes unprocessed lines of a product, limited to one
// customer with ?customer_token=
func (oc *OrderController) RemoveStaffLine(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	token := strings.TrimSpace(c.Query("customer_token"))
	order, err := oc.Lifecycle.RemoveStaffLine(c.Request.Context(), tableID, c.Param("product_id"), token, staffActor(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order line removed", order)
}
