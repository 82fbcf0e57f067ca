package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/innerchild2401/qr-menu-sub004/services"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

type TableController struct {
	Tables *services.TableRegistry
}

func NewTableController(tables *services.TableRegistry) *TableController {
	return &TableController{Tables: tables}
}

// CreateTable -> adds a table and seeds its first QR session
func (tc *TableController) CreateTable(c *gin.Context) {
	var req struct {
		AreaID   uint   `json:"area_id"`
		Label    string `json:"label" binding:"required"`
		Capacity int    `json:"capacity" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	table, err := tc.Tables.CreateTable(c.Request.Context(), req.AreaID, req.Label, req.Capacity)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Table created successfully", table)
}

// GetAllTables -> every table, optionally filtered with ?status=
func (tc *TableController) GetAllTables(c *gin.Context) {
	tables, err := tc.Tables.ListTables(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of tables", tables)
}

func (tc *TableController) GetTableByID(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	table, err := tc.Tables.GetTable(c.Request.Context(), tableID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table detail", table)
}

// UpdateTableStatus -> staff maintenance override
func (tc *TableController) UpdateTableStatus(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	table, err := tc.Tables.SetStatus(c.Request.Context(), tableID, body.Status, staffActor(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table status updated", table)
}

// RotateSession -> invalidates every printed QR code of the table
func (tc *TableController) RotateSession(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	table, err := tc.Tables.RotateSession(c.Request.Context(), tableID, staffActor(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table session rotated", table)
}

func (tc *TableController) GetStatusLog(c *gin.Context) {
	tableID, ok := parseTableID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := tc.Tables.StatusLog(c.Request.Context(), tableID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table status log", logs)
}
