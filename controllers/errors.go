package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/innerchild2401/qr-menu-sub004/middlewares"
	"github.com/innerchild2401/qr-menu-sub004/services"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

// respondServiceError maps domain errors to HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var closed *services.TableClosedError
	switch {
	case errors.As(err, &closed):
		utils.RespondErrorData(c, http.StatusGone, closed, closed)
	case errors.Is(err, services.ErrInvalidInput):
		utils.RespondError(c, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrNotFound):
		utils.RespondError(c, http.StatusNotFound, err)
	case errors.Is(err, services.ErrTableUnavailable):
		utils.RespondError(c, http.StatusLocked, services.ErrTableUnavailable)
	case errors.Is(err, services.ErrEmptyOrder):
		utils.RespondError(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, services.ErrInvalidTransition):
		utils.RespondError(c, http.StatusConflict, err)
	case services.IsRefusal(err):
		utils.RespondError(c, http.StatusConflict, err)
	case errors.Is(err, services.ErrConflict):
		c.Header("Retry-After", "1")
		utils.RespondError(c, http.StatusConflict, services.ErrConflict)
	default:
		utils.ErrorLogger.WithField("request_id", c.GetString(middlewares.ContextRequestID)).
			Errorf("%s %s: %+v", c.Request.Method, c.Request.URL.Path, err)
		utils.RespondError(c, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

func parseTableID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("table_id"), 10, 32)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid table id"))
		return 0, false
	}
	return uint(id), true
}

// staffActor names the authenticated staff member for audit logs.
func staffActor(c *gin.Context) string {
	role := c.GetString(middlewares.ContextRole)
	if id, ok := c.Get(middlewares.ContextStaffID); ok {
		return role + ":" + strconv.FormatUint(uint64(id.(uint)), 10)
	}
	return role
}
