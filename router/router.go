package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/innerchild2401/qr-menu-sub004/controllers"
	"github.com/innerchild2401/qr-menu-sub004/kds"
	"github.com/innerchild2401/qr-menu-sub004/middlewares"
	"github.com/innerchild2401/qr-menu-sub004/services"
)

// Dependencies are the wired services the HTTP layer calls into.
type Dependencies struct {
	Tables    *services.TableRegistry
	Carts     *services.CartMergeEngine
	Lifecycle *services.OrderLifecycle
	Hub       *kds.Hub

	AllowedOrigin  string
	RateLimitRPS   float64
	RateLimitBurst int
}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.RequestID())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.Recovery())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(deps.AllowedOrigin))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	tableCtrl := controllers.NewTableController(deps.Tables)
	customerCtrl := controllers.NewCustomerController(deps.Carts)
	orderCtrl := controllers.NewOrderController(deps.Carts, deps.Lifecycle)
	kdsCtrl := controllers.NewKDSController(deps.Hub, deps.AllowedOrigin)

	// Customer routes: anonymous device token + QR session
	limiter := middlewares.NewRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst)
	customer := r.Group("/tables/:table_id")
	customer.Use(limiter.RateLimit())
	{
		customer.GET("/scan", middlewares.CustomerTokenMiddleware(false), customerCtrl.ScanTable)

		withToken := customer.Group("")
		withToken.Use(middlewares.CustomerTokenMiddleware(true))
		withToken.PUT("/cart", orderCtrl.SubmitCart)
		withToken.DELETE("/cart/:product_id", orderCtrl.RemoveLine)
		withToken.GET("/order", orderCtrl.GetOrder)
		withToken.POST("/order/place", orderCtrl.PlaceOrder)
	}

	// Staff routes
	admin := r.Group("/admin")
	admin.Use(middlewares.StaffAuthMiddleware())
	{
		staff := admin.Group("")
		staff.Use(middlewares.RequireRoles(middlewares.RoleStaff, middlewares.RoleChef))
		staff.GET("/tables", tableCtrl.GetAllTables)
		staff.GET("/tables/:table_id", tableCtrl.GetTableByID)
		staff.GET("/tables/:table_id/order", orderCtrl.GetTableOrder)
		staff.POST("/tables/:table_id/order/process", orderCtrl.ProcessOrder)
		staff.PATCH("/tables/:table_id/order/items/:product_id", orderCtrl.MarkLineProcessed)

		floor := admin.Group("")
		floor.Use(middlewares.RequireRoles(middlewares.RoleStaff))
		floor.PATCH("/tables/:table_id/status", tableCtrl.UpdateTableStatus)
		floor.POST("/tables/:table_id/session/rotate", tableCtrl.RotateSession)
		floor.GET("/tables/:table_id/status-log", tableCtrl.GetStatusLog)
		floor.POST("/tables/:table_id/order/close", orderCtrl.CloseOrder)
		floor.DELETE("/tables/:table_id/order/items/:product_id", orderCtrl.RemoveStaffLine)

		managers := admin.Group("")
		managers.Use(middlewares.RequireRoles())
		managers.POST("/tables", tableCtrl.CreateTable)
	}

	// Staff feed: /ws/chef, /ws/staff, /ws/admin
	r.GET("/ws/:role",
		middlewares.WebSocketAuthMiddleware(),
		middlewares.WebSocketRoleCheck(),
		kdsCtrl.KDSHandler,
	)

	return r
}
