package routes

import (
	"stockalert_backend/controllers"
	"stockalert_backend/middleware"
	"stockalert_backend/services/stream"
	"stockalert_backend/services/tracker"
	"stockalert_backend/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, st *store.AlertStore,
	trk *tracker.Tracker, market *tracker.MarketClock, hub *stream.Hub) {

	healthController := controllers.NewHealthController(db)
	authController := controllers.NewAuthController(db)
	monitorController := controllers.NewMonitorController(st, trk, market)

	router.GET("/health", healthController.Health)
	router.GET("/ready", healthController.Ready)

	api := router.Group("/api/v1")
	{
		api.POST("/auth/login", authController.Login)

		monitor := api.Group("/monitor")
		{
			monitor.GET("/status", monitorController.GetStatus)
			monitor.GET("/states", monitorController.GetTickerStates)
			monitor.GET("/quotas", monitorController.GetQuotas)
			monitor.GET("/history", monitorController.GetHistory)

			admin := monitor.Group("")
			admin.Use(middleware.AdminAuthMiddleware())
			{
				admin.POST("/states/clear", monitorController.ClearTickerState)
				admin.POST("/quotas/reset", monitorController.ResetQuotas)
				admin.POST("/check", monitorController.TriggerCheck)
			}
		}

		api.GET("/ws", hub.ServeWS)
	}
}
