package routes

import (
	"github.com/BerniceZTT/edulead_crm/controllers"
	"github.com/BerniceZTT/edulead_crm/middleware"
	"github.com/BerniceZTT/edulead_crm/service"

	"github.com/gin-gonic/gin"
)

// RegisterDashboardRoutes 注册看板、提醒与实时推送路由
func RegisterDashboardRoutes(router *gin.Engine, deps Deps) {
	api := router.Group("/api")
	api.Use(middleware.SessionGate(deps.Session))

	var hub service.Broadcaster
	if deps.Hub != nil {
		hub = deps.Hub
	}

	c := deps.Coordinator
	api.GET("/dashboard", controllers.GetDashboard(c))
	api.GET("/reminders", controllers.GetReminders(c))
	api.GET("/filters/options", controllers.GetFilterOptions(c))
	api.POST("/refresh", controllers.RefreshLeads(c, hub))

	if deps.Hub != nil {
		api.GET("/live", controllers.LiveFeed(deps.Hub))
	}
	if deps.OperationLogs != nil {
		api.GET("/operation-logs", middleware.AdminGate(), controllers.ListOperationLogs(deps.OperationLogs))
	}
}
