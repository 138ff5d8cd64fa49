package routes

import (
	"github.com/BerniceZTT/edulead_crm/controllers"
	"github.com/BerniceZTT/edulead_crm/service"

	"github.com/gin-gonic/gin"
)

// Deps 路由依赖
type Deps struct {
	Session       *service.Session
	Coordinator   *service.Coordinator
	Hub           *service.Hub
	OperationLogs controllers.OperationLogReader
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(router *gin.Engine, deps Deps) {
	// 注册认证路由
	RegisterAuthRoutes(router, deps)

	// 注册线索路由
	RegisterLeadRoutes(router, deps)

	// 注册看板路由
	RegisterDashboardRoutes(router, deps)

	// 健康检查路由
	router.GET("/api/health", controllers.Health)

	// 数据库状态检查路由
	router.GET("/api/db-status", controllers.DatabaseStatus)
}
