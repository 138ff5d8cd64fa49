package routes

import (
	"github.com/BerniceZTT/edulead_crm/controllers"
	"github.com/BerniceZTT/edulead_crm/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes 注册认证路由
func RegisterAuthRoutes(router *gin.Engine, deps Deps) {
	auth := router.Group("/api/auth")

	// 公开路由 - 不需要认证
	auth.POST("/login", controllers.Login(deps.Session, deps.Coordinator))
	auth.GET("/session", controllers.SessionInfo(deps.Session))

	// 需要认证的路由
	auth.POST("/logout", middleware.SessionGate(deps.Session), controllers.Logout(deps.Session))
}
