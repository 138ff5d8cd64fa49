package routes

import (
	"github.com/BerniceZTT/edulead_crm/controllers"
	"github.com/BerniceZTT/edulead_crm/middleware"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
)

// RegisterLeadRoutes 注册线索相关路由
func RegisterLeadRoutes(router *gin.Engine, deps Deps) {
	leadRoutes := router.Group("/api/leads")
	leadRoutes.Use(middleware.SessionGate(deps.Session))

	c := deps.Coordinator
	leadRoutes.GET("", controllers.ListLeads(c))
	leadRoutes.POST("", middleware.PermissionMiddleware(utils.ActionCreate), controllers.CreateLead(c))
	leadRoutes.GET("/:id", controllers.GetLead(c))
	leadRoutes.PUT("/:id", middleware.PermissionMiddleware(utils.ActionUpdate), controllers.EditLead(c))
	leadRoutes.PATCH("/:id", middleware.PermissionMiddleware(utils.ActionUpdate), controllers.UpdateLeadFields(c))
	leadRoutes.DELETE("/:id", middleware.PermissionMiddleware(utils.ActionDelete), controllers.DeleteLead(c))
	leadRoutes.PUT("/:id/assign", middleware.PermissionMiddleware(utils.ActionAssign), controllers.AssignLead(c))
	leadRoutes.PUT("/:id/status", middleware.PermissionMiddleware(utils.ActionUpdate), controllers.SetLeadStage(c, "status"))
	leadRoutes.PUT("/:id/pipeline", middleware.PermissionMiddleware(utils.ActionUpdate), controllers.SetLeadStage(c, "pipeline"))
	leadRoutes.PUT("/:id/reminder", middleware.PermissionMiddleware(utils.ActionUpdate), controllers.SetLeadReminder(c))
	leadRoutes.POST("/:id/remarks", middleware.PermissionMiddleware(utils.ActionRemark), controllers.AddRemark(c))
	leadRoutes.DELETE("/:id/remarks/:remarkId", middleware.PermissionMiddleware(utils.ActionRemark), controllers.DeleteRemark(c))
}
