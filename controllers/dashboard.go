package controllers

import (
	"github.com/BerniceZTT/edulead_crm/middleware"
	"github.com/BerniceZTT/edulead_crm/service"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
)

// GetDashboard 看板数据：线索、统计、提醒与筛选选项
func GetDashboard(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		query, filters := parseLeadQuery(c)
		view := coordinator.Dashboard(query, filters)
		user, _ := middleware.CurrentUser(c)

		utils.SuccessResponse(c, gin.H{
			"user":          user,
			"leads":         view.Leads,
			"counts":        view.Counts,
			"reminders":     view.Reminders,
			"filtersActive": view.FiltersActive,
			"options":       coordinator.FilterOptions(),
		}, "")
	}
}

// GetReminders 提醒列表
func GetReminders(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		items := coordinator.Reminders()
		utils.SuccessResponse(c, gin.H{
			"reminders": items,
			"summary":   service.SummarizeReminders(items),
		}, "")
	}
}

// GetFilterOptions 筛选面板选项
func GetFilterOptions(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.SuccessResponse(c, coordinator.FilterOptions(), "")
	}
}

// RefreshLeads 重新拉取工作集并通知看板客户端
func RefreshLeads(coordinator *service.Coordinator, hub service.Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := coordinator.Refresh(c.Request.Context()); err != nil {
			utils.HandleError(c, err)
			return
		}

		total := len(coordinator.Store().Leads())
		if hub != nil {
			hub.Broadcast(service.LiveEvent{Type: service.EventRefreshed, Data: gin.H{"total": total}})
		}
		utils.SuccessResponse(c, gin.H{"total": total}, "Data refreshed")
	}
}
