package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/service"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
)

// parseLeadQuery 解析搜索词与筛选条件，多选参数支持逗号分隔或重复出现
func parseLeadQuery(c *gin.Context) (string, models.FilterState) {
	filters := models.FilterState{
		Courses:       utils.SplitQueryList(c.QueryArray("courses")),
		ProgramTypes:  utils.SplitQueryList(c.QueryArray("programTypes")),
		Professions:   utils.SplitQueryList(c.QueryArray("professions")),
		Sources:       utils.SplitQueryList(c.QueryArray("sources")),
		Statuses:      utils.SplitQueryList(c.QueryArray("statuses")),
		Pipelines:     utils.SplitQueryList(c.QueryArray("pipelines")),
		AssignedUsers: utils.SplitQueryList(c.QueryArray("assignedUsers")),
		FromDate:      strings.TrimSpace(c.Query("fromDate")),
		ToDate:        strings.TrimSpace(c.Query("toDate")),
	}
	return c.Query("q"), filters
}

// ListLeads 搜索与筛选后的线索及统计
func ListLeads(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		query, filters := parseLeadQuery(c)
		view := coordinator.Dashboard(query, filters)

		utils.SuccessResponse(c, gin.H{
			"leads":         view.Leads,
			"counts":        view.Counts,
			"filtersActive": view.FiltersActive,
		}, "")
	}
}

// GetLead 选中线索并返回详情
func GetLead(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := coordinator.Detail(c.Param("id"))
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, detail, "")
	}
}

// CreateLead 新增线索
func CreateLead(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form models.LeadForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.HandleError(c, utils.CreateBadRequestError("Invalid request body: "+err.Error()))
			return
		}

		lead, err := coordinator.CreateLead(c.Request.Context(), form)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, lead, "Lead added", http.StatusCreated)
	}
}

// EditLead 编辑线索
func EditLead(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form models.LeadForm
		if err := c.ShouldBindJSON(&form); err != nil {
			utils.HandleError(c, utils.CreateBadRequestError("Invalid request body: "+err.Error()))
			return
		}

		lead, err := coordinator.EditLead(c.Request.Context(), c.Param("id"), form)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, lead, "Lead updated")
	}
}

// UpdateLeadFields 局部更新线索字段
func UpdateLeadFields(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var fields map[string]interface{}
		if err := c.ShouldBindJSON(&fields); err != nil {
			utils.HandleError(c, utils.CreateBadRequestError("Invalid request body: "+err.Error()))
			return
		}

		lead, err := coordinator.UpdateFields(c.Request.Context(), c.Param("id"), fields)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, lead, "Lead updated")
	}
}

// AssignLead 分配线索
func AssignLead(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AssignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.HandleError(c, utils.CreateBadRequestError("Invalid request body: "+err.Error()))
			return
		}

		lead, err := coordinator.AssignLead(c.Request.Context(), c.Param("id"), req.AssignedTo)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, lead, "Lead assigned")
	}
}

// SetLeadStage 修改温度（status）或管道阶段（pipeline）
func SetLeadStage(coordinator *service.Coordinator, field string) gin.HandlerFunc {
	set := coordinator.SetStatus
	if field == "pipeline" {
		set = coordinator.SetPipeline
	}
	return func(c *gin.Context) {
		var req models.StageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.HandleError(c, utils.CreateBadRequestError("Invalid request body: "+err.Error()))
			return
		}

		lead, err := set(c.Request.Context(), c.Param("id"), req.Value)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, lead, "Lead updated")
	}
}

// SetLeadReminder 设置或清除提醒
func SetLeadReminder(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ReminderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.HandleError(c, utils.CreateBadRequestError("Invalid request body: "+err.Error()))
			return
		}

		var lead models.Lead
		var err error
		if req.Reminder == nil || strings.TrimSpace(*req.Reminder) == "" {
			lead, err = coordinator.SetReminder(c.Request.Context(), c.Param("id"), nil)
		} else {
			at, ok := service.ParseDateString(*req.Reminder)
			if !ok {
				utils.HandleError(c, utils.CreateBadRequestError("Invalid reminder date"))
				return
			}
			lead, err = coordinator.SetReminder(c.Request.Context(), c.Param("id"), &at)
		}
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, lead, "Reminder updated")
	}
}

// DeleteLead 删除线索，需要 ?confirm=true
func DeleteLead(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		confirmed, _ := strconv.ParseBool(c.Query("confirm"))
		if err := coordinator.DeleteLead(c.Request.Context(), c.Param("id"), confirmed); err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, nil, "Lead deleted")
	}
}
