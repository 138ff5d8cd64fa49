package controllers

import (
	"net/http"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/service"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
)

// AddRemark 添加备注，返回备注按时间倒序的详情
func AddRemark(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RemarkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.HandleError(c, utils.CreateBadRequestError("Invalid request body: "+err.Error()))
			return
		}

		lead, err := coordinator.AddRemark(c.Request.Context(), c.Param("id"), req.Remark)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, lead.RemarksNewestFirst(), "Remark added", http.StatusCreated)
	}
}

// DeleteRemark 删除备注
func DeleteRemark(coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		lead, err := coordinator.DeleteRemark(c.Request.Context(), c.Param("id"), c.Param("remarkId"))
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, lead.RemarksNewestFirst(), "Remark deleted")
	}
}
