package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/repository"
	"github.com/BerniceZTT/edulead_crm/service"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
)

// OperationLogReader 操作日志查询
type OperationLogReader interface {
	Recent(ctx context.Context, leadID string, limit int64) ([]models.OperationLog, error)
}

// Health 健康检查
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DatabaseStatus 数据库状态检查
func DatabaseStatus(c *gin.Context) {
	c.JSON(http.StatusOK, repository.GetDatabaseStatus(c.Request.Context()))
}

// ListOperationLogs 最近的看板写操作，可按 leadId 过滤
func ListOperationLogs(reader OperationLogReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
		logs, err := reader.Recent(c.Request.Context(), c.Query("leadId"), limit)
		if err != nil {
			utils.HandleError(c, utils.NewAppError("Failed to load operation logs", http.StatusInternalServerError, err))
			return
		}
		utils.SuccessResponse(c, logs, "")
	}
}

// LiveFeed 看板客户端的实时推送连接
func LiveFeed(hub *service.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := hub.Serve(c.Writer, c.Request); err != nil {
			// Upgrade 失败时已写入错误响应
			utils.Logger.Warn().Err(err).Msg("实时推送连接升级失败")
		}
	}
}
