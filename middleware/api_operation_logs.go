package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
)

const operationLogTimeout = 3 * time.Second

// OperationLogWriter 操作日志存储
type OperationLogWriter interface {
	Insert(ctx context.Context, log models.OperationLog) error
}

// 只记录写操作
var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// 登录请求体含密码，健康检查无业务意义
var unauditedPaths = map[string]bool{
	"/api/auth/login": true,
	"/api/health":     true,
	"/api/db-status":  true,
}

// 请求体中需要打码的字段，比较时忽略大小写
var sensitiveKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"accesstoken":   true,
	"authorization": true,
	"secret":        true,
	"key":           true,
}

// OperationLoggerMiddleware 把看板写操作写入审计日志，写入失败不影响响应
func OperationLoggerMiddleware(store OperationLogWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || unauditedPaths[c.Request.URL.Path] || !mutatingMethods[c.Request.Method] {
			c.Next()
			return
		}

		started := time.Now()
		requestBody := decodeBody(captureRequestBody(c))
		recorder := captureResponse(c)

		c.Next()

		entry := auditEntry(c, started, requestBody, recorder.body.Bytes())
		if err := saveOperationLog(store, entry); err != nil {
			utils.Logger.Error().Err(err).Str("path", entry.Path).Msg("保存操作日志失败")
			entry.RequestBody = nil
			entry.ErrorMessage = fmt.Sprintf("保存详细日志失败: %v", err)
			if err := saveOperationLog(store, entry); err != nil {
				utils.Logger.Error().Err(err).Msg("保存最小日志失败")
			}
		}

		utils.Logger.Debug().
			Str("method", entry.Method).
			Str("path", entry.Path).
			Int("status", entry.StatusCode).
			Str("operator", entry.Operator).
			Msg("操作日志记录完成")
	}
}

func auditEntry(c *gin.Context, started time.Time, requestBody interface{}, responseBody []byte) models.OperationLog {
	entry := models.OperationLog{
		RequestID:    c.GetString("requestId"),
		Method:       c.Request.Method,
		Path:         c.Request.URL.Path,
		LeadID:       c.Param("id"),
		Operator:     "anonymous",
		OperatorRole: "unknown",
		RequestBody:  sanitizeData(requestBody),
		StatusCode:   c.Writer.Status(),
		OperatedAt:   started,
		ResponseTime: time.Since(started).Milliseconds(),
		IPAddress:    clientIP(c),
	}
	if user, ok := CurrentUser(c); ok {
		entry.Operator, entry.OperatorRole = user.Username, string(user.Role)
	}
	entry.Success = entry.StatusCode < http.StatusBadRequest
	entry.ErrorMessage = responseError(entry.StatusCode, responseBody)
	return entry
}

// responseError 取失败响应里的 error 字段，取不到时用状态码文案
func responseError(status int, body []byte) string {
	if status < http.StatusBadRequest || len(body) == 0 {
		return ""
	}
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	return http.StatusText(status)
}

// sanitizeData 递归打码 map 与数组中的敏感字段
func sanitizeData(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if sensitiveKeys[strings.ToLower(key)] {
				out[key] = "******"
				continue
			}
			out[key] = sanitizeData(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, value := range v {
			out[i] = sanitizeData(value)
		}
		return out
	default:
		return data
	}
}

// clientIP 代理转发时取 X-Forwarded-For 的第一个地址
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}

func saveOperationLog(store OperationLogWriter, entry models.OperationLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), operationLogTimeout)
	defer cancel()
	return store.Insert(ctx, entry)
}
