package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ApiError 直接返回给看板客户端的错误，Message 面向用户
type ApiError struct {
	StatusCode int
	Message    string
	ErrorCode  string
}

func (e *ApiError) Error() string {
	return e.Message
}

// NewApiError 创建API错误
func NewApiError(message string, statusCode int, errorCode string) *ApiError {
	return &ApiError{StatusCode: statusCode, Message: message, ErrorCode: errorCode}
}

func CreateNotFoundError(resource string) *ApiError {
	return NewApiError(resource+" not found", http.StatusNotFound, "RESOURCE_NOT_FOUND")
}

func CreateUnauthorizedError() *ApiError {
	return NewApiError("Please log in to continue", http.StatusUnauthorized, "UNAUTHORIZED")
}

// CreateSessionExpiredError 远程接口拒绝了当前 token
func CreateSessionExpiredError() *ApiError {
	return NewApiError("Session expired, please log in again", http.StatusUnauthorized, "SESSION_EXPIRED")
}

// CreateForbiddenError message 为空时使用通用文案
func CreateForbiddenError(message string) *ApiError {
	if message == "" {
		message = "Permission denied"
	}
	return NewApiError(message, http.StatusForbidden, "FORBIDDEN")
}

func CreateBadRequestError(message string) *ApiError {
	return NewApiError(message, http.StatusBadRequest, "BAD_REQUEST")
}

// CreateConfirmationRequiredError 删除、登出等操作缺少确认
func CreateConfirmationRequiredError(action string) *ApiError {
	return NewApiError("Please confirm before you "+action, http.StatusBadRequest, "CONFIRMATION_REQUIRED")
}

// RemoteError 远程接口调用失败，StatusCode 为 0 表示没有拿到响应
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsAuthFailure 远程接口返回 401/403
func IsAuthFailure(err error) bool {
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		return false
	}
	return remoteErr.StatusCode == http.StatusUnauthorized || remoteErr.StatusCode == http.StatusForbidden
}

// AppError 本地处理失败，Err 只记日志不返回给客户端
type AppError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(message string, statusCode int, err error) *AppError {
	return &AppError{Message: message, StatusCode: statusCode, Err: err}
}

// errorPayload 把错误映射为状态码和响应体
func errorPayload(err error) (int, gin.H) {
	var (
		apiErr    *ApiError
		remoteErr *RemoteError
		appErr    *AppError
	)
	switch {
	case errors.As(err, &apiErr):
		body := gin.H{"success": false, "error": apiErr.Message}
		if apiErr.ErrorCode != "" {
			body["code"] = apiErr.ErrorCode
		}
		return apiErr.StatusCode, body
	case errors.As(err, &remoteErr):
		// 远程 4xx 原样透传，其余视为网关错误
		status := http.StatusBadGateway
		if remoteErr.StatusCode >= 400 && remoteErr.StatusCode < 500 {
			status = remoteErr.StatusCode
		}
		return status, gin.H{"success": false, "error": remoteErr.Message, "code": "REMOTE_ERROR"}
	case errors.As(err, &appErr):
		return appErr.StatusCode, gin.H{"success": false, "error": appErr.Message}
	default:
		return http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"}
	}
}

// HandleError 记录错误并写入统一的失败响应
func HandleError(c *gin.Context, err error) {
	if c == nil || err == nil {
		return
	}
	status, body := errorPayload(err)

	event := Logger.Warn()
	if status >= http.StatusInternalServerError {
		event = Logger.Error()
	}
	event.Err(err).
		Int("status", status).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("API错误")

	c.JSON(status, body)
}

// SuccessResponse 统一的成功响应，statusCode 默认 200
func SuccessResponse(c *gin.Context, data interface{}, message string, statusCode ...int) {
	status := http.StatusOK
	if len(statusCode) > 0 {
		status = statusCode[0]
	}

	body := gin.H{"success": true}
	if data != nil {
		body["data"] = data
	}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}
