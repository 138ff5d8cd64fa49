package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// 响应体超过该长度时只记录长度
const maxLoggedBody = 2048

// responseRecorder 同时写给客户端和缓冲区
type responseRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// captureResponse 替换 c.Writer，多个中间件嵌套时各自持有一份缓冲
func captureResponse(c *gin.Context) *responseRecorder {
	recorder := &responseRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
	c.Writer = recorder
	return recorder
}

// captureRequestBody 读出请求体后放回，供后续 handler 再次读取
func captureRequestBody(c *gin.Context) []byte {
	if c.Request.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.Logger.Error().Err(err).Msg("读取请求体失败")
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	return raw
}

// decodeBody JSON 请求体解析为通用结构，非 JSON 时按字符串记录
func decodeBody(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw)
	}
	return parsed
}

// RequestID 为每个请求分配 ID，客户端传入时沿用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestId", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Logger 记录每个请求及其响应
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method, path := c.Request.Method, c.Request.URL.Path

		headers := make(map[string]string, len(c.Request.Header)+1)
		for name := range c.Request.Header {
			headers[name] = c.Request.Header.Get(name)
		}
		headers[RequestIDHeader] = c.GetString("requestId")

		// 升级后的实时连接不能包装 ResponseWriter
		if c.IsWebsocket() {
			utils.LogApiRequest(method, path, c.Request.URL.Query(), nil, headers)
			c.Next()
			return
		}

		body := sanitizeData(decodeBody(captureRequestBody(c)))
		utils.LogApiRequest(method, path, c.Request.URL.Query(), body, headers)

		recorder := captureResponse(c)
		c.Next()

		var logged interface{} = recorder.body.String()
		if recorder.body.Len() > maxLoggedBody {
			logged = gin.H{"bytes": recorder.body.Len()}
		}
		utils.LogApiResponse(method, path, c.Writer.Status(), time.Since(start), logged)
	}
}

// Recovery panic 时返回统一的 500 响应
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		utils.Logger.Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Str("requestId", c.GetString("requestId")).
			Msg("服务崩溃")

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})
	})
}
