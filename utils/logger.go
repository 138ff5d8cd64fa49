package utils

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger 全局日志对象，InitLogger 之前不输出
var Logger = zerolog.Nop()

// InitLogger 控制台输出；LOG_LEVEL 优先，其次 GIN_MODE=debug 时为 debug 级别
func InitLogger() {
	level := zerolog.InfoLevel
	if os.Getenv("GIN_MODE") == "debug" {
		level = zerolog.DebugLevel
	}
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	Logger = zerolog.New(console).Level(level).With().Timestamp().Caller().Logger()
	Logger.Info().Str("level", level.String()).Msg("日志系统初始化完成")
}

// LogApiRequest 记录出入站请求，Authorization 只保留前缀
func LogApiRequest(method, url string, params, body interface{}, headers map[string]string) {
	if auth, ok := headers["Authorization"]; ok && auth != "" {
		headers["Authorization"] = ShortAuthHeader(auth)
	}
	Logger.Info().
		Str("method", method).
		Str("url", url).
		Interface("params", params).
		Interface("body", body).
		Interface("headers", headers).
		Msg("API请求")
}

// LogApiResponse 状态码 >= 400 时按错误级别记录
func LogApiResponse(method, url string, statusCode int, responseTime time.Duration, responseBody interface{}) {
	level := zerolog.InfoLevel
	if statusCode >= 400 {
		level = zerolog.ErrorLevel
	}
	Logger.WithLevel(level).
		Str("method", method).
		Str("url", url).
		Int("statusCode", statusCode).
		Dur("responseTime", responseTime).
		Interface("body", responseBody).
		Msg("API响应")
}

func LogError(err error, fields map[string]interface{}, message string) {
	Logger.Error().Err(err).Fields(fields).Msg(message)
}

// ShortAuthHeader 截断授权头
func ShortAuthHeader(header string) string {
	const keep = 15
	if len(header) <= keep {
		return header
	}
	return header[:keep] + "..."
}
