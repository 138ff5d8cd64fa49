package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 认证模式
const (
	AuthModeToken = "token" // 远程登录接口，返回 accessToken
	AuthModeLocal = "local" // 拉取用户列表后本地校验
)

// Config 应用配置
type Config struct {
	Port               int
	APIBaseURL         string
	APITimeout         time.Duration
	LiveURL            string
	LiveReconnectDelay time.Duration
	RefreshInterval    time.Duration
	DigestHour         int // 每日提醒检查的整点，小于 0 时关闭
	AuthMode           string
	SessionSecret      string        // 签发调用方 token 的密钥，为空时每次启动随机生成
	SessionTTL         time.Duration // 调用方 token 有效期
	MongoURI           string
	MongoDB            string
	AllowedOrigins     []string
	Debug              bool
}

// LoadConfig 从 .env 与环境变量加载配置
func LoadConfig() *Config {
	// .env 不存在时忽略
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port <= 0 {
		port = 8080
	}

	digestHour, err := strconv.Atoi(getEnv("REMINDER_DIGEST_HOUR", "9"))
	if err != nil || digestHour > 23 {
		digestHour = 9
	}

	authMode := strings.ToLower(getEnv("AUTH_MODE", AuthModeToken))
	if authMode != AuthModeLocal {
		authMode = AuthModeToken
	}

	return &Config{
		Port:               port,
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:3001"), "/"),
		APITimeout:         getDuration("API_TIMEOUT", 15*time.Second),
		LiveURL:            getEnv("LIVE_URL", "ws://localhost:3001"),
		LiveReconnectDelay: getDuration("LIVE_RECONNECT_DELAY", 3*time.Second),
		RefreshInterval:    getDuration("REFRESH_INTERVAL", 0),
		DigestHour:         digestHour,
		AuthMode:           authMode,
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionTTL:         getDuration("SESSION_TTL", 12*time.Hour),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDB:            getEnv("MONGO_DB", "edulead"),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		Debug:              getEnv("GIN_MODE", "debug") == "debug",
	}
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getDuration 解析时长，支持 "3s" 形式或纯毫秒数
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func splitList(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
