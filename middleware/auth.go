package middleware

import (
	"net/http"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
)

// contextUserKey 上下文中保存当前用户的键
const contextUserKey = "user"

// SessionAuthorizer 校验调用方 token 并返回当前会话用户
type SessionAuthorizer interface {
	Authorize(token string) (models.User, error)
}

// SessionGate 要求 Authorization: Bearer <token>，token 必须属于当前会话
func SessionGate(session SessionAuthorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := utils.BearerToken(c)
		if token == "" {
			utils.Logger.Info().
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("缺少Authorization头或格式错误")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Please log in to continue",
				"code":    "MISSING_TOKEN",
			})
			return
		}

		user, err := session.Authorize(token)
		if err != nil {
			utils.Logger.Info().
				Err(err).
				Str("path", c.Request.URL.Path).
				Str("authorization", utils.ShortAuthHeader(token)).
				Msg("Token验证失败")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Session is invalid or has ended, please log in again",
				"code":    "INVALID_TOKEN",
			})
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

// PermissionMiddleware 校验当前用户角色能否执行操作，需在 SessionGate 之后使用
func PermissionMiddleware(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Please log in to continue",
				"code":    "UNAUTHORIZED",
			})
			return
		}

		if !utils.HasPermission(user.Role, action) {
			utils.Logger.Info().
				Str("username", user.Username).
				Str("role", string(user.Role)).
				Str("action", action).
				Msg("权限不足")

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "You do not have permission to " + action + " leads",
				"code":    "FORBIDDEN",
			})
			return
		}

		c.Next()
	}
}

// AdminGate 仅管理员可访问
func AdminGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Admin access required",
				"code":    "FORBIDDEN",
			})
			return
		}
		c.Next()
	}
}

// CurrentUser 读取 SessionGate 写入的用户
func CurrentUser(c *gin.Context) (models.User, bool) {
	value, exists := c.Get(contextUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := value.(models.User)
	return user, ok
}
