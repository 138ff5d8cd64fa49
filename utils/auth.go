package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BerniceZTT/edulead_crm/models"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
)

// 需要角色校验的线索操作
const (
	ActionAssign = "assign"
	ActionDelete = "delete"
	ActionUpdate = "update"
	ActionRemark = "remark"
	ActionCreate = "create"
)

// TokenClaims accessToken 中可读取的信息
type TokenClaims struct {
	ID        string
	Username  string
	Role      string
	ExpiresAt time.Time // 无 exp 时为零值
}

// InspectToken 读取 accessToken 的 claims，不校验签名（签名由远程服务校验）
func InspectToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("无效的token")
	}

	result := &TokenClaims{}
	result.ID, _ = claims["id"].(string)
	if result.ID == "" {
		result.ID, _ = claims["_id"].(string)
	}
	result.Username, _ = claims["username"].(string)
	result.Role, _ = claims["role"].(string)

	switch exp := claims["exp"].(type) {
	case float64:
		result.ExpiresAt = time.Unix(int64(exp), 0)
	case int64:
		result.ExpiresAt = time.Unix(exp, 0)
	}

	return result, nil
}

// TokenExpired token 是否已过期；非 JWT 或没有 exp 的 token 视为未过期
func TokenExpired(tokenString string, now time.Time) bool {
	claims, err := InspectToken(tokenString)
	if err != nil || claims.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(claims.ExpiresAt)
}

// SessionClaims 看板签发给调用方的会话 token
type SessionClaims struct {
	SessionID string
	Username  string
	Role      string
}

// ErrInvalidSessionToken 签名、格式或有效期校验失败
var ErrInvalidSessionToken = errors.New("invalid session token")

// GenerateSessionToken 用 HS256 签发会话 token，sid 绑定一次登录
func GenerateSessionToken(secret []byte, sessionID string, user models.User, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sid":      sessionID,
		"id":       user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"iat":      issuedAt.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = issuedAt.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseSessionToken 校验签名与 exp，返回 token 中的会话信息
func ParseSessionToken(secret []byte, tokenString string) (*SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSessionToken
	}
	result := &SessionClaims{}
	result.SessionID, _ = claims["sid"].(string)
	result.Username, _ = claims["username"].(string)
	result.Role, _ = claims["role"].(string)
	if result.SessionID == "" || result.Username == "" {
		return nil, fmt.Errorf("%w: missing sid or username", ErrInvalidSessionToken)
	}
	return result, nil
}

// BearerToken 读取 Authorization: Bearer；实时连接无法设置请求头，允许 ?token=
func BearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}

// HasPermission 检查角色是否允许执行线索操作
func HasPermission(role models.UserRole, action string) bool {
	// 管理员拥有所有权限
	if role == models.UserRoleADMIN {
		return true
	}

	switch action {
	case ActionAssign, ActionDelete:
		return false
	case ActionUpdate, ActionRemark, ActionCreate:
		return role == models.UserRoleUSER
	}

	return false
}
