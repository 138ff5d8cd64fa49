package controllers

import (
	"net/http"
	"strconv"

	"github.com/BerniceZTT/edulead_crm/models"
	"github.com/BerniceZTT/edulead_crm/service"
	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gin-gonic/gin"
)

// Login 用户登录，成功后拉取工作集
func Login(session *service.Session, coordinator *service.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.HandleError(c, utils.CreateBadRequestError("Email and password are required"))
			return
		}

		username := req.Username
		if username == "" {
			username = req.Email
		}
		utils.Logger.Info().Str("username", username).Msg("登录尝试")

		user, token, err := session.Login(c.Request.Context(), username, req.Password)
		if err != nil {
			utils.HandleError(c, err)
			return
		}

		// 拉取失败不影响登录结果，除非远程服务判定会话无效
		if err := coordinator.Refresh(c.Request.Context()); err != nil {
			if session.State() != service.SessionAuthenticated {
				utils.HandleError(c, err)
				return
			}
			utils.Logger.Warn().Err(err).Str("username", user.Username).Msg("登录后拉取数据失败")
		}

		utils.SuccessResponse(c, gin.H{
			"user":    user,
			"token":   token,
			"session": session.Info(),
		}, "Login successful")
	}
}

// Logout 退出登录，需要 confirm
func Logout(session *service.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LogoutRequest
		// 允许空请求体，此时读取 ?confirm=true
		_ = c.ShouldBindJSON(&req)
		if !req.Confirm {
			req.Confirm, _ = strconv.ParseBool(c.Query("confirm"))
		}

		if err := session.Logout(c.Request.Context(), req.Confirm); err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, nil, "Logged out")
	}
}

// SessionInfo 当前登录态，调用方 token 无效时视为未登录
func SessionInfo(session *service.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := service.SessionInfo{State: service.SessionUnauthenticated}
		if _, err := session.Authorize(utils.BearerToken(c)); err == nil {
			info = session.Info()
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    info,
		})
	}
}
