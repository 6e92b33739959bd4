package handler

import (
	"github.com/gin-gonic/gin"

	"school-health/backend/internal/api/middleware"
	"school-health/backend/internal/model"
	"school-health/backend/pkg/response"
)

// MustGetAuth 从 Gin 上下文中提取 JWT 中间件注入的调用方身份。
// 缺失时写入 401 响应并返回 false，调用方应直接 return。
func MustGetAuth(c *gin.Context) (model.AuthContext, bool) {
	userID := c.GetString(middleware.CtxUserID)
	role := c.GetString(middleware.CtxRole)
	if userID == "" || role == "" {
		response.Unauthorized(c, "未认证")
		c.Abort()
		return model.AuthContext{}, false
	}
	return model.AuthContext{UserID: userID, RoleName: role}, true
}
