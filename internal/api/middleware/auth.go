package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"school-health/backend/pkg/jwt"
	"school-health/backend/pkg/response"
)

// 认证后注入 gin.Context 的键
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// TokenBlacklist 已注销 Token 查询，由 Redis 客户端实现
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// JWTAuth 校验 Authorization: Bearer <token>
// blacklist 为 nil 时不查黑名单；黑名单查询出错时降级放行
func JWTAuth(jwtMgr *jwt.Manager, blacklist TokenBlacklist, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "缺少认证头或格式无效")
			return
		}

		claims, err := jwtMgr.ParseToken(raw)
		if err != nil {
			abortUnauthorized(c, "Token 无效或已过期")
			return
		}

		if blacklist != nil && claims.ID != "" {
			revoked, err := blacklist.IsBlacklisted(c.Request.Context(), claims.ID)
			switch {
			case err != nil:
				logger.Warn("查询 Token 黑名单失败，降级放行", zap.String("jti", claims.ID), zap.Error(err))
			case revoked:
				abortUnauthorized(c, "Token 已注销")
				return
			}
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// RoleAuth 仅放行指定角色，须挂在 JWTAuth 之后
func RoleAuth(allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(CtxRole)
		if role == "" {
			abortUnauthorized(c, "未认证")
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "无权限访问")
			c.Abort()
			return
		}
		c.Next()
	}
}

// bearerToken scheme 不区分大小写
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	response.Unauthorized(c, msg)
	c.Abort()
}
