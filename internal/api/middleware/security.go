package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders 安全响应头
// 响应内容含学生健康信息，禁止任何中间缓存
func SecurityHeaders() gin.HandlerFunc {
	headers := [][2]string{
		{"Cache-Control", "no-store"},
		{"Pragma", "no-cache"},
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range headers {
			h.Set(kv[0], kv[1])
		}
		c.Next()
	}
}
