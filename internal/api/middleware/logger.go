package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 访问日志，按状态码分级
// route 记录路由模板，便于按接口聚合；健康检查只在 debug 级别输出
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zapcore.InfoLevel
		msg := "请求完成"
		switch {
		case status >= 500:
			level, msg = zapcore.ErrorLevel, "请求处理失败"
		case status >= 400:
			level, msg = zapcore.WarnLevel, "客户端错误"
		case c.FullPath() == "/health":
			level = zapcore.DebugLevel
		}

		ce := logger.Check(level, msg)
		if ce == nil {
			return
		}
		fields := []zap.Field{
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if uid := c.GetString(CtxUserID); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.ByType(gin.ErrorTypePrivate).String()))
		}
		ce.Write(fields...)
	}
}
