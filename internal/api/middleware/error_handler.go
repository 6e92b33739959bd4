package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "school-health/backend/pkg/errors"
	"school-health/backend/pkg/response"
)

// ErrorHandler 统一错误出口
// Handler 通过 c.Error(err) 上报错误，这里按错误类别决定状态码并写入响应
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, http.StatusRequestEntityTooLarge, "请求体过大")
			return
		}

		status := apperrors.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("未处理的服务端错误",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.Error(err),
			)
			response.InternalError(c)
			return
		}
		response.Error(c, status, apperrors.MessageOf(err))
	}
}
