package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应信封 {status, message, data}，status 与 HTTP 状态码一致
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination 分页元数据
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// PageData 列表接口的 data
type PageData struct {
	List       interface{} `json:"list"`
	Pagination Pagination  `json:"pagination"`
}

// NewPageData totalPages 向上取整，limit 非正时为 0
func NewPageData(list interface{}, total int64, page, limit int) PageData {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PageData{List: list, Pagination: p}
}

func write(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Status: status, Message: message, Data: data})
}

func OK(c *gin.Context, message string, data interface{}) {
	write(c, http.StatusOK, message, data)
}

func Created(c *gin.Context, message string, data interface{}) {
	write(c, http.StatusCreated, message, data)
}

func OKPage(c *gin.Context, message string, list interface{}, total int64, page, limit int) {
	write(c, http.StatusOK, message, NewPageData(list, total, page, limit))
}

// Error 错误响应不带 data
func Error(c *gin.Context, status int, message string) {
	write(c, status, message, nil)
}

func Unauthorized(c *gin.Context, message string) { Error(c, http.StatusUnauthorized, message) }

func Forbidden(c *gin.Context, message string) { Error(c, http.StatusForbidden, message) }

func TooManyRequests(c *gin.Context, message string) { Error(c, http.StatusTooManyRequests, message) }

// InternalError 不向客户端暴露内部细节
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "服务器内部错误")
}
