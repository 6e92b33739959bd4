package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	apperrors "school-health/backend/pkg/errors"
)

func init() {
	// 校验错误中使用 json 字段名
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

type validatable interface {
	Validate() error
}

// bindJSON 绑定请求体并执行 DTO 的跨字段校验，失败时返回 Validation 错误
func bindJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return translateBindError(err)
	}
	if v, ok := req.(validatable); ok {
		if err := v.Validate(); err != nil {
			return apperrors.Validation(err.Error())
		}
	}
	return nil
}

func translateBindError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Validation("请求体格式错误")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperrors.Validation(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s 不能为空", field)
	case "min":
		return fmt.Sprintf("%s 不能少于 %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s 不能超过 %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s 必须为 [%s] 之一", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("%s 必须是合法的 UUID", field)
	default:
		return fmt.Sprintf("%s 校验失败 (%s)", field, fe.Tag())
	}
}
