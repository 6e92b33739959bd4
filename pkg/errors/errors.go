package errors

import (
	"errors"
	"net/http"
)

// Kind 错误类别，决定对外的 HTTP 状态码
type Kind int

const (
	KindApplication Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	default:
		return "application"
	}
}

// Error 带类别的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同类别且同消息的错误视为相等，便于用哨兵错误做 errors.Is 比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// ── 构造函数 ──

// Validation 输入校验失败
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Authorization 调用方无权操作该资源
func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound 资源不存在
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Application 非预期错误，对外只暴露通用消息
func Application(message string, err error) *Error {
	return &Error{Kind: KindApplication, Message: message, Err: err}
}

// KindOf 取错误链上第一个 *Error 的类别，未分类错误视为 Application
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindApplication
}

// MessageOf 取错误链上第一个 *Error 的消息
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// HTTPStatus 错误类别到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
