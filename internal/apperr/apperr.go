package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Kind 错误分类
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// 重复数据与状态冲突沿用历史行为，返回 400
var kindStatus = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusBadRequest,
	KindInternal:     http.StatusInternalServerError,
}

// Error 可预期的业务错误，消息可以直接返回给客户端
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
	Stack   []byte
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && (e.Message == "" || e.Message == e.Err.Error()) {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 Kind 比较，便于 errors.Is(err, apperr.NotFound(""))
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Status:  kindStatus[kind],
		Message: message,
		Err:     err,
		Stack:   debug.Stack(),
	}
}

func Validation(message string) *Error   { return newError(KindValidation, message, nil) }
func Unauthorized(message string) *Error { return newError(KindUnauthorized, message, nil) }
func Forbidden(message string) *Error    { return newError(KindForbidden, message, nil) }
func NotFound(message string) *Error     { return newError(KindNotFound, message, nil) }
func Conflict(message string) *Error     { return newError(KindConflict, message, nil) }
func Internal(message string) *Error     { return newError(KindInternal, message, nil) }

// Wrap 给底层错误加上分类和对外消息
func Wrap(kind Kind, message string, err error) *Error {
	return newError(kind, message, err)
}

// WithStatus 覆盖默认状态码
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// From 提取业务错误；非业务错误返回 (nil, false)
func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind 判断错误链中是否有指定分类
func IsKind(err error, kind Kind) bool {
	e, ok := From(err)
	return ok && e.Kind == kind
}
