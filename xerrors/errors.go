// Package xerrors 提供带分类、错误码与堆栈的结构化错误，并负责映射到 HTTP / gRPC 状态。
package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind 错误的大类
type Kind uint

const (
	KindUnknown Kind = iota
	KindInternal
	KindInvalidArg
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
	KindUnauthenticated
	KindFailedPrecondition
)

var kindNames = [...]string{
	"Unknown", "Internal", "InvalidArg", "NotFound", "AlreadyExists",
	"PermissionDenied", "Unauthenticated", "FailedPrecondition",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// Error 增强型错误结构
type Error struct {
	Kind    Kind     `json:"kind"`
	Code    int      `json:"code"`    // 业务错误码
	Message string   `json:"message"` // 对外展示的消息
	Cause   error    `json:"-"`       // 原始错误，参与 errors.Is / errors.As
	Stack   []string `json:"stack"`   // 构造处的调用栈
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %d: %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %d: %s", e.Kind, e.Code, e.Message)
}

// Unwrap 暴露原始错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// New 创建新错误并捕获堆栈
func New(kind Kind, code int, message string, cause error) *Error {
	e := &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
	e.captureStack()
	return e
}

// captureStack 捕获调用栈 (深度限制 10 层)
func (e *Error) captureStack() {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // 跳过 Callers, captureStack, New
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		e.Stack = append(e.Stack, fmt.Sprintf("%s:%d (%s)", frame.File, frame.Line, frame.Function))
		if !more || len(e.Stack) >= depth {
			break
		}
	}
}

// Newf 以格式化消息创建错误
func Newf(kind Kind, code int, cause error, format string, args ...any) *Error {
	e := New(kind, code, fmt.Sprintf(format, args...), cause)
	return e
}

// Wrap 包装现有错误；已是 *Error 时保留其分类
func Wrap(err error, kind Kind, msg string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := FromError(err); ok {
		kind = e.Kind
	}
	return New(kind, int(kind), msg, err)
}

// FromError 沿错误链查找 *Error
func FromError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 返回错误链上第一个 *Error 的分类
func KindOf(err error) Kind {
	if e, ok := FromError(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus 映射 HTTP 状态码
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidArg:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindFailedPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode 映射 gRPC 状态码
func (e *Error) GRPCCode() codes.Code {
	switch e.Kind {
	case KindInvalidArg:
		return codes.InvalidArgument
	case KindUnauthenticated:
		return codes.Unauthenticated
	case KindPermissionDenied:
		return codes.PermissionDenied
	case KindNotFound:
		return codes.NotFound
	case KindAlreadyExists:
		return codes.AlreadyExists
	case KindFailedPrecondition:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// ToGRPCStatus 转换为 gRPC Status
func (e *Error) ToGRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Message)
}
