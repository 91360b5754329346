package cqrs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wyfcoding/cqrskit/xerrors"
)

var (
	// ErrNilMessage 提交了空消息.
	ErrNilMessage = errors.New("nil message")
	// ErrHandlerNotFound 消息类型没有注册处理器.
	ErrHandlerNotFound = errors.New("no handler registered")
	// ErrDuplicateHandler 同一命令或查询类型重复注册处理器.
	ErrDuplicateHandler = errors.New("handler already registered")
	// ErrNilHandler 注册了空处理器.
	ErrNilHandler = errors.New("nil handler")
	// ErrInvalidMessageType 命令或查询必须以具体类型注册.
	ErrInvalidMessageType = errors.New("message type must be concrete")
	// ErrRegistryFrozen 注册表冻结后不再接受注册.
	ErrRegistryFrozen = errors.New("registry is frozen")
	// ErrResultType 处理器结果与调用方期望的类型不符.
	ErrResultType = errors.New("unexpected handler result type")
)

// 错误码，与 xerrors.Kind 对应的 HTTP 状态为前缀。
const (
	codeNilMessage     = 400101
	codeNotFound       = 404101
	codeDuplicate      = 409101
	codeNilHandler     = 500101
	codeInvalidType    = 500102
	codeRegistryFrozen = 500103
	codeResultType     = 500104
)

func nilMessageError(kind string) error {
	return xerrors.Newf(xerrors.KindInvalidArg, codeNilMessage, ErrNilMessage, "%s must not be nil", kind)
}

func notFoundError(kind, message string) error {
	return xerrors.Newf(xerrors.KindNotFound, codeNotFound, ErrHandlerNotFound, "%s %s", kind, message)
}

func duplicateError(kind, message string) error {
	return xerrors.Newf(xerrors.KindAlreadyExists, codeDuplicate, ErrDuplicateHandler, "%s %s", kind, message)
}

func nilHandlerError(kind, message string) error {
	return xerrors.Newf(xerrors.KindInternal, codeNilHandler, ErrNilHandler, "%s %s", kind, message)
}

func invalidTypeError(kind, message string) error {
	return xerrors.Newf(xerrors.KindInternal, codeInvalidType, ErrInvalidMessageType, "%s %s is an interface type", kind, message)
}

func frozenError(kind, message string) error {
	return xerrors.Newf(xerrors.KindFailedPrecondition, codeRegistryFrozen, ErrRegistryFrozen, "register %s %s", kind, message)
}

func resultTypeError(message string, got any, want string) error {
	return xerrors.Newf(xerrors.KindInternal, codeResultType, ErrResultType, "%s returned %T, want %s", message, got, want)
}

// HandlerError 单个事件处理器的失败.
type HandlerError struct {
	Handler string // 处理器标识
	Event   string // 事件类型
	Err     error  // 处理器返回的原始错误
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s on %s: %v", e.Handler, e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// AggregateError 一次事件扇出中全部处理器失败的有序集合.
// 只有在所有处理器都被尝试之后才会返回.
type AggregateError struct {
	Event     string
	Attempted int
	Failures  []*HandlerError
}

func (e *AggregateError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d handlers failed for %s", len(e.Failures), e.Attempted, e.Event)
	for _, f := range e.Failures {
		sb.WriteString("; ")
		sb.WriteString(f.Handler)
		sb.WriteString(": ")
		sb.WriteString(f.Err.Error())
	}
	return sb.String()
}

// Unwrap 让 errors.Is / errors.As 可以匹配任意一个底层失败.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
