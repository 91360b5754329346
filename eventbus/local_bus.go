// Package eventbus 提供进程内的领域事件扇出.
// LocalBus 在调用方 goroutine 上按注册顺序逐个调用处理器，单个处理器失败不影响其余处理器，
// 全部尝试之后以 *cqrs.AggregateError 汇总失败.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/wyfcoding/cqrskit/cqrs"
	"github.com/wyfcoding/cqrskit/domain"
	"github.com/wyfcoding/cqrskit/xerrors"
)

// ErrHandlerPanic 表示事件处理器中恢复的 panic.
var ErrHandlerPanic = errors.New("event handler panic recovered")

const (
	busName      = "event"
	codeNilEvent = 400102
)

// LocalBus 基于注册表的本地同步事件总线.
type LocalBus struct {
	registry *cqrs.Registry
	observer *cqrs.Observer
}

// NewLocalBus 创建本地事件总线，并冻结注册表.
func NewLocalBus(registry *cqrs.Registry, opts ...cqrs.Option) *LocalBus {
	registry.Freeze()
	return &LocalBus{
		registry: registry,
		observer: cqrs.NewObserver(opts...),
	}
}

// Observer 返回总线的观测器.
func (b *LocalBus) Observer() *cqrs.Observer {
	return b.observer
}

// Publish 发布事件. 没有匹配的处理器时是空操作.
func (b *LocalBus) Publish(ctx context.Context, event domain.DomainEvent) error {
	if cqrs.IsNil(event) {
		return nilEventError()
	}

	t := reflect.TypeOf(event)
	name := t.String()
	ctx, finish := b.observer.Begin(ctx, busName, name)

	bindings := b.registry.ResolveEventHandlers(t)

	var failures []*cqrs.HandlerError
	for _, binding := range bindings {
		b.observer.Invoking(ctx, busName, name, binding.Handler)
		if err := b.invoke(ctx, binding, event); err != nil {
			b.observer.HandlerFailed(ctx, name, binding.Handler, err)
			failures = append(failures, &cqrs.HandlerError{Handler: binding.Handler, Event: name, Err: err})
		}
	}

	var err error
	if len(failures) > 0 {
		err = &cqrs.AggregateError{Event: name, Attempted: len(bindings), Failures: failures}
	}
	finish(err)

	return err
}

// PublishAll 依次发布多个事件（例如聚合根 PullEvents 的结果），每个事件都完整扇出，
// 返回所有事件失败的合并错误.
func (b *LocalBus) PublishAll(ctx context.Context, events ...domain.DomainEvent) error {
	var errs []error
	for _, event := range events {
		if err := b.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *LocalBus) invoke(ctx context.Context, binding cqrs.EventBinding, event domain.DomainEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			b.observer.Logger().ErrorContext(ctx, "event handler panic",
				"handler", binding.Handler, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return binding.Handle(ctx, event)
}

func nilEventError() error {
	return xerrors.Newf(xerrors.KindInvalidArg, codeNilEvent, cqrs.ErrNilMessage, "event must not be nil")
}
