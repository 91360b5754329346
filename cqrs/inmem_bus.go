package cqrs

import (
	"context"
	"reflect"

	"github.com/wyfcoding/cqrskit/domain"
)

// InMemCommandBus 进程内同步命令总线.
type InMemCommandBus struct {
	registry *Registry
	observer *Observer
}

// NewInMemCommandBus 基于注册表创建命令总线，并冻结注册表.
func NewInMemCommandBus(registry *Registry, opts ...Option) *InMemCommandBus {
	registry.Freeze()
	return &InMemCommandBus{
		registry: registry,
		observer: NewObserver(opts...),
	}
}

// Send 将命令分发到其唯一处理器. 空命令在查找注册表前即返回 ErrNilMessage；
// 处理器的结果与错误原样返回，不包装、不重试. 处理器 panic 时分发记为失败后继续抛出.
func (b *InMemCommandBus) Send(ctx context.Context, cmd Command) (domain.AggregateRoot, error) {
	if IsNil(cmd) {
		return nil, nilMessageError(kindCommand)
	}

	t := reflect.TypeOf(cmd)
	name := typeName(t)
	ctx = cmd.Meta().Inject(ctx)
	ctx, finish := b.observer.Begin(ctx, kindCommand, name)

	binding, err := b.registry.ResolveCommandHandler(t)
	if err != nil {
		finish(err)
		return nil, err
	}

	b.observer.Invoking(ctx, kindCommand, name, binding.Handler)
	defer b.observer.Recover(finish)
	res, err := binding.Handle(ctx, cmd)
	finish(err)

	return res, err
}

// Observer 返回总线的观测器.
func (b *InMemCommandBus) Observer() *Observer {
	return b.observer
}

// InMemQueryBus 进程内同步查询总线.
type InMemQueryBus struct {
	registry *Registry
	observer *Observer
}

// NewInMemQueryBus 基于注册表创建查询总线，并冻结注册表.
func NewInMemQueryBus(registry *Registry, opts ...Option) *InMemQueryBus {
	registry.Freeze()
	return &InMemQueryBus{
		registry: registry,
		observer: NewObserver(opts...),
	}
}

// Send 将查询分发到其唯一处理器，语义与命令总线对称.
func (b *InMemQueryBus) Send(ctx context.Context, query Query) (any, error) {
	if IsNil(query) {
		return nil, nilMessageError(kindQuery)
	}

	t := reflect.TypeOf(query)
	name := typeName(t)
	ctx = query.Meta().Inject(ctx)
	ctx, finish := b.observer.Begin(ctx, kindQuery, name)

	binding, err := b.registry.ResolveQueryHandler(t)
	if err != nil {
		finish(err)
		return nil, err
	}

	b.observer.Invoking(ctx, kindQuery, name, binding.Handler)
	defer b.observer.Recover(finish)
	res, err := binding.Handle(ctx, query)
	finish(err)

	return res, err
}

// Observer 返回总线的观测器.
func (b *InMemQueryBus) Observer() *Observer {
	return b.observer
}

// SendCommand 分发命令并把结果断言为 R. 处理器出错时返回其错误以及可断言的结果.
func SendCommand[R domain.AggregateRoot](ctx context.Context, bus CommandBus, cmd Command) (R, error) {
	res, err := bus.Send(ctx, cmd)
	return typedResult[R](res, err, cmd)
}

// SendQuery 分发查询并把结果断言为 R.
func SendQuery[R any](ctx context.Context, bus QueryBus, query Query) (R, error) {
	res, err := bus.Send(ctx, query)
	return typedResult[R](res, err, query)
}

func typedResult[R any](res any, err error, msg Message) (R, error) {
	typed, ok := res.(R)
	if err != nil || ok {
		return typed, err
	}
	if res == nil {
		var zero R
		return zero, nil
	}
	return typed, resultTypeError(typeName(reflect.TypeOf(msg)), res, typeName(reflect.TypeFor[R]()))
}
