// Package cqrs 提供命令查询职责分离的进程内分发核心：消息信封、处理器注册表、命令总线与查询总线。
//
// 命令与查询按运行时具体类型精确路由到唯一处理器；领域事件的扇出由 eventbus 包基于同一注册表完成。
// 所有分发都在调用方 goroutine 上同步执行，总线自身不启动任何 goroutine。
package cqrs

import (
	"context"
	"strings"

	"github.com/wyfcoding/cqrskit/contextx"
	"github.com/wyfcoding/cqrskit/domain"
	"github.com/wyfcoding/cqrskit/idgen"
)

// Envelope 每个命令与查询按值嵌入的调用方上下文。提交前设置一次，处理器只读。
type Envelope struct {
	RequestID   string `json:"request_id"`
	CallerUID   int64  `json:"caller_uid,omitempty"` // 0 表示未知调用方
	UserName    string `json:"username,omitempty"`
	Authorities string `json:"authorities,omitempty"` // 逗号分隔的权限集合
	JTI         string `json:"jti,omitempty"`
}

// Meta 返回信封副本。
func (e Envelope) Meta() Envelope { return e }

// HasCaller 报告是否携带调用方账号。
func (e Envelope) HasCaller() bool { return e.CallerUID != 0 }

// AuthorityList 拆分权限集合，忽略空项。
func (e Envelope) AuthorityList() []string {
	if e.Authorities == "" {
		return nil
	}
	parts := strings.Split(e.Authorities, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasAuthority 检查是否拥有指定权限。
func (e Envelope) HasAuthority(authority string) bool {
	for _, a := range e.AuthorityList() {
		if a == authority {
			return true
		}
	}
	return false
}

// Inject 将信封中已设置的字段写入 context，供处理器日志与下游调用使用。
func (e Envelope) Inject(ctx context.Context) context.Context {
	if e.RequestID != "" {
		ctx = contextx.WithRequestID(ctx, e.RequestID)
	}
	if e.CallerUID != 0 {
		ctx = contextx.WithCallerUID(ctx, e.CallerUID)
	}
	if e.UserName != "" {
		ctx = contextx.WithUserName(ctx, e.UserName)
	}
	if e.Authorities != "" {
		ctx = contextx.WithAuthorities(ctx, e.Authorities)
	}
	if e.JTI != "" {
		ctx = contextx.WithJTI(ctx, e.JTI)
	}
	return ctx
}

// EnvelopeFromContext 从上游写入的 context 构造信封，缺少请求 ID 时生成新的请求 ID。
func EnvelopeFromContext(ctx context.Context) Envelope {
	env := Envelope{
		RequestID:   contextx.GetRequestID(ctx),
		CallerUID:   contextx.GetCallerUID(ctx),
		UserName:    contextx.GetUserName(ctx),
		Authorities: contextx.GetAuthorities(ctx),
		JTI:         contextx.GetJTI(ctx),
	}
	if env.RequestID == "" {
		env.RequestID = idgen.NewRequestID()
	}
	return env
}

// Message 命令与查询的公共能力。
type Message interface {
	Meta() Envelope
}

// Command 表示改变状态的意图，由唯一处理器消费，结果绑定到聚合根。
type Command interface {
	Message
}

// Query 表示读取意图，由唯一处理器消费。约定无副作用，总线不做检查。
type Query interface {
	Message
}

// CommandHandler 命令处理器泛型接口。
type CommandHandler[C Command, R domain.AggregateRoot] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// CommandHandlerFunc 函数形式的命令处理器。
type CommandHandlerFunc[C Command, R domain.AggregateRoot] func(ctx context.Context, cmd C) (R, error)

// Handle 调用 f(ctx, cmd)。
func (f CommandHandlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

// QueryHandler 查询处理器泛型接口。
type QueryHandler[Q Query, R any] interface {
	Handle(ctx context.Context, query Q) (R, error)
}

// QueryHandlerFunc 函数形式的查询处理器。
type QueryHandlerFunc[Q Query, R any] func(ctx context.Context, query Q) (R, error)

// Handle 调用 f(ctx, query)。
func (f QueryHandlerFunc[Q, R]) Handle(ctx context.Context, query Q) (R, error) {
	return f(ctx, query)
}

// EventHandler 事件处理器泛型接口。E 可以是具体事件类型，也可以是事件实现的接口。
type EventHandler[E domain.DomainEvent] interface {
	Handle(ctx context.Context, event E) error
}

// EventHandlerFunc 函数形式的事件处理器。
type EventHandlerFunc[E domain.DomainEvent] func(ctx context.Context, event E) error

// Handle 调用 f(ctx, event)。
func (f EventHandlerFunc[E]) Handle(ctx context.Context, event E) error {
	return f(ctx, event)
}

// CommandBus 命令总线接口。
type CommandBus interface {
	// Send 将命令分发到其唯一处理器并原样返回结果与错误。
	Send(ctx context.Context, cmd Command) (domain.AggregateRoot, error)
}

// QueryBus 查询总线接口。
type QueryBus interface {
	// Send 将查询分发到其唯一处理器并原样返回结果与错误。
	Send(ctx context.Context, query Query) (any, error)
}

// EventBus 事件总线接口。
type EventBus interface {
	// Publish 将事件按注册顺序扇出给所有匹配的处理器。
	Publish(ctx context.Context, event domain.DomainEvent) error
}
