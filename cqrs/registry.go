package cqrs

import (
	"context"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/wyfcoding/cqrskit/domain"
)

const (
	kindCommand = "command"
	kindQuery   = "query"
	kindEvent   = "event"
)

// CommandBinding 命令类型与其唯一处理器的绑定.
type CommandBinding struct {
	Handler string
	invoke  func(ctx context.Context, cmd Command) (domain.AggregateRoot, error)
}

// Handle 调用绑定的处理器.
func (b CommandBinding) Handle(ctx context.Context, cmd Command) (domain.AggregateRoot, error) {
	return b.invoke(ctx, cmd)
}

// QueryBinding 查询类型与其唯一处理器的绑定.
type QueryBinding struct {
	Handler string
	invoke  func(ctx context.Context, query Query) (any, error)
}

// Handle 调用绑定的处理器.
func (b QueryBinding) Handle(ctx context.Context, query Query) (any, error) {
	return b.invoke(ctx, query)
}

// EventBinding 事件订阅项. Key 为注册时的事件类型，可能是接口类型.
type EventBinding struct {
	Key     reflect.Type
	Handler string
	invoke  func(ctx context.Context, event domain.DomainEvent) error
}

// Handle 调用绑定的处理器.
func (b EventBinding) Handle(ctx context.Context, event domain.DomainEvent) error {
	return b.invoke(ctx, event)
}

// Registry 处理器注册表.
//
// 生命周期为单写者后冻结：启动阶段在一个 goroutine 中完成注册，随后 Freeze（构造总线时自动执行），
// 之后只读，可被并发无锁读取。冻结后的注册返回 ErrRegistryFrozen。
type Registry struct {
	commands map[reflect.Type]CommandBinding
	queries  map[reflect.Type]QueryBinding
	events   []EventBinding
	frozen   atomic.Bool
	resolved sync.Map // reflect.Type -> []EventBinding，仅在冻结后填充
}

// NewRegistry 创建空注册表.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[reflect.Type]CommandBinding),
		queries:  make(map[reflect.Type]QueryBinding),
	}
}

// Freeze 将注册表标记为只读. 重复调用无副作用.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// Frozen 报告注册表是否已冻结.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Stats 注册表中各类处理器的数量.
type Stats struct {
	Commands int
	Queries  int
	Events   int
}

// Stats 返回各类处理器的数量. 只应在冻结后或注册 goroutine 中调用.
func (r *Registry) Stats() Stats {
	return Stats{Commands: len(r.commands), Queries: len(r.queries), Events: len(r.events)}
}

// RegisterCommandHandler 将命令类型 C 绑定到 handler. C 已有处理器时返回 ErrDuplicateHandler，原绑定保持不变.
func RegisterCommandHandler[C Command, R domain.AggregateRoot](r *Registry, handler CommandHandler[C, R]) error {
	key := reflect.TypeFor[C]()
	if err := r.checkSingle(kindCommand, key, handler); err != nil {
		return err
	}
	if _, ok := r.commands[key]; ok {
		return duplicateError(kindCommand, typeName(key))
	}

	r.commands[key] = CommandBinding{
		Handler: handlerName(handler),
		invoke: func(ctx context.Context, msg Command) (domain.AggregateRoot, error) {
			return handler.Handle(ctx, msg.(C))
		},
	}
	return nil
}

// RegisterQueryHandler 将查询类型 Q 绑定到 handler，规则与命令相同，命名空间独立.
func RegisterQueryHandler[Q Query, R any](r *Registry, handler QueryHandler[Q, R]) error {
	key := reflect.TypeFor[Q]()
	if err := r.checkSingle(kindQuery, key, handler); err != nil {
		return err
	}
	if _, ok := r.queries[key]; ok {
		return duplicateError(kindQuery, typeName(key))
	}

	r.queries[key] = QueryBinding{
		Handler: handlerName(handler),
		invoke: func(ctx context.Context, msg Query) (any, error) {
			return handler.Handle(ctx, msg.(Q))
		},
	}
	return nil
}

// RegisterEventHandler 为事件类型 E 追加一个处理器. 允许重复，不会冲突.
// E 为接口类型时，所有实现该接口的事件都会投递给 handler.
func RegisterEventHandler[E domain.DomainEvent](r *Registry, handler EventHandler[E]) error {
	key := reflect.TypeFor[E]()
	if r.frozen.Load() {
		return frozenError(kindEvent, typeName(key))
	}
	if IsNil(handler) {
		return nilHandlerError(kindEvent, typeName(key))
	}

	r.events = append(r.events, EventBinding{
		Key:     key,
		Handler: handlerName(handler),
		invoke: func(ctx context.Context, event domain.DomainEvent) error {
			return handler.Handle(ctx, event.(E))
		},
	})
	return nil
}

func (r *Registry) checkSingle(kind string, key reflect.Type, handler any) error {
	if r.frozen.Load() {
		return frozenError(kind, typeName(key))
	}
	if IsNil(handler) {
		return nilHandlerError(kind, typeName(key))
	}
	if key.Kind() == reflect.Interface {
		return invalidTypeError(kind, typeName(key))
	}
	return nil
}

// ResolveCommandHandler 按精确类型查找命令处理器，不做接口匹配.
func (r *Registry) ResolveCommandHandler(t reflect.Type) (CommandBinding, error) {
	b, ok := r.commands[t]
	if !ok {
		return CommandBinding{}, notFoundError(kindCommand, typeName(t))
	}
	return b, nil
}

// ResolveQueryHandler 按精确类型查找查询处理器，不做接口匹配.
func (r *Registry) ResolveQueryHandler(t reflect.Type) (QueryBinding, error) {
	b, ok := r.queries[t]
	if !ok {
		return QueryBinding{}, notFoundError(kindQuery, typeName(t))
	}
	return b, nil
}

// ResolveEventHandlers 返回注册在 t 上的处理器以及注册在 t 所实现接口上的处理器，按注册顺序排列.
// 没有匹配时返回空切片. 返回的切片只读.
func (r *Registry) ResolveEventHandlers(t reflect.Type) []EventBinding {
	frozen := r.frozen.Load()
	if frozen {
		if cached, ok := r.resolved.Load(t); ok {
			return cached.([]EventBinding)
		}
	}

	matched := make([]EventBinding, 0, len(r.events))
	for _, b := range r.events {
		if b.Key == t || (b.Key.Kind() == reflect.Interface && t.Implements(b.Key)) {
			matched = append(matched, b)
		}
	}

	if frozen {
		r.resolved.Store(t, matched)
	}
	return matched
}

// HandlerNamer 可选接口，处理器通过它提供在日志与错误中使用的标识.
type HandlerNamer interface {
	HandlerName() string
}

func handlerName(h any) string {
	if n, ok := h.(HandlerNamer); ok {
		return n.HandlerName()
	}
	v := reflect.ValueOf(h)
	if v.Kind() == reflect.Func {
		if fn := runtime.FuncForPC(v.Pointer()); fn != nil {
			return fn.Name()
		}
	}
	return v.Type().String()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// IsNil 报告 v 是否为 nil 接口或 nil 指针等可空值.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
