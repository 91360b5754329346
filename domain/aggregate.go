package domain

// AggregateRoot 命令处理结果所绑定的聚合根能力。
type AggregateRoot interface {
	ID() string
	Version() int64
	// PullEvents 取出并清空聚合根在本次命令中产生的事件，顺序与产生顺序一致。
	PullEvents() []DomainEvent
}

// BaseAggregate 可嵌入的聚合根基础实现，记录待发布事件。
type BaseAggregate struct {
	pending []DomainEvent
	version int64
	id      string
}

// NewBaseAggregate 以给定 ID 创建聚合根基础状态。
func NewBaseAggregate(id string) BaseAggregate {
	return BaseAggregate{id: id}
}

// ID 返回聚合根唯一标识。
func (a *BaseAggregate) ID() string {
	return a.id
}

// SetID 设置聚合根唯一标识。
func (a *BaseAggregate) SetID(id string) {
	a.id = id
}

// Version 返回聚合根当前版本号，每产生一个事件加一。
func (a *BaseAggregate) Version() int64 {
	return a.version
}

// Raise 记录一个新产生的领域事件。
func (a *BaseAggregate) Raise(event DomainEvent) {
	a.version++
	a.pending = append(a.pending, event)
}

// PullEvents 取出并清空待发布事件。
func (a *BaseAggregate) PullEvents() []DomainEvent {
	events := a.pending
	a.pending = nil
	return events
}

// HasPendingEvents 检查是否存在待发布事件。
func (a *BaseAggregate) HasPendingEvents() bool {
	return len(a.pending) > 0
}
