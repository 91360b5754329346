// Package domain 定义总线所依赖的领域侧能力：领域事件与聚合根。
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent 领域事件基础接口。事件一旦构造即不可变。
type DomainEvent interface {
	// EventType 返回事件类型标识。
	EventType() string
	// OccurredAt 返回事件发生时间。
	OccurredAt() time.Time
	// AggregateID 返回产生事件的聚合根 ID。
	AggregateID() string
}

// Metadata 事件元数据。
type Metadata struct {
	CorrelationID string `json:"correlation_id,omitempty"` // 触发命令的请求 ID。
	CausationID   string `json:"causation_id,omitempty"`   // 直接原因（通常为命令名）。
	UserName      string `json:"username,omitempty"`       // 操作用户。
	CallerUID     int64  `json:"caller_uid,omitempty"`     // 操作账号。
}

// BaseEvent 可嵌入的领域事件实现，所有方法均为值接收者。
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata"`
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	AggID     string    `json:"aggregate_id"`
}

// NewBaseEvent 创建基础事件实例。
func NewBaseEvent(eventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		AggID:     aggregateID,
		Timestamp: time.Now(),
	}
}

// WithMetadata 返回附带元数据的副本。
func (e BaseEvent) WithMetadata(md Metadata) BaseEvent {
	e.Metadata = md
	return e
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggID }

// EventID 返回事件唯一标识。
func (e BaseEvent) EventID() string { return e.ID }

// Meta 返回事件元数据副本。
func (e BaseEvent) Meta() Metadata { return e.Metadata }
