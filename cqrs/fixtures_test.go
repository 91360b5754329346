package cqrs

import (
	"context"

	"github.com/wyfcoding/cqrskit/domain"
)

type order struct {
	domain.BaseAggregate
	Item      string
	RequestID string
}

type invoice struct {
	domain.BaseAggregate
}

type createOrder struct {
	Envelope
	Item string
}

type cancelOrder struct {
	Envelope
	ID string
}

type getOrder struct {
	Envelope
	ID string
}

type orderPlaced struct {
	domain.BaseEvent
}

type orderShipped struct {
	domain.BaseEvent
}

type paymentSettled struct {
	domain.BaseEvent
}

// orderEvent 是订单相关事件共同实现的能力.
type orderEvent interface {
	domain.DomainEvent
	orderEvent()
}

func (orderPlaced) orderEvent()  {}
func (orderShipped) orderEvent() {}

type namedHandler struct{ name string }

func (h namedHandler) HandlerName() string { return h.name }

func (h namedHandler) Handle(context.Context, createOrder) (*order, error) { return &order{}, nil }

func createOrderHandler(calls *int) CommandHandlerFunc[createOrder, *order] {
	return func(ctx context.Context, cmd createOrder) (*order, error) {
		*calls++
		return &order{
			BaseAggregate: domain.NewBaseAggregate("o-" + cmd.Meta().RequestID),
			Item:          cmd.Item,
			RequestID:     cmd.Meta().RequestID,
		}, nil
	}
}
