package cqrs

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/cqrskit/domain"
	"github.com/wyfcoding/cqrskit/xerrors"
)

func TestDuplicateCommandKeepsFirst(t *testing.T) {
	reg := NewRegistry()
	var first, second int
	require.NoError(t, RegisterCommandHandler(reg, createOrderHandler(&first)))

	err := RegisterCommandHandler(reg, createOrderHandler(&second))
	require.ErrorIs(t, err, ErrDuplicateHandler)
	assert.Equal(t, xerrors.KindAlreadyExists, xerrors.KindOf(err))

	_, err = NewInMemCommandBus(reg).Send(context.Background(), createOrder{})
	require.NoError(t, err)
	assert.Equal(t, 1, first)
	assert.Zero(t, second)
}

func TestDuplicateQueryRejected(t *testing.T) {
	reg := NewRegistry()
	h := QueryHandlerFunc[getOrder, string](func(context.Context, getOrder) (string, error) { return "", nil })

	require.NoError(t, RegisterQueryHandler(reg, h))
	assert.ErrorIs(t, RegisterQueryHandler(reg, h), ErrDuplicateHandler)
}

func TestCommandAndQueryNamespacesIndependent(t *testing.T) {
	reg := NewRegistry()
	var calls int

	require.NoError(t, RegisterCommandHandler(reg, createOrderHandler(&calls)))
	require.NoError(t, RegisterQueryHandler(reg, QueryHandlerFunc[createOrder, string](
		func(context.Context, createOrder) (string, error) { return "query", nil })))

	got, err := SendQuery[string](context.Background(), NewInMemQueryBus(reg), createOrder{})
	require.NoError(t, err)
	assert.Equal(t, "query", got)
	assert.Zero(t, calls)
	assert.Equal(t, Stats{Commands: 1, Queries: 1}, reg.Stats())
}

func TestRegistrationValidation(t *testing.T) {
	reg := NewRegistry()

	assert.ErrorIs(t, RegisterCommandHandler[createOrder, *order](reg, nil), ErrNilHandler)
	assert.ErrorIs(t, RegisterCommandHandler(reg, CommandHandlerFunc[createOrder, *order](nil)), ErrNilHandler)
	assert.ErrorIs(t, RegisterEventHandler[orderPlaced](reg, nil), ErrNilHandler)

	err := RegisterCommandHandler(reg, CommandHandlerFunc[Command, *order](
		func(context.Context, Command) (*order, error) { return nil, nil }))
	assert.ErrorIs(t, err, ErrInvalidMessageType)

	err = RegisterQueryHandler(reg, QueryHandlerFunc[Query, int](
		func(context.Context, Query) (int, error) { return 0, nil }))
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestFrozenRegistryRejectsRegistration(t *testing.T) {
	reg := NewRegistry()
	_ = NewInMemQueryBus(reg)
	require.True(t, reg.Frozen())

	var calls int
	err := RegisterCommandHandler(reg, createOrderHandler(&calls))
	require.ErrorIs(t, err, ErrRegistryFrozen)
	assert.Equal(t, xerrors.KindFailedPrecondition, xerrors.KindOf(err))

	err = RegisterEventHandler(reg, EventHandlerFunc[orderPlaced](func(context.Context, orderPlaced) error { return nil }))
	assert.ErrorIs(t, err, ErrRegistryFrozen)
}

func TestResolveExactTypeOnly(t *testing.T) {
	reg := NewRegistry()
	var calls int
	require.NoError(t, RegisterCommandHandler(reg, createOrderHandler(&calls)))

	_, err := reg.ResolveCommandHandler(reflect.TypeFor[createOrder]())
	require.NoError(t, err)

	_, err = reg.ResolveCommandHandler(reflect.TypeFor[*createOrder]())
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}

func recordingHandler[E domain.DomainEvent](log *[]string, name string) EventHandler[E] {
	return namedEventHandler[E]{name: name, fn: func(context.Context, E) error {
		*log = append(*log, name)
		return nil
	}}
}

type namedEventHandler[E domain.DomainEvent] struct {
	name string
	fn   func(context.Context, E) error
}

func (h namedEventHandler[E]) HandlerName() string                       { return h.name }
func (h namedEventHandler[E]) Handle(ctx context.Context, event E) error { return h.fn(ctx, event) }

func TestResolveEventHandlersPolymorphicInOrder(t *testing.T) {
	reg := NewRegistry()
	var log []string
	require.NoError(t, RegisterEventHandler(reg, recordingHandler[orderPlaced](&log, "placed-1")))
	require.NoError(t, RegisterEventHandler(reg, recordingHandler[orderEvent](&log, "any-order")))
	require.NoError(t, RegisterEventHandler(reg, recordingHandler[domain.DomainEvent](&log, "audit")))
	require.NoError(t, RegisterEventHandler(reg, recordingHandler[orderShipped](&log, "shipped")))
	require.NoError(t, RegisterEventHandler(reg, recordingHandler[orderPlaced](&log, "placed-2")))

	names := func(bs []EventBinding) []string {
		out := make([]string, 0, len(bs))
		for _, b := range bs {
			out = append(out, b.Handler)
		}
		return out
	}

	assert.Equal(t, []string{"placed-1", "any-order", "audit", "placed-2"},
		names(reg.ResolveEventHandlers(reflect.TypeFor[orderPlaced]())))
	assert.Equal(t, []string{"any-order", "audit", "shipped"},
		names(reg.ResolveEventHandlers(reflect.TypeFor[orderShipped]())))
	assert.Equal(t, []string{"audit"},
		names(reg.ResolveEventHandlers(reflect.TypeFor[paymentSettled]())))
	assert.Empty(t, reg.ResolveEventHandlers(reflect.TypeFor[*domain.BaseAggregate]()))
}

func TestResolveEventHandlersCachedAfterFreeze(t *testing.T) {
	reg := NewRegistry()
	var log []string
	require.NoError(t, RegisterEventHandler(reg, recordingHandler[orderPlaced](&log, "h")))
	reg.Freeze()

	key := reflect.TypeFor[orderPlaced]()
	first := reg.ResolveEventHandlers(key)
	second := reg.ResolveEventHandlers(key)
	require.Len(t, first, 1)
	assert.Same(t, &first[0], &second[0])

	_, cached := reg.resolved.Load(key)
	assert.True(t, cached)
}

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "creator", handlerName(namedHandler{name: "creator"}))

	var calls int
	assert.True(t, strings.HasPrefix(handlerName(createOrderHandler(&calls)), "github.com/wyfcoding/cqrskit/cqrs."))

	type plain struct{ namedHandler }
	assert.Equal(t, "creator", handlerName(plain{namedHandler{name: "creator"}}))
	assert.Equal(t, "*cqrs.order", handlerName(&order{}))
}
