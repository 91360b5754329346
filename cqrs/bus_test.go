package cqrs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wyfcoding/cqrskit/contextx"
)

func TestEnvelopeAccessors(t *testing.T) {
	env := Envelope{CallerUID: 9, Authorities: " order:read, ,order:write "}

	assert.True(t, env.HasCaller())
	assert.False(t, Envelope{}.HasCaller())
	assert.Equal(t, []string{"order:read", "order:write"}, env.AuthorityList())
	assert.True(t, env.HasAuthority("order:write"))
	assert.False(t, env.HasAuthority("admin"))
	assert.Nil(t, Envelope{}.AuthorityList())
}

func TestEnvelopeMetaIsCopy(t *testing.T) {
	cmd := createOrder{Envelope: Envelope{RequestID: "r1"}}

	meta := cmd.Meta()
	meta.RequestID = "changed"

	assert.Equal(t, "r1", cmd.Meta().RequestID)
}

func TestEnvelopeFromContext(t *testing.T) {
	ctx := contextx.WithRequestID(context.Background(), "r1")
	ctx = contextx.WithCallerUID(ctx, 5)
	ctx = contextx.WithUserName(ctx, "alice")
	ctx = contextx.WithAuthorities(ctx, "a,b")
	ctx = contextx.WithJTI(ctx, "t-1")

	assert.Equal(t, Envelope{RequestID: "r1", CallerUID: 5, UserName: "alice", Authorities: "a,b", JTI: "t-1"},
		EnvelopeFromContext(ctx))
}

func TestEnvelopeFromContextMintsRequestID(t *testing.T) {
	a := EnvelopeFromContext(context.Background())
	b := EnvelopeFromContext(context.Background())

	assert.NotEmpty(t, a.RequestID)
	assert.NotEqual(t, a.RequestID, b.RequestID)
}

func TestEnvelopeInjectSkipsEmpty(t *testing.T) {
	ctx := Envelope{UserName: "bob"}.Inject(context.Background())

	assert.Equal(t, []any{"username", "bob"}, contextx.LogAttrs(ctx))
}
