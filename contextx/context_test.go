package contextx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "r1")
	ctx = WithCallerUID(ctx, 42)
	ctx = WithUserName(ctx, "alice")
	ctx = WithAuthorities(ctx, "order:read,order:write")
	ctx = WithJTI(ctx, "tok-1")

	assert.Equal(t, "r1", GetRequestID(ctx))
	assert.Equal(t, int64(42), GetCallerUID(ctx))
	assert.Equal(t, "alice", GetUserName(ctx))
	assert.Equal(t, "order:read,order:write", GetAuthorities(ctx))
	assert.Equal(t, "tok-1", GetJTI(ctx))
}

func TestDefaults(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestID(ctx))
	assert.Zero(t, GetCallerUID(ctx))
	assert.Empty(t, GetUserName(ctx))
	assert.Empty(t, LogAttrs(ctx))
}

func TestLogAttrsOnlySetKeys(t *testing.T) {
	ctx := WithUserName(WithRequestID(context.Background(), "r9"), "bob")

	assert.Equal(t, []any{"request_id", "r9", "username", "bob"}, LogAttrs(ctx))
}
