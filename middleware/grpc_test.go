package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/cqrskit/config"
	"github.com/wyfcoding/cqrskit/contextx"
	"github.com/wyfcoding/cqrskit/cqrs"
	"github.com/wyfcoding/cqrskit/jwt"
	"github.com/wyfcoding/cqrskit/xerrors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const secret = "grpc-secret"

var info = &grpc.UnaryServerInfo{FullMethod: "/orders.v1.Orders/Place"}

func captureEnvelope(env *cqrs.Envelope) grpc.UnaryHandler {
	return func(ctx context.Context, _ any) (any, error) {
		*env = cqrs.EnvelopeFromContext(ctx)
		return "ok", nil
	}
}

func incoming(kv ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
}

func TestCallerContextFromToken(t *testing.T) {
	token, claims, err := jwt.GenerateToken(jwt.Subject{
		UserID:      42,
		Username:    "alice",
		Authorities: []string{"order:write"},
	}, config.JWTConfig{Secret: secret, ExpireDuration: time.Minute})
	require.NoError(t, err)

	var env cqrs.Envelope
	ctx := incoming(contextx.HeaderRequestID, "req-1", "authorization", "Bearer "+token)
	resp, err := GRPCCallerContext(secret)(ctx, nil, info, captureEnvelope(&env))

	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, int64(42), env.CallerUID)
	assert.Equal(t, "alice", env.UserName)
	assert.True(t, env.HasAuthority("order:write"))
	assert.Equal(t, claims.ID, env.JTI)
}

func TestCallerContextRejectsBadToken(t *testing.T) {
	called := false
	handler := func(context.Context, any) (any, error) { called = true; return nil, nil }

	_, err := GRPCCallerContext(secret)(incoming("authorization", "Bearer not-a-jwt"), nil, info, handler)
	assert.Equal(t, xerrors.KindUnauthenticated, xerrors.KindOf(err))
	assert.ErrorIs(t, err, jwt.ErrTokenMalformed)

	_, err = GRPCCallerContext(secret)(incoming("authorization", "Basic abc"), nil, info, handler)
	assert.Equal(t, xerrors.KindUnauthenticated, xerrors.KindOf(err))
	assert.False(t, called)
}

func TestCallerContextFromForwardedHeaders(t *testing.T) {
	var env cqrs.Envelope
	ctx := incoming(
		contextx.HeaderUserInfo, `{"uid":7,"username":"bob","authorities":"order:read,order:write"}`,
		contextx.HeaderJTI, "jti-9",
	)
	_, err := GRPCCallerContext(secret)(ctx, nil, info, captureEnvelope(&env))
	require.NoError(t, err)

	assert.Equal(t, int64(7), env.CallerUID)
	assert.Equal(t, "bob", env.UserName)
	assert.Equal(t, []string{"order:read", "order:write"}, env.AuthorityList())
	assert.Equal(t, "jti-9", env.JTI)
	assert.NotEmpty(t, env.RequestID)

	_, err = GRPCCallerContext(secret)(incoming(contextx.HeaderUserInfo, "{"), nil, info, captureEnvelope(&env))
	assert.Equal(t, xerrors.KindInvalidArg, xerrors.KindOf(err))
}

func TestCallerContextUsernameOnly(t *testing.T) {
	var env cqrs.Envelope
	_, err := GRPCCallerContext("")(incoming(contextx.HeaderUserName, "carol"), nil, info, captureEnvelope(&env))
	require.NoError(t, err)

	assert.Equal(t, "carol", env.UserName)
	assert.False(t, env.HasCaller())
}

func TestCallerContextWithoutMetadata(t *testing.T) {
	var env cqrs.Envelope
	_, err := GRPCCallerContext(secret)(context.Background(), nil, info, captureEnvelope(&env))
	require.NoError(t, err)

	assert.NotEmpty(t, env.RequestID)
	assert.Empty(t, env.UserName)
}

func TestErrorTranslator(t *testing.T) {
	translate := GRPCErrorTranslator()

	notFound := func(context.Context, any) (any, error) {
		return nil, xerrors.Newf(xerrors.KindNotFound, 404101, cqrs.ErrHandlerNotFound, "query orders.Get")
	}
	_, err := translate(context.Background(), nil, info, notFound)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "query orders.Get", st.Message())

	already := status.Error(codes.Aborted, "conflict")
	_, err = translate(context.Background(), nil, info, func(context.Context, any) (any, error) { return nil, already })
	assert.Equal(t, already, err)

	plain := errors.New("plain")
	_, err = translate(context.Background(), nil, info, func(context.Context, any) (any, error) { return nil, plain })
	assert.Equal(t, plain, err)

	resp, err := translate(context.Background(), nil, info, func(context.Context, any) (any, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, resp)
}

func TestChainedInterceptors(t *testing.T) {
	chain := UnaryInterceptors(secret)
	require.Len(t, chain, 3)

	final := func(ctx context.Context, _ any) (any, error) {
		return nil, xerrors.New(xerrors.KindPermissionDenied, 403001, "missing authority", nil)
	}
	handler := grpc.UnaryHandler(final)
	for i := len(chain) - 1; i >= 0; i-- {
		next, interceptor := handler, chain[i]
		handler = func(ctx context.Context, req any) (any, error) {
			return interceptor(ctx, req, info, next)
		}
	}

	_, err := handler(incoming(contextx.HeaderUserName, "dave"), nil)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestStatusOfDispatchErrors(t *testing.T) {
	agg := &cqrs.AggregateError{
		Event:     "orders.Placed",
		Attempted: 2,
		Failures: []*cqrs.HandlerError{{
			Handler: "mailer",
			Event:   "orders.Placed",
			Err:     xerrors.New(xerrors.KindNotFound, 404001, "template missing", nil),
		}},
	}

	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"aggregate", agg, codes.Internal},
		{"canceled", context.Canceled, codes.Canceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"frozen", xerrors.Newf(xerrors.KindFailedPrecondition, 500103, cqrs.ErrRegistryFrozen, "register"), codes.FailedPrecondition},
		{"status", status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := statusOf(tc.err)
			require.NotNil(t, st)
			assert.Equal(t, tc.want, st.Code())
		})
	}

	assert.Nil(t, statusOf(errors.New("plain")))
}

func TestLevelOf(t *testing.T) {
	assert.Equal(t, "INFO", levelOf(codes.OK).String())
	assert.Equal(t, "WARN", levelOf(codes.NotFound).String())
	assert.Equal(t, "ERROR", levelOf(codes.Internal).String())
}
