// Package middleware 提供 gRPC 一元拦截器，把传输层的调用方信息转换为总线可读的 context.
package middleware

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/wyfcoding/cqrskit/contextx"
	"github.com/wyfcoding/cqrskit/idgen"
	"github.com/wyfcoding/cqrskit/jwt"
	"github.com/wyfcoding/cqrskit/tracing"
	"github.com/wyfcoding/cqrskit/xerrors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	grpcAuthorizationKey = "authorization"
	grpcTraceIDKey       = "x-trace-id"
	bearerPrefix         = "Bearer "

	codeBadToken    = 401001
	codeBadUserInfo = 400001
)

// UserInfo 网关校验令牌后通过 userinfo 头转发的调用方信息.
type UserInfo struct {
	UserID      int64  `json:"uid"`
	Username    string `json:"username"`
	Authorities string `json:"authorities,omitempty"`
}

// GRPCCallerContext 返回一个 gRPC 一元拦截器，按以下优先级注入调用方信息:
// Bearer 令牌 > userinfo 头 > username / jti 头. 请求 ID 缺失时生成新的.
// secret 为空时不解析令牌.
func GRPCCallerContext(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		requestID := first(md, contextx.HeaderRequestID)
		if requestID == "" {
			requestID = idgen.NewRequestID()
		}
		ctx = contextx.WithRequestID(ctx, requestID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(contextx.HeaderRequestID, requestID))
		if traceID := tracing.GetTraceID(ctx); traceID != "" {
			_ = grpc.SetHeader(ctx, metadata.Pairs(grpcTraceIDKey, traceID))
		}

		ctx, err := injectCaller(ctx, md, secret)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func injectCaller(ctx context.Context, md metadata.MD, secret string) (context.Context, error) {
	if auth := first(md, grpcAuthorizationKey); auth != "" && secret != "" {
		token, ok := strings.CutPrefix(auth, bearerPrefix)
		if !ok {
			return ctx, xerrors.New(xerrors.KindUnauthenticated, codeBadToken, "invalid authorization format", nil)
		}
		claims, err := jwt.ParseToken(token, secret)
		if err != nil {
			return ctx, xerrors.Wrap(err, xerrors.KindUnauthenticated, "invalid or expired token")
		}
		return claims.Inject(ctx), nil
	}

	if raw := first(md, contextx.HeaderUserInfo); raw != "" {
		var info UserInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return ctx, xerrors.New(xerrors.KindInvalidArg, codeBadUserInfo, "malformed userinfo header", err)
		}
		ctx = contextx.WithCallerUID(ctx, info.UserID)
		ctx = contextx.WithUserName(ctx, info.Username)
		ctx = contextx.WithAuthorities(ctx, info.Authorities)
	} else if name := first(md, contextx.HeaderUserName); name != "" {
		ctx = contextx.WithUserName(ctx, name)
	}

	if jti := first(md, contextx.HeaderJTI); jti != "" {
		ctx = contextx.WithJTI(ctx, jti)
	}
	return ctx, nil
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
