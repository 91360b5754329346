package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/cqrskit/contextx"
	"github.com/wyfcoding/cqrskit/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
)

// levelOf 调用方错误记 warn，服务端错误记 error.
func levelOf(code codes.Code) slog.Level {
	switch code {
	case codes.OK, codes.Canceled:
		return slog.LevelInfo
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.FailedPrecondition,
		codes.PermissionDenied, codes.Unauthenticated, codes.DeadlineExceeded:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// GRPCRequestLogger 返回一个 gRPC 一元拦截器，记录方法、状态、耗时与调用方上下文.
func GRPCRequestLogger() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := codes.OK
		if err != nil {
			code = codes.Unknown
			if st := statusOf(err); st != nil {
				code = st.Code()
			}
		}

		args := append([]any{"method", info.FullMethod, "status", code.String(), "duration", time.Since(start)},
			contextx.LogAttrs(ctx)...)
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			args = append(args, "peer", p.Addr.String())
		}
		if err != nil {
			args = append(args, "error", err)
		}
		logging.Default().Log(ctx, levelOf(code), "grpc request", args...)

		return resp, err
	}
}

// UnaryInterceptors 按推荐顺序组合本包的拦截器: 先注入调用方，再记录日志，最内层翻译错误.
func UnaryInterceptors(secret string) []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		GRPCCallerContext(secret),
		GRPCRequestLogger(),
		GRPCErrorTranslator(),
	}
}
