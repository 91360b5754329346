package middleware

import (
	"context"
	"errors"

	"github.com/wyfcoding/cqrskit/cqrs"
	"github.com/wyfcoding/cqrskit/xerrors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusOf 将错误映射为 gRPC 状态. 无法识别的错误返回 nil.
// 事件扇出的部分失败整体视为 Internal，不采用其中某个处理器错误的分类.
func statusOf(err error) *status.Status {
	if st, ok := status.FromError(err); ok {
		return st
	}

	var agg *cqrs.AggregateError
	switch {
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &agg):
		return status.New(codes.Internal, agg.Error())
	}

	if xe, ok := xerrors.FromError(err); ok {
		return xe.ToGRPCStatus()
	}
	return nil
}

// GRPCErrorTranslator 返回一个 gRPC 一元拦截器，把分发错误和 xerrors 错误转换为标准状态码.
// 无法识别的错误原样返回，由 gRPC 视为 Unknown.
func GRPCErrorTranslator() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if st := statusOf(err); st != nil {
			return resp, st.Err()
		}
		return resp, err
	}
}
