package interceptor

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/xerr"
)

// ErrorUnary 把 xerr 转成 gRPC status，已经是 status 的原样返回
func ErrorUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		return nil, toStatus(ctx, info.FullMethod, err)
	}
}

func toStatus(ctx context.Context, method string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	rid := RequestIDFromCtx(ctx)

	if xe, ok := xerr.As(err); ok && xe.Kind != xerr.Internal {
		logger.Warn(ctx, "grpc biz error",
			zap.String("request_id", rid),
			zap.String("grpc_method", method),
			zap.Int("biz_code", xe.Code),
			zap.String("kind", string(xe.Kind)),
			zap.String("message", xe.Msg),
			zap.NamedError("cause", xe.Cause),
		)
		return status.Error(xerr.GRPCCode(xe.Kind), xe.Msg)
	}

	// 未知错误：兜底堆栈
	logger.Error(ctx, "grpc unknown error",
		zap.String("request_id", rid),
		zap.String("grpc_method", method),
		zap.Error(err),
		zap.ByteString("stack", debug.Stack()),
	)
	return status.Error(xerr.GRPCCode(xerr.Internal), "internal error")
}
