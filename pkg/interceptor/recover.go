package interceptor

import (
	"context"
	"runtime/debug"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/xerr"
)

func panicHandler(ctx context.Context, p any) error {
	logger.Error(ctx, "grpc panic",
		zap.String("request_id", RequestIDFromCtx(ctx)),
		zap.Any("panic", p),
		zap.ByteString("stack", debug.Stack()),
	)
	return status.Error(xerr.GRPCCode(xerr.Internal), "internal error")
}

func RecoverUnary() grpc.UnaryServerInterceptor {
	return recovery.UnaryServerInterceptor(recovery.WithRecoveryHandlerContext(panicHandler))
}

// RecoverStream health Watch 是 stream 调用
func RecoverStream() grpc.StreamServerInterceptor {
	return recovery.StreamServerInterceptor(recovery.WithRecoveryHandlerContext(panicHandler))
}
