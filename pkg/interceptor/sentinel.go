package interceptor

import (
	"context"

	sentinels "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/xerr"
)

// SentinelUnaryServerInterceptor 资源名用 FullMethod，例如 /grpc.health.v1.Health/Check
func SentinelUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resourceName := info.FullMethod
		entry, blockError := sentinels.Entry(resourceName,
			sentinels.WithResourceType(base.ResTypeRPC),
			sentinels.WithTrafficType(base.Inbound),
		)
		if blockError != nil {
			logger.Warn(ctx, "request blocked by sentinel",
				zap.String("method", resourceName),
				zap.String("blockType", blockError.BlockType().String()),
				zap.String("blockMsg", blockError.Error()),
			)
			return nil, status.Error(codes.ResourceExhausted, "service is busy, please try again later")
		}
		// Exit 负责统计耗时和成败，熔断依赖它
		defer entry.Exit()

		resp, err := handler(ctx, req)
		if err != nil && isSystemError(err) {
			sentinels.TraceError(entry, err)
		}
		return resp, err
	}
}

// isSystemError 只有系统错误参与熔断，余额不足/参数错误之类不算
func isSystemError(err error) bool {
	if err == nil {
		return false
	}
	if xe, ok := xerr.As(err); ok {
		switch xe.Kind {
		case xerr.Internal, xerr.PersistenceFailure, xerr.SettlementFailure:
			return true
		default:
			return false
		}
	}

	st, ok := status.FromError(err)
	if !ok {
		// 非 gRPC 错误按系统错误处理
		return true
	}
	switch st.Code() {
	case codes.Internal, codes.Unavailable, codes.DeadlineExceeded, codes.DataLoss, codes.Unknown:
		return true
	default:
		return false
	}
}
