package interceptor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"gopherwallet.com/pkg/metrics"
	"gopherwallet.com/pkg/ratelimit"
	"gopherwallet.com/pkg/xerr"
)

// RateLimitByMethodUnary key 只用 FullMethod，不区分调用方
func RateLimitByMethodUnary(store *ratelimit.Store, serviceName string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !store.Allow(info.FullMethod) {
			metrics.RateLimitBlockTotal.WithLabelValues(serviceName, info.FullMethod, "token_bucket").Inc()
			return nil, status.Error(xerr.GRPCCode(xerr.RateLimited), "rate limited")
		}
		return handler(ctx, req)
	}
}
