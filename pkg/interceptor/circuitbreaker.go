package interceptor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"gopherwallet.com/pkg/ratelimit"
	"gopherwallet.com/pkg/xerr"
)

// CircuitBreakUnaryClient 按 method 熔断，Open 时直接 fail-fast
func CircuitBreakUnaryClient(mgr *ratelimit.Manager) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		err := mgr.Execute(method, func() error {
			return invoker(ctx, method, req, reply, cc, opts...)
		})
		if ratelimit.IsRejected(err) {
			return status.Error(xerr.GRPCCode(xerr.SettlementFailure), "circuit breaker open")
		}
		return err
	}
}
