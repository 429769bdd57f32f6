package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"gopherwallet.com/pkg/bootstrap"
	"gopherwallet.com/pkg/interceptor"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/ratelimit"
	"gopherwallet.com/pkg/safe"
)

// Check 依赖探测，返回 error 即视为不可用
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Health grpc.health.v1：依赖全部正常时 SERVING，否则 NOT_SERVING
type Health struct {
	service string
	srv     *health.Server
	checks  []Check
	timeout time.Duration
}

func NewHealth(service string, checks ...Check) *Health {
	h := &Health{
		service: service,
		srv:     health.NewServer(),
		checks:  checks,
		timeout: 2 * time.Second,
	}
	// 首次探测之前先不对外接流量
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *Health) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(h.service, status)
}

func (h *Health) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, h.srv)
	reflection.Register(gs)
}

// CheckOnce 跑一轮探测并更新状态，返回第一个失败的依赖
func (h *Health) CheckOnce(ctx context.Context) error {
	for _, c := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := c.Fn(cctx)
		cancel()
		if err != nil {
			logger.Warn(ctx, "health check failed", zap.String("dependency", c.Name), zap.Error(err))
			h.set(healthpb.HealthCheckResponse_NOT_SERVING)
			return err
		}
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run 周期探测，ctx 结束时置为 NOT_SERVING 并通知 Watch 方
func (h *Health) Run(ctx context.Context, every time.Duration) {
	_ = h.CheckOnce(ctx)
	safe.GoCtx(ctx, func(ctx context.Context) {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				h.srv.Shutdown()
				return
			case <-t.C:
				_ = h.CheckOnce(ctx)
			}
		}
	})
}

// GRPCOptions 拦截器顺序：recover -> request id -> access log -> sentinel -> 限流 -> 错误映射
func GRPCOptions(service string, store *ratelimit.Store) bootstrap.Options {
	unary := []grpc.UnaryServerInterceptor{
		interceptor.RecoverUnary(),
		interceptor.RequestIDServerUnary(),
		interceptor.AccessLogUnary(),
		interceptor.SentinelUnaryServerInterceptor(),
	}
	if store != nil {
		unary = append(unary, interceptor.RateLimitByMethodUnary(store, service))
	}
	unary = append(unary, interceptor.ErrorUnary())

	return bootstrap.Options{
		ServiceName:       service,
		UnaryInterceptors: unary,
		StreamInterceptors: []grpc.StreamServerInterceptor{
			interceptor.RecoverStream(),
			interceptor.RequestIDServerStream(),
			interceptor.AccessLogStream(),
		},
		StatsHandler: otelgrpc.NewServerHandler(),
	}
}

// CheckHealth 给容器 healthcheck / 运维脚本用的客户端探测
func CheckHealth(ctx context.Context, addr, service string, breakers *ratelimit.Manager) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(
			interceptor.RequestIDUnary(),
			interceptor.TimeOutInterceptor(3*time.Second),
			interceptor.CircuitBreakUnaryClient(breakers),
		),
	)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
