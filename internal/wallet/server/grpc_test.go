package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gopherwallet.com/pkg/bootstrap"
	"gopherwallet.com/pkg/ratelimit"
)

func startGRPC(t *testing.T, h *Health) string {
	t.Helper()
	opt := GRPCOptions("wallet-service-test", ratelimit.NewStore(1000, 1000, time.Minute))
	opt.RegisterGRPC = h.Register
	gs := bootstrap.NewGRPCServer(opt)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)
	return lis.Addr().String()
}

func TestHealth_FollowsDependencies(t *testing.T) {
	var dbDown atomic.Bool
	h := NewHealth("wallet-service", Check{Name: "mysql", Fn: func(ctx context.Context) error {
		if dbDown.Load() {
			return errors.New("connection refused")
		}
		return nil
	}})
	addr := startGRPC(t, h)
	breakers := ratelimit.NewManager("health-test", ratelimit.Rule{}, nil)
	ctx := context.Background()

	// 首轮探测前不对外服务
	status, err := CheckHealth(ctx, addr, "wallet-service", breakers)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	require.NoError(t, h.CheckOnce(ctx))
	status, err = CheckHealth(ctx, addr, "wallet-service", breakers)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	dbDown.Store(true)
	assert.Error(t, h.CheckOnce(ctx))
	status, err = CheckHealth(ctx, addr, "", breakers)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
}

func TestHealth_UnknownService(t *testing.T) {
	h := NewHealth("wallet-service")
	addr := startGRPC(t, h)
	_, err := CheckHealth(context.Background(), addr, "nope", ratelimit.NewManager("health-test", ratelimit.Rule{}, nil))
	assert.Error(t, err)
}

func TestHealth_RunStopsWithContext(t *testing.T) {
	h := NewHealth("wallet-service")
	addr := startGRPC(t, h)
	ctx, cancel := context.WithCancel(context.Background())
	h.Run(ctx, 10*time.Millisecond)

	breakers := ratelimit.NewManager("health-test", ratelimit.Rule{}, nil)
	status, err := CheckHealth(context.Background(), addr, "wallet-service", breakers)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	cancel()
	require.Eventually(t, func() bool {
		s, err := CheckHealth(context.Background(), addr, "wallet-service", breakers)
		return err == nil && s == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	r := NewRouter(&Handler{}, RouterOptions{Metrics: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
