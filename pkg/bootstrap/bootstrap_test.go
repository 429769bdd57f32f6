package bootstrap

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alibaba/sentinel-golang/core/circuitbreaker"
	"github.com/alibaba/sentinel-golang/core/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestFlowRules(t *testing.T) {
	sc := &SentinelCfg{Flow: FlowSection{Enabled: true, Rules: []FlowRule{
		{Resource: "POST:/api/transfers", Threshold: 50},
		{Resource: "", Threshold: 1},
		{Resource: "POST:/api/wallets", Threshold: 10, Strategy: "warmup", WarmUpSec: 5, Control: "throttling", MaxQueueWaitMs: 200},
	}}}
	rules := flowRules(sc)
	require.Len(t, rules, 2)
	assert.Equal(t, flow.Direct, rules[0].TokenCalculateStrategy)
	assert.Equal(t, flow.Reject, rules[0].ControlBehavior)
	assert.Equal(t, uint32(1000), rules[0].StatIntervalInMs)
	assert.Equal(t, flow.WarmUp, rules[1].TokenCalculateStrategy)
	assert.Equal(t, flow.Throttling, rules[1].ControlBehavior)
	assert.Equal(t, uint32(200), rules[1].MaxQueueingTimeMs)

	sc.Flow.Enabled = false
	assert.Empty(t, flowRules(sc))
}

func TestBreakerRules(t *testing.T) {
	sc := &SentinelCfg{Breaker: BreakerConfig{Enabled: true, Rules: []BreakerRule{
		{Resource: "POST:/api/transfers", Threshold: 0.5},
		{Resource: "x", Strategy: "error_count", Threshold: 10},
	}}}
	rules := breakerRules(sc)
	require.Len(t, rules, 2)
	assert.Equal(t, circuitbreaker.ErrorRatio, rules[0].Strategy)
	assert.Equal(t, circuitbreaker.ErrorCount, rules[1].Strategy)
}

func TestInitSentinel_DisabledIsNoop(t *testing.T) {
	assert.NoError(t, InitSentinel(nil))
	assert.NoError(t, InitSentinel(&SentinelCfg{}))
}

func TestNewGRPCServer_Twice(t *testing.T) {
	var registered int
	opt := Options{RegisterGRPC: func(*grpc.Server) { registered++ }}
	NewGRPCServer(opt).Stop()
	NewGRPCServer(opt).Stop()
	assert.Equal(t, 2, registered)
}

func freeAddr(t *testing.T) string {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	httpAddr := freeAddr(t)
	var hookCalled bool
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			ServiceName: "wallet-service-test",
			GRPCAddr:    freeAddr(t),
			HTTPAddr:    httpAddr,
			HTTPHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}),
			OnShutdown: []func(context.Context) error{
				func(context.Context) error { hookCalled = true; return nil },
			},
		})
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + httpAddr + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, hookCalled)
}

func TestRun_MissingOptions(t *testing.T) {
	assert.Error(t, Run(context.Background(), Options{ServiceName: "x"}))
}
