package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gopherwallet"

var (
	RateLimitBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"service", "method", "reason"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"service", "method", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"service", "method", "state"}, // state: closed/open/half_open
	)

	// TransferTotal status: confirmed/failed/rejected
	TransferTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_total",
			Help:      "Total number of transfer requests by outcome.",
		},
		[]string{"network", "status"},
	)

	TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "End-to-end transfer latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms ~ 40s
		},
		[]string{"network", "status"},
	)

	SettlementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Settlement executor latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"network", "result"},
	)

	WalletOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_ops_total",
			Help:      "Wallet registry operations by result kind.",
		},
		[]string{"op", "kind"},
	)
)

var registerOnce sync.Once

// MustRegister 重复调用安全（测试里多次构建 server）
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RateLimitBlockTotal, CBRejectTotal, CBState,
			TransferTotal, TransferDuration, SettlementDuration, WalletOpsTotal,
		)
	})
}
