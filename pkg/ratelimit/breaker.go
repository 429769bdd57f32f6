package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopherwallet.com/pkg/metrics"
	"gopherwallet.com/pkg/xerr"
)

type Rule struct {
	// Half-Open 状态允许通过的探测请求数
	MaxRequests uint32

	// Closed 状态计数窗口
	Interval time.Duration

	// >0 启用滚动窗口，否则固定窗口
	BucketPeriod time.Duration

	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration

	// 触发熔断条件，满足其一即可
	TripConsecutiveFailures uint32  // 连续失败阈值
	TripFailureRate         float64 // 失败率阈值（0~1）
	TripMinRequests         uint32  // 计算失败率的最小样本数
}

// Manager 每个名字一个熔断器，懒创建
type Manager struct {
	service string

	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[struct{}]

	defaultRule Rule
	rules       map[string]Rule
}

func NewManager(service string, defaultRule Rule, perName map[string]Rule) *Manager {
	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 5
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 3 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = 10 * time.Second
	}
	if defaultRule.TripConsecutiveFailures == 0 && defaultRule.TripFailureRate == 0 {
		defaultRule.TripConsecutiveFailures = 10
	}
	if defaultRule.TripMinRequests == 0 {
		defaultRule.TripMinRequests = 20
	}
	return &Manager{
		service:     service,
		m:           make(map[string]*gobreaker.CircuitBreaker[struct{}], 16),
		defaultRule: defaultRule,
		rules:       perName,
	}
}

func (m *Manager) Get(name string) *gobreaker.CircuitBreaker[struct{}] {
	m.mu.RLock()
	cb := m.m[name]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb = m.m[name]; cb != nil {
		return cb
	}

	rule, ok := m.rules[name]
	if !ok {
		rule = m.defaultRule
	}
	cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:         name,
		MaxRequests:  rule.MaxRequests,
		Interval:     rule.Interval,
		BucketPeriod: rule.BucketPeriod,
		Timeout:      rule.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				return float64(c.TotalFailures)/float64(c.Requests) >= rule.TripFailureRate
			}
			return false
		},
		IsSuccessful: IsSuccessfulForBreaker,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(m.service, name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(m.service, name, to.String()).Set(1)
		},
	})
	m.m[name] = cb
	return cb
}

// Execute 熔断拒绝时返回 gobreaker 原始错误，调用方用 IsRejected 判断
func (m *Manager) Execute(name string, fn func() error) error {
	_, err := m.Get(name).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if IsRejected(err) {
		metrics.CBRejectTotal.WithLabelValues(m.service, name, err.Error()).Inc()
	}
	return err
}

// IsRejected 熔断器拒绝（open / half-open 探测名额已满）
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsSuccessfulForBreaker 业务可预期错误不计入熔断失败
func IsSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}
	if ce, ok := xerr.As(err); ok {
		switch ce.Kind {
		case xerr.SettlementFailure, xerr.PersistenceFailure, xerr.Internal:
			return false
		default:
			return true
		}
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.InvalidArgument,
		codes.NotFound,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.AlreadyExists,
		codes.FailedPrecondition,
		codes.OutOfRange,
		codes.Canceled:
		return true
	default:
		return false
	}
}
