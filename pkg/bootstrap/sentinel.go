package bootstrap

import (
	"context"
	"fmt"
	"strings"

	sentinels "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/circuitbreaker"
	"github.com/alibaba/sentinel-golang/core/flow"
	"go.uber.org/zap"
	"gopherwallet.com/pkg/logger"
)

// SentinelCfg 流控 + 熔断规则，资源名与 middleware.SentinelResource 一致
type SentinelCfg struct {
	Enabled bool          `mapstructure:"enabled"`
	Flow    FlowSection   `mapstructure:"flow"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type FlowSection struct {
	Enabled bool       `mapstructure:"enabled"`
	Rules   []FlowRule `mapstructure:"rules"`
}

type FlowRule struct {
	Resource         string  `mapstructure:"resource"`
	Threshold        float64 `mapstructure:"threshold"`
	StatIntervalMs   uint32  `mapstructure:"stat_interval_ms"`
	Strategy         string  `mapstructure:"strategy"` // direct / warmup
	Control          string  `mapstructure:"control"`  // reject / throttling
	MaxQueueWaitMs   uint32  `mapstructure:"max_queue_wait_ms"`
	WarmUpSec        uint32  `mapstructure:"warm_up_sec"`
	WarmUpColdFactor uint32  `mapstructure:"warm_up_cold_factor"`
}

type BreakerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Rules   []BreakerRule `mapstructure:"rules"`
}

type BreakerRule struct {
	Resource         string  `mapstructure:"resource"`
	Strategy         string  `mapstructure:"strategy"` // error_ratio / error_count / slow_request_ratio
	Threshold        float64 `mapstructure:"threshold"`
	StatIntervalMs   uint32  `mapstructure:"stat_interval_ms"`
	MinRequestAmount uint64  `mapstructure:"min_request_amount"`
	RetryTimeoutMs   uint32  `mapstructure:"retry_timeout_ms"`
	MaxAllowedRtMs   uint64  `mapstructure:"max_allowed_rt_ms"`
}

func flowRules(sc *SentinelCfg) []*flow.Rule {
	if !sc.Flow.Enabled {
		return nil
	}
	var out []*flow.Rule
	for _, rule := range sc.Flow.Rules {
		if rule.Resource == "" {
			continue
		}
		interval := rule.StatIntervalMs
		if interval == 0 {
			interval = 1000
		}
		r := &flow.Rule{
			Resource:               rule.Resource,
			Threshold:              rule.Threshold,
			StatIntervalInMs:       interval,
			TokenCalculateStrategy: flow.Direct,
			ControlBehavior:        flow.Reject,
		}
		if strings.EqualFold(rule.Strategy, "warmup") {
			r.TokenCalculateStrategy = flow.WarmUp
			r.WarmUpPeriodSec = rule.WarmUpSec
			r.WarmUpColdFactor = rule.WarmUpColdFactor
		}
		if strings.EqualFold(rule.Control, "throttling") {
			r.ControlBehavior = flow.Throttling
			r.MaxQueueingTimeMs = rule.MaxQueueWaitMs
		}
		out = append(out, r)
	}
	return out
}

func breakerRules(sc *SentinelCfg) []*circuitbreaker.Rule {
	if !sc.Breaker.Enabled {
		return nil
	}
	var out []*circuitbreaker.Rule
	for _, rule := range sc.Breaker.Rules {
		if rule.Resource == "" {
			continue
		}
		r := &circuitbreaker.Rule{
			Resource:         rule.Resource,
			Threshold:        rule.Threshold,
			StatIntervalMs:   rule.StatIntervalMs,
			MinRequestAmount: rule.MinRequestAmount,
			RetryTimeoutMs:   rule.RetryTimeoutMs,
			MaxAllowedRtMs:   rule.MaxAllowedRtMs,
		}
		switch strings.ToLower(rule.Strategy) {
		case "error_count":
			r.Strategy = circuitbreaker.ErrorCount
		case "slow_request_ratio":
			r.Strategy = circuitbreaker.SlowRequestRatio
		default:
			r.Strategy = circuitbreaker.ErrorRatio
		}
		out = append(out, r)
	}
	return out
}

// InitSentinel 未启用时什么都不做，middleware 里的 Entry 全部放行
func InitSentinel(sc *SentinelCfg) error {
	if sc == nil || !(sc.Enabled || sc.Flow.Enabled || sc.Breaker.Enabled) {
		return nil
	}
	if err := sentinels.InitDefault(); err != nil {
		return fmt.Errorf("init sentinel: %w", err)
	}
	return LoadSentinelRules(sc)
}

// LoadSentinelRules 全量替换规则，配置热更新时调用
func LoadSentinelRules(sc *SentinelCfg) error {
	if _, err := flow.LoadRules(flowRules(sc)); err != nil {
		return fmt.Errorf("load flow rules: %w", err)
	}
	if _, err := circuitbreaker.LoadRules(breakerRules(sc)); err != nil {
		return fmt.Errorf("load circuit breaker rules: %w", err)
	}
	logger.Info(context.Background(), "✅ Sentinel 规则已加载",
		zap.Int("flow_rules", len(sc.Flow.Rules)),
		zap.Int("breaker_rules", len(sc.Breaker.Rules)),
	)
	return nil
}
