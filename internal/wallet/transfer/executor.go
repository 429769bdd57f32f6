package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/internal/wallet/keyvault"
	"gopherwallet.com/pkg/ratelimit"
	"gopherwallet.com/pkg/xerr"
)

// Settlement 交给结算方的一笔转账，PrivateKey 只用于签名，不落日志
type Settlement struct {
	TxHash     string
	Network    domain.Network
	Token      *domain.Token
	From       string
	To         string
	Amount     decimal.Decimal
	PrivateKey string
	Memo       string
}

type Outcome struct {
	Success bool
	Message string
}

// Executor 结算边界：返回 error 或 Success=false 都视为失败
type Executor interface {
	Settle(ctx context.Context, s Settlement) (Outcome, error)
}

// SimulatedExecutor 不上链，只校验私钥格式并模拟出块等待
type SimulatedExecutor struct {
	vault *keyvault.Vault
	delay time.Duration
}

func NewSimulatedExecutor(vault *keyvault.Vault, delay time.Duration) *SimulatedExecutor {
	return &SimulatedExecutor{vault: vault, delay: delay}
}

func (e *SimulatedExecutor) Settle(ctx context.Context, s Settlement) (Outcome, error) {
	if !e.vault.ValidatePrivateKey(s.PrivateKey) {
		return Outcome{Success: false, Message: "invalid private key"}, nil
	}
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("transferred %s %s to %s", s.Amount.String(), s.Token.Symbol, s.To),
	}, nil
}

// BreakerExecutor 每条链一个熔断器，下游持续失败时快速失败
type BreakerExecutor struct {
	next     Executor
	breakers *ratelimit.Manager
}

func NewBreakerExecutor(next Executor, breakers *ratelimit.Manager) *BreakerExecutor {
	return &BreakerExecutor{next: next, breakers: breakers}
}

func (e *BreakerExecutor) Settle(ctx context.Context, s Settlement) (Outcome, error) {
	var out Outcome
	err := e.breakers.Execute("settle:"+string(s.Network), func() error {
		var err error
		out, err = e.next.Settle(ctx, s)
		return err
	})
	if ratelimit.IsRejected(err) {
		return Outcome{}, xerr.Wrap(err, xerr.SettlementFailure, "settlement temporarily unavailable")
	}
	return out, err
}
