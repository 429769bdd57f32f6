// Package ledger 余额账本：按 (wallet_id, token_id) 串行化所有变更
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/xerr"
)

type Store interface {
	domain.TxManager
	domain.BalanceStore
}

type Ledger struct {
	store  Store
	locker Locker
}

// New locker 为空时使用进程内 KeyedMutex
func New(store Store, locker Locker) *Ledger {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Ledger{store: store, locker: locker}
}

func lockKey(walletID string, tokenID uint64) string {
	return fmt.Sprintf("%s:%d", walletID, tokenID)
}

// Exclusive 持有 (wallet, token) 的互斥锁执行 fn
// fn 内只能用 Debit / Credit 修改该 key，其余变更方法会再次加锁导致死锁
func (l *Ledger) Exclusive(ctx context.Context, walletID string, tokenID uint64, fn func(ctx context.Context) error) error {
	unlock, err := l.locker.Lock(ctx, lockKey(walletID, tokenID))
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// GetBalance 无记录即为零
func (l *Ledger) GetBalance(ctx context.Context, walletID string, tokenID uint64) (decimal.Decimal, error) {
	b, err := l.store.GetBalance(ctx, walletID, tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	if b == nil {
		return decimal.Zero, nil
	}
	return b.Balance, nil
}

func (l *Ledger) SetBalance(ctx context.Context, walletID string, tokenID uint64, value decimal.Decimal) (*domain.WalletBalance, error) {
	if value.IsNegative() {
		return nil, xerr.New(xerr.InvalidAmount, "balance must not be negative")
	}
	if err := checkScale(value); err != nil {
		return nil, err
	}
	var out *domain.WalletBalance
	err := l.Exclusive(ctx, walletID, tokenID, func(ctx context.Context) error {
		var err error
		out, err = l.store.UpsertBalance(ctx, walletID, tokenID, value)
		return err
	})
	return out, err
}

// AddToBalance 负数转为扣减
func (l *Ledger) AddToBalance(ctx context.Context, walletID string, tokenID uint64, amount decimal.Decimal) (*domain.WalletBalance, error) {
	if amount.IsNegative() {
		return l.SubtractFromBalance(ctx, walletID, tokenID, amount.Neg())
	}
	if err := checkScale(amount); err != nil {
		return nil, err
	}
	var out *domain.WalletBalance
	err := l.Exclusive(ctx, walletID, tokenID, func(ctx context.Context) error {
		var err error
		out, err = l.credit(ctx, walletID, tokenID, amount)
		return err
	})
	return out, err
}

// checkScale 超过列精度的金额写入时会被数据库截断
func checkScale(amount decimal.Decimal) error {
	if !domain.WithinScale(amount, domain.MaxScale) {
		return xerr.Newf(xerr.InvalidAmount, "amount has more than %d decimal places", domain.MaxScale)
	}
	return nil
}

// credit 新余额在行锁内用 decimal 计算后整体写回，不依赖数据库的 balance + ? 运算
func (l *Ledger) credit(ctx context.Context, walletID string, tokenID uint64, amount decimal.Decimal) (*domain.WalletBalance, error) {
	var out *domain.WalletBalance
	err := l.store.Transaction(ctx, func(txCtx context.Context) error {
		if err := l.store.InsertBalanceIfAbsent(txCtx, walletID, tokenID, decimal.Zero); err != nil {
			return err
		}
		cur, err := l.store.LockBalance(txCtx, walletID, tokenID)
		if err != nil {
			return err
		}
		base := decimal.Zero
		if cur != nil {
			base = cur.Balance
		}
		out, err = l.store.UpsertBalance(txCtx, walletID, tokenID, base.Add(amount))
		return err
	})
	return out, err
}

// SubtractFromBalance 结果下限为零，不报余额不足；无记录时返回 nil
func (l *Ledger) SubtractFromBalance(ctx context.Context, walletID string, tokenID uint64, amount decimal.Decimal) (*domain.WalletBalance, error) {
	if amount.IsNegative() {
		return nil, xerr.New(xerr.InvalidAmount, "amount must not be negative")
	}
	if err := checkScale(amount); err != nil {
		return nil, err
	}
	var out *domain.WalletBalance
	err := l.Exclusive(ctx, walletID, tokenID, func(ctx context.Context) error {
		return l.store.Transaction(ctx, func(txCtx context.Context) error {
			cur, err := l.store.LockBalance(txCtx, walletID, tokenID)
			if err != nil || cur == nil {
				return err
			}
			next := decimal.Max(decimal.Zero, cur.Balance.Sub(amount))
			out, err = l.store.UpsertBalance(txCtx, walletID, tokenID, next)
			return err
		})
	})
	return out, err
}

// Debit 行锁内复核余额后扣减，余额不足返回 InsufficientFunds
// 调用方须已在 Exclusive 内，可在外层数据库事务中执行
func (l *Ledger) Debit(ctx context.Context, walletID string, tokenID uint64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return xerr.New(xerr.InvalidAmount, "amount must be greater than 0")
	}
	if err := checkScale(amount); err != nil {
		return err
	}
	return l.store.Transaction(ctx, func(txCtx context.Context) error {
		cur, err := l.store.LockBalance(txCtx, walletID, tokenID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Balance.LessThan(amount) {
			return xerr.New(xerr.InsufficientFunds, "insufficient balance")
		}
		_, err = l.store.UpsertBalance(txCtx, walletID, tokenID, cur.Balance.Sub(amount))
		return err
	})
}

// Credit 不存在则建行
func (l *Ledger) Credit(ctx context.Context, walletID string, tokenID uint64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return xerr.New(xerr.InvalidAmount, "amount must be greater than 0")
	}
	if err := checkScale(amount); err != nil {
		return err
	}
	_, err := l.credit(ctx, walletID, tokenID, amount)
	return err
}

func (l *Ledger) ListNonZero(ctx context.Context, walletID string) ([]*domain.WalletBalance, error) {
	return l.store.ListBalances(ctx, walletID, true)
}

func (l *Ledger) ListAll(ctx context.Context, walletID string) ([]*domain.WalletBalance, error) {
	return l.store.ListBalances(ctx, walletID, false)
}

// InitializeBalance 已存在则保持原值，返回当前记录
func (l *Ledger) InitializeBalance(ctx context.Context, walletID string, tokenID uint64, initial decimal.Decimal) (*domain.WalletBalance, error) {
	if initial.IsNegative() {
		return nil, xerr.New(xerr.InvalidAmount, "initial balance must not be negative")
	}
	if err := checkScale(initial); err != nil {
		return nil, err
	}
	var out *domain.WalletBalance
	err := l.Exclusive(ctx, walletID, tokenID, func(ctx context.Context) error {
		if err := l.store.InsertBalanceIfAbsent(ctx, walletID, tokenID, initial); err != nil {
			return err
		}
		var err error
		out, err = l.store.GetBalance(ctx, walletID, tokenID)
		return err
	})
	if err == nil {
		logger.Info(ctx, "余额初始化",
			zap.String("wallet_id", walletID),
			zap.Uint64("token_id", tokenID),
			zap.String("balance", out.Balance.String()))
	}
	return out, err
}

func (l *Ledger) TotalByToken(ctx context.Context, tokenID uint64) (decimal.Decimal, error) {
	return l.store.SumBalanceByToken(ctx, tokenID)
}

// Refresh 仅刷新 last_updated，链上同步不在此处
func (l *Ledger) Refresh(ctx context.Context, walletID string, tokenID uint64) (*domain.WalletBalance, error) {
	if err := l.store.TouchBalance(ctx, walletID, tokenID); err != nil {
		return nil, err
	}
	return l.store.GetBalance(ctx, walletID, tokenID)
}
