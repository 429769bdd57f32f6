package transfer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/orm"
	"gopherwallet.com/pkg/xerr"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// History 最新的在前，limit 默认 50
func (e *Engine) History(ctx context.Context, walletID string, limit int) ([]*domain.Transaction, error) {
	if _, err := e.wallets.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return e.store.ListTransactionsByWallet(ctx, walletID, orm.ClampLimit(limit, defaultHistoryLimit, maxHistoryLimit))
}

func (e *Engine) GetByHash(ctx context.Context, txHash string) (*domain.Transaction, error) {
	return e.store.GetTransactionByHash(ctx, txHash)
}

type BalanceView struct {
	TokenID     uint64          `json:"token_id"`
	Symbol      string          `json:"token_symbol"`
	Name        string          `json:"token_name"`
	Network     domain.Network  `json:"network"`
	Balance     decimal.Decimal `json:"balance"`
	LastUpdated time.Time       `json:"last_updated"`
}

// WalletBalances 按余额降序，带代币信息
func (e *Engine) WalletBalances(ctx context.Context, walletID string) ([]BalanceView, error) {
	if _, err := e.wallets.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	rows, err := e.ledger.ListAll(ctx, walletID)
	if err != nil {
		return nil, err
	}
	out := make([]BalanceView, 0, len(rows))
	for _, b := range rows {
		v := BalanceView{TokenID: b.TokenID, Balance: b.Balance, LastUpdated: b.LastUpdated}
		if t, err := e.tokens.ByID(ctx, b.TokenID); err == nil {
			v.Symbol, v.Name, v.Network = t.Symbol, t.Name, t.Network
		} else if !xerr.IsKind(err, xerr.TokenNotFound) {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// TokenBalance 单个代币余额，无记录为零
func (e *Engine) TokenBalance(ctx context.Context, walletID string, tokenID uint64) (decimal.Decimal, error) {
	if _, err := e.wallets.GetWallet(ctx, walletID); err != nil {
		return decimal.Zero, err
	}
	return e.ledger.GetBalance(ctx, walletID, tokenID)
}

// InitializeTokenBalance 已有余额时原样返回
func (e *Engine) InitializeTokenBalance(ctx context.Context, walletID, symbol, network string, initial decimal.Decimal) (*domain.WalletBalance, error) {
	w, err := e.wallets.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	n := domain.ParseNetwork(network)
	if w.Network != n {
		return nil, xerr.Newf(xerr.NetworkMismatch, "wallet is on %s, not %s", w.Network, network)
	}
	token, err := e.tokens.Lookup(ctx, symbol, n)
	if err != nil {
		return nil, err
	}
	if !domain.WithinScale(initial, token.Scale()) {
		return nil, xerr.Newf(xerr.InvalidAmount, "initial balance exceeds %d decimal places of %s", token.Scale(), token.Symbol)
	}
	b, err := e.ledger.InitializeBalance(ctx, walletID, token.ID, initial)
	if err != nil {
		return nil, err
	}
	uid := w.UserID
	e.record(ctx, domain.AuditEntry{
		UserID: &uid,
		Action: domain.AuditBalanceInitialized,
		Metadata: map[string]any{
			"wallet_id": walletID,
			"token":     token.Symbol,
			"balance":   b.Balance.String(),
		},
		CreatedAt: time.Now(),
	})
	return b, nil
}
