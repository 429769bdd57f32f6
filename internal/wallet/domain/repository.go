package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// 查不到记录时各 Store 返回 xerr.NotFound（余额除外：不存在即为零）

type TxManager interface {
	// Transaction fn 内用传入的 ctx 访问 Store 即加入同一个数据库事务
	Transaction(ctx context.Context, fn func(txCtx context.Context) error) error
}

type WalletStore interface {
	CreateWallet(ctx context.Context, w *Wallet) error
	GetWallet(ctx context.Context, walletID string) (*Wallet, error)
	FindWalletByAddress(ctx context.Context, address string, network Network) (*Wallet, error)
	FindWalletByUserNetwork(ctx context.Context, userID int64, network Network) (*Wallet, error)
	ListWalletsByUser(ctx context.Context, userID int64, network Network) ([]*Wallet, error)
	ClearPrivateKey(ctx context.Context, walletID string) error
	// SwapEncryptedKey 只有当前密文仍等于 oldCipher 时才写入（oldCipher 为 nil 时要求当前为明文）
	SwapEncryptedKey(ctx context.Context, walletID string, oldCipher *string, newCipher string) (bool, error)
}

type TokenStore interface {
	GetToken(ctx context.Context, symbol string, network Network) (*Token, error)
	GetTokenByID(ctx context.Context, id uint64) (*Token, error)
	UpsertToken(ctx context.Context, t *Token) error
}

type BalanceStore interface {
	// GetBalance 不存在返回 nil, nil
	GetBalance(ctx context.Context, walletID string, tokenID uint64) (*WalletBalance, error)
	// LockBalance 同 GetBalance，事务内加行锁
	LockBalance(ctx context.Context, walletID string, tokenID uint64) (*WalletBalance, error)
	UpsertBalance(ctx context.Context, walletID string, tokenID uint64, value decimal.Decimal) (*WalletBalance, error)
	InsertBalanceIfAbsent(ctx context.Context, walletID string, tokenID uint64, initial decimal.Decimal) error
	ListBalances(ctx context.Context, walletID string, nonZeroOnly bool) ([]*WalletBalance, error)
	SumBalanceByToken(ctx context.Context, tokenID uint64) (decimal.Decimal, error)
	TouchBalance(ctx context.Context, walletID string, tokenID uint64) error
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	// FinalizeTransaction 只允许 pending -> 终态，重复调用返回 false
	FinalizeTransaction(ctx context.Context, id uint64, status TxStatus, message string) (bool, error)
	GetTransactionByHash(ctx context.Context, txHash string) (*Transaction, error)
	ListTransactionsByWallet(ctx context.Context, walletID string, limit int) ([]*Transaction, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, log *AuditLog) error
}

// UserLookup 外部用户服务，查不到返回 xerr.NotFound
type UserLookup interface {
	FindUserByID(ctx context.Context, id int64) (*Owner, error)
	FindUserByEmail(ctx context.Context, email string) (*Owner, error)
}
