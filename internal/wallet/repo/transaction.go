package repo

import (
	"context"

	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/xerr"
)

func (r *Repo) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return dbErr(r.getDb(ctx).Create(tx).Error, "create transaction")
}

// FinalizeTransaction 状态机只允许 pending -> confirmed/failed
// SQL: UPDATE transactions SET status = ?, message = ? WHERE id = ? AND status = 'pending'
func (r *Repo) FinalizeTransaction(ctx context.Context, id uint64, status domain.TxStatus, message string) (bool, error) {
	if !status.Terminal() {
		return false, xerr.Newf(xerr.InvalidArgument, "status %q is not terminal", status)
	}
	res := r.getDb(ctx).Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", id, domain.TxPending).
		Updates(map[string]interface{}{
			"status":  status,
			"message": truncate(message, 255),
		})
	if res.Error != nil {
		return false, dbErr(res.Error, "finalize transaction")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) GetTransactionByHash(ctx context.Context, txHash string) (*domain.Transaction, error) {
	var tx domain.Transaction
	if err := r.getDb(ctx).Where("tx_hash = ?", txHash).First(&tx).Error; err != nil {
		return nil, findErr(err, "transaction")
	}
	return &tx, nil
}

// ListTransactionsByWallet 最新的在前
func (r *Repo) ListTransactionsByWallet(ctx context.Context, walletID string, limit int) ([]*domain.Transaction, error) {
	var list []*domain.Transaction
	err := r.getDb(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, dbErr(err, "list transactions")
	}
	return list, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
