package repo

import (
	"context"

	"gopherwallet.com/internal/wallet/domain"
)

func (r *Repo) CreateWallet(ctx context.Context, w *domain.Wallet) error {
	return dbErr(r.getDb(ctx).Create(w).Error, "create wallet")
}

func (r *Repo) GetWallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := r.getDb(ctx).Where("wallet_id = ?", walletID).First(&w).Error; err != nil {
		return nil, findErr(err, "wallet")
	}
	return &w, nil
}

func (r *Repo) FindWalletByAddress(ctx context.Context, address string, network domain.Network) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.getDb(ctx).
		Where("address = ? AND network = ?", address, network).
		First(&w).Error
	if err != nil {
		return nil, findErr(err, "wallet")
	}
	return &w, nil
}

func (r *Repo) FindWalletByUserNetwork(ctx context.Context, userID int64, network domain.Network) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.getDb(ctx).
		Where("user_id = ? AND network = ?", userID, network).
		First(&w).Error
	if err != nil {
		return nil, findErr(err, "wallet")
	}
	return &w, nil
}

// ListWalletsByUser network 为空返回该用户全部钱包
func (r *Repo) ListWalletsByUser(ctx context.Context, userID int64, network domain.Network) ([]*domain.Wallet, error) {
	q := r.getDb(ctx).Where("user_id = ?", userID)
	if network != "" {
		q = q.Where("network = ?", network)
	}
	var list []*domain.Wallet
	if err := q.Order("created_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, dbErr(err, "list wallets")
	}
	return list, nil
}

// ClearPrivateKey 明文与密文一起清空，可重复调用
func (r *Repo) ClearPrivateKey(ctx context.Context, walletID string) error {
	err := r.getDb(ctx).Model(&domain.Wallet{}).
		Where("wallet_id = ?", walletID).
		Updates(map[string]interface{}{
			"private_key":           nil,
			"encrypted_private_key": nil,
		}).Error
	return dbErr(err, "clear private key")
}

// SwapEncryptedKey 比较并交换：
// oldCipher != nil 要求当前密文未变；oldCipher == nil 要求当前只有明文
// 写入新密文的同时清空明文
func (r *Repo) SwapEncryptedKey(ctx context.Context, walletID string, oldCipher *string, newCipher string) (bool, error) {
	q := r.getDb(ctx).Model(&domain.Wallet{}).Where("wallet_id = ?", walletID)
	if oldCipher != nil {
		q = q.Where("encrypted_private_key = ?", *oldCipher)
	} else {
		q = q.Where("encrypted_private_key IS NULL AND private_key IS NOT NULL")
	}
	res := q.Updates(map[string]interface{}{
		"encrypted_private_key": newCipher,
		"private_key":           nil,
	})
	if res.Error != nil {
		return false, dbErr(res.Error, "swap encrypted key")
	}
	return res.RowsAffected == 1, nil
}
