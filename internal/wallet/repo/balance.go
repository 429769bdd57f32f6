package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/orm"
	"gopherwallet.com/pkg/xerr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var walletTokenConflict = []clause.Column{{Name: "wallet_id"}, {Name: "token_id"}}

// GetBalance 查无记录返回 nil, nil：不存在即零余额
func (r *Repo) GetBalance(ctx context.Context, walletID string, tokenID uint64) (*domain.WalletBalance, error) {
	return r.findBalance(r.getDb(ctx), walletID, tokenID)
}

// LockBalance SELECT ... FOR UPDATE，需在事务内调用（sqlite 忽略行锁）
func (r *Repo) LockBalance(ctx context.Context, walletID string, tokenID uint64) (*domain.WalletBalance, error) {
	return r.findBalance(r.getDb(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), walletID, tokenID)
}

func (r *Repo) findBalance(db *gorm.DB, walletID string, tokenID uint64) (*domain.WalletBalance, error) {
	var b domain.WalletBalance
	err := db.Where("wallet_id = ? AND token_id = ?", walletID, tokenID).First(&b).Error
	if orm.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr(err, "get balance")
	}
	return &b, nil
}

// UpsertBalance 覆盖写入
func (r *Repo) UpsertBalance(ctx context.Context, walletID string, tokenID uint64, value decimal.Decimal) (*domain.WalletBalance, error) {
	now := time.Now()
	row := domain.WalletBalance{WalletID: walletID, TokenID: tokenID, Balance: value, LastUpdated: now}
	err := r.getDb(ctx).Clauses(clause.OnConflict{
		Columns: walletTokenConflict,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":      value,
			"last_updated": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, dbErr(err, "upsert balance")
	}
	return r.findBalance(r.getDb(ctx), walletID, tokenID)
}

func (r *Repo) InsertBalanceIfAbsent(ctx context.Context, walletID string, tokenID uint64, initial decimal.Decimal) error {
	row := domain.WalletBalance{WalletID: walletID, TokenID: tokenID, Balance: initial, LastUpdated: time.Now()}
	err := r.getDb(ctx).Clauses(clause.OnConflict{
		Columns:   walletTokenConflict,
		DoNothing: true,
	}).Create(&row).Error
	return dbErr(err, "init balance")
}

// ListBalances 按余额降序
func (r *Repo) ListBalances(ctx context.Context, walletID string, nonZeroOnly bool) ([]*domain.WalletBalance, error) {
	q := r.getDb(ctx).Where("wallet_id = ?", walletID)
	if nonZeroOnly {
		q = q.Where("balance > 0")
	}
	var list []*domain.WalletBalance
	if err := q.Order("balance DESC, token_id ASC").Find(&list).Error; err != nil {
		return nil, dbErr(err, "list balances")
	}
	return list, nil
}

func (r *Repo) SumBalanceByToken(ctx context.Context, tokenID uint64) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.getDb(ctx).Model(&domain.WalletBalance{}).
		Select("SUM(balance)").
		Where("token_id = ?", tokenID).
		Row().Scan(&total)
	if err != nil {
		return decimal.Zero, dbErr(err, "sum balance")
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *Repo) TouchBalance(ctx context.Context, walletID string, tokenID uint64) error {
	res := r.getDb(ctx).Model(&domain.WalletBalance{}).
		Where("wallet_id = ? AND token_id = ?", walletID, tokenID).
		Update("last_updated", time.Now())
	if res.Error != nil {
		return dbErr(res.Error, "touch balance")
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.NotFound, "balance not found")
	}
	return nil
}
