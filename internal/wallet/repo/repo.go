package repo

import (
	"context"

	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/orm"
	"gopherwallet.com/pkg/xerr"
	"gorm.io/gorm"
)

type txKey struct{}

// Repo 所有表共用一个 gorm 句柄，事务通过 ctx 传递
type Repo struct {
	db *gorm.DB
}

var (
	_ domain.TxManager        = (*Repo)(nil)
	_ domain.WalletStore      = (*Repo)(nil)
	_ domain.TokenStore       = (*Repo)(nil)
	_ domain.BalanceStore     = (*Repo)(nil)
	_ domain.TransactionStore = (*Repo)(nil)
	_ domain.AuditStore       = (*Repo)(nil)
)

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

// Migrate 建表与唯一索引
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Wallet{},
		&domain.Token{},
		&domain.WalletBalance{},
		&domain.Transaction{},
		&domain.AuditLog{},
	)
}

// Transaction 已在事务中时复用外层事务（gorm 嵌套事务走 savepoint）
func (r *Repo) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return r.getDb(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

// dbErr 唯一键冲突 -> Conflict，其余 -> PersistenceFailure
func dbErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if orm.IsDuplicateKey(err) {
		return xerr.Wrap(err, xerr.Conflict, msg+": already exists")
	}
	return xerr.Wrap(err, xerr.PersistenceFailure, msg)
}

// findErr 查无记录 -> NotFound
func findErr(err error, what string) error {
	if orm.IsNotFound(err) {
		return xerr.Wrap(err, xerr.NotFound, what+" not found")
	}
	return dbErr(err, "query "+what)
}
