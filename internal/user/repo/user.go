package repo

import (
	"context"
	"strings"

	"gopherwallet.com/internal/user/domain"
	walletDomain "gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/orm"
	"gopherwallet.com/pkg/xerr"
	"gorm.io/gorm"
)

// Repo 实现钱包服务需要的用户查询
type Repo struct {
	db *gorm.DB
}

var _ walletDomain.UserLookup = (*Repo)(nil)

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.User{})
}

// Create 仅用于初始化数据与测试
func (r *Repo) Create(ctx context.Context, user *domain.User) error {
	user.Email = normalizeEmail(user.Email)
	err := r.db.WithContext(ctx).Create(user).Error
	if orm.IsDuplicateKey(err) {
		return xerr.Wrap(err, xerr.Conflict, "email already exists")
	}
	if err != nil {
		return xerr.Wrap(err, xerr.PersistenceFailure, "create user")
	}
	return nil
}

// FindUserByID 禁用的用户视为不存在
func (r *Repo) FindUserByID(ctx context.Context, id int64) (*walletDomain.Owner, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *Repo) FindUserByEmail(ctx context.Context, email string) (*walletDomain.Owner, error) {
	return r.findOne(ctx, "email = ?", normalizeEmail(email))
}

func (r *Repo) findOne(ctx context.Context, query string, arg interface{}) (*walletDomain.Owner, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&u).Error
	if orm.IsNotFound(err) {
		return nil, xerr.New(xerr.NotFound, "user not found")
	}
	if err != nil {
		return nil, xerr.Wrap(err, xerr.PersistenceFailure, "get user")
	}
	if !u.Enabled() {
		return nil, xerr.New(xerr.NotFound, "user not found")
	}
	return &walletDomain.Owner{ID: u.ID, Email: u.Email, Name: u.Name}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
