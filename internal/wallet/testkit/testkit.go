// Package testkit 单元测试共用的 sqlite 数据库与数据构造
package testkit

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	userDomain "gopherwallet.com/internal/user/domain"
	userRepo "gopherwallet.com/internal/user/repo"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/internal/wallet/repo"
	"gopherwallet.com/pkg/orm"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// NewDB 内存库只保留一个连接，否则每个连接都是一个独立的空库
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repo.Migrate(db))
	require.NoError(t, userRepo.Migrate(db))
	return db
}

func SeedUser(t testing.TB, db *gorm.DB, email string) int64 {
	t.Helper()
	u := &userDomain.User{Email: email, Name: email, Status: userDomain.UserStatusEnabled}
	require.NoError(t, userRepo.New(db).Create(context.Background(), u))
	return u.ID
}

func SeedToken(t testing.TB, r *repo.Repo, symbol string, network domain.Network, active bool) *domain.Token {
	t.Helper()
	tk := &domain.Token{Symbol: symbol, Network: network, Name: symbol, Decimals: 18, IsActive: active}
	require.NoError(t, r.UpsertToken(context.Background(), tk))
	return tk
}

// AuditRecorder 内存审计，断言用
type AuditRecorder struct {
	mu      sync.Mutex
	Entries []domain.AuditEntry
}

func (a *AuditRecorder) Record(_ context.Context, e domain.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Entries = append(a.Entries, e)
	return nil
}

func (a *AuditRecorder) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, e.Action)
	}
	return out
}

// NewMySQLDB 用 TEST_MYSQL_DSN 连真实 MySQL，未配置或连不上时跳过
// sqlite 把 decimal 列存成 REAL，18 位小数的精确性只能在这里验证
func NewMySQLDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN 未设置，跳过")
	}
	db, err := orm.NewMySQL(&orm.Config{DSN: dsn, MaxIdle: 2, MaxOpen: 4, MaxLifetime: 60, LogLevel: "silent"})
	if err != nil {
		t.Skipf("mysql 不可用，跳过: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		t.Skipf("mysql 不可用，跳过: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.Migrate(db))
	return db
}
