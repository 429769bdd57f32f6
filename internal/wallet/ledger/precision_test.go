package ledger

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/internal/wallet/repo"
	"gopherwallet.com/internal/wallet/testkit"
	"gopherwallet.com/pkg/xerr"
)

// memStore 以 decimal 原样保存余额，用来验证账本自身的运算不丢精度
type memStore struct {
	mu   sync.Mutex
	rows map[string]*domain.WalletBalance
}

func newMemStore() *memStore { return &memStore{rows: map[string]*domain.WalletBalance{}} }

func (m *memStore) Transaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

func (m *memStore) get(walletID string, tokenID uint64) *domain.WalletBalance {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.rows[lockKey(walletID, tokenID)]; ok {
		cp := *b
		return &cp
	}
	return nil
}

func (m *memStore) GetBalance(_ context.Context, walletID string, tokenID uint64) (*domain.WalletBalance, error) {
	return m.get(walletID, tokenID), nil
}

func (m *memStore) LockBalance(_ context.Context, walletID string, tokenID uint64) (*domain.WalletBalance, error) {
	return m.get(walletID, tokenID), nil
}

func (m *memStore) UpsertBalance(_ context.Context, walletID string, tokenID uint64, value decimal.Decimal) (*domain.WalletBalance, error) {
	m.mu.Lock()
	m.rows[lockKey(walletID, tokenID)] = &domain.WalletBalance{WalletID: walletID, TokenID: tokenID, Balance: value, LastUpdated: time.Now()}
	m.mu.Unlock()
	return m.get(walletID, tokenID), nil
}

func (m *memStore) InsertBalanceIfAbsent(_ context.Context, walletID string, tokenID uint64, initial decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := lockKey(walletID, tokenID)
	if _, ok := m.rows[k]; !ok {
		m.rows[k] = &domain.WalletBalance{WalletID: walletID, TokenID: tokenID, Balance: initial, LastUpdated: time.Now()}
	}
	return nil
}

func (m *memStore) ListBalances(_ context.Context, walletID string, nonZeroOnly bool) ([]*domain.WalletBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.WalletBalance
	for _, b := range m.rows {
		if b.WalletID == walletID && (!nonZeroOnly || b.Balance.IsPositive()) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Balance.GreaterThan(out[j].Balance) })
	return out, nil
}

func (m *memStore) SumBalanceByToken(_ context.Context, tokenID uint64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, b := range m.rows {
		if b.TokenID == tokenID {
			total = total.Add(b.Balance)
		}
	}
	return total, nil
}

func (m *memStore) TouchBalance(_ context.Context, walletID string, tokenID uint64) error {
	if m.get(walletID, tokenID) == nil {
		return xerr.New(xerr.NotFound, "balance not found")
	}
	return nil
}

// exactArithmetic 18 位小数的加减必须逐位精确
func exactArithmetic(t *testing.T, l *Ledger) {
	t.Helper()
	ctx := context.Background()
	w1, w2 := uuid.NewString(), uuid.NewString()

	_, err := l.SetBalance(ctx, w1, 1, d("1.000000000000000001"))
	require.NoError(t, err)
	b, err := l.AddToBalance(ctx, w1, 1, d("0.000000000000000001"))
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(d("1.000000000000000002")), b.Balance.String())

	require.NoError(t, l.Debit(ctx, w1, 1, d("0.000000000000000002")))
	require.NoError(t, l.Credit(ctx, w2, 1, d("0.000000000000000002")))
	got, err := l.GetBalance(ctx, w1, 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(d("1")), got.String())
	got, err = l.GetBalance(ctx, w2, 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.000000000000000002")), got.String())

	b, err = l.SubtractFromBalance(ctx, w1, 1, d("0.999999999999999999"))
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(d("0.000000000000000001")), b.Balance.String())
}

func TestLedger_ExactEighteenDecimals(t *testing.T) {
	exactArithmetic(t, New(newMemStore(), nil))
}

func TestLedger_ExactEighteenDecimals_MySQL(t *testing.T) {
	exactArithmetic(t, New(repo.New(testkit.NewMySQLDB(t)), nil))
}

func TestLedger_RejectsBeyondColumnScale(t *testing.T) {
	ctx := context.Background()
	l := New(newMemStore(), nil)
	tooFine := d("0.0000000000000000001")

	_, err := l.SetBalance(ctx, "w-1", 1, tooFine)
	assert.True(t, xerr.IsKind(err, xerr.InvalidAmount))
	_, err = l.AddToBalance(ctx, "w-1", 1, tooFine)
	assert.True(t, xerr.IsKind(err, xerr.InvalidAmount))
	_, err = l.InitializeBalance(ctx, "w-1", 1, tooFine)
	assert.True(t, xerr.IsKind(err, xerr.InvalidAmount))
	assert.True(t, xerr.IsKind(l.Credit(ctx, "w-1", 1, tooFine), xerr.InvalidAmount))
	assert.True(t, xerr.IsKind(l.Debit(ctx, "w-1", 1, tooFine), xerr.InvalidAmount))

	bal, err := l.GetBalance(ctx, "w-1", 1)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}
