package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	userRepo "gopherwallet.com/internal/user/repo"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/internal/wallet/keyvault"
	"gopherwallet.com/internal/wallet/repo"
	"gopherwallet.com/internal/wallet/testkit"
	"gopherwallet.com/pkg/xerr"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	reg   *Registry
	audit *testkit.AuditRecorder
	alice int64
	bob   int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testkit.NewDB(t)
	f := &fixture{db: db, audit: &testkit.AuditRecorder{}}
	f.alice = testkit.SeedUser(t, db, "alice@example.com")
	f.bob = testkit.SeedUser(t, db, "bob@example.com")
	f.reg = New(repo.New(db), userRepo.New(db), keyvault.New(keyvault.WithScrypt(1<<10, 8, 1)), f.audit)
	return f
}

func (f *fixture) walletCount(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&domain.Wallet{}).Count(&n).Error)
	return n
}

func TestCreateWallet_Plaintext(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.reg.CreateWallet(ctx, f.alice, "BEP20", "")
	require.NoError(t, err)
	assert.Len(t, created.PrivateKey, 64)
	assert.Len(t, strings.Fields(created.Mnemonic), 24)
	assert.Equal(t, domain.NetworkBEP20, created.Wallet.Network)
	assert.True(t, created.Wallet.HasPlainKey())
	assert.False(t, created.Wallet.HasEncryptedKey())
	assert.True(t, f.reg.MatchesKey(created.Wallet, created.PrivateKey))

	stored, err := f.reg.GetWallet(ctx, created.Wallet.WalletID)
	require.NoError(t, err)
	assert.Equal(t, created.Wallet.Address, stored.Address)

	key, err := f.reg.GetPrivateKey(ctx, stored.WalletID, "")
	require.NoError(t, err)
	assert.Equal(t, created.PrivateKey, key)
	assert.Equal(t, []string{domain.AuditWalletCreated}, f.audit.Actions())
}

func TestCreateWallet_Errors(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.reg.CreateWallet(ctx, 404, "bep20", "")
	assert.True(t, xerr.IsKind(err, xerr.NotFound))

	_, err = f.reg.CreateWallet(ctx, f.alice, "dogecoin", "")
	assert.True(t, xerr.IsKind(err, xerr.InvalidArgument))
	assert.Equal(t, int64(0), f.walletCount(t))
}

// 同一用户同一链重复创建返回 Conflict，且不多建钱包
func TestCreateWallet_DuplicateUserNetwork(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.reg.CreateWallet(ctx, f.alice, "bep20", "")
	require.NoError(t, err)
	_, err = f.reg.CreateWallet(ctx, f.alice, "bep20", "pw")
	assert.True(t, xerr.IsKind(err, xerr.Conflict))
	assert.Equal(t, int64(1), f.walletCount(t))

	_, err = f.reg.CreateWallet(ctx, f.alice, "stellar", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.walletCount(t))
}

func TestCreateWallet_AllNetworks(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	v := keyvault.New()
	for _, n := range domain.SupportedNetworks {
		created, err := f.reg.CreateWallet(ctx, f.bob, string(n), "")
		require.NoError(t, err, n)
		assert.True(t, v.ValidateAddress(created.Wallet.Address, n), n)
	}
}

func TestEncryptedWallet_GetPrivateKey(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.reg.CreateWallet(ctx, f.alice, "ethereum", "s3cret")
	require.NoError(t, err)
	assert.True(t, created.Wallet.HasEncryptedKey())
	assert.False(t, created.Wallet.HasPlainKey())

	key, err := f.reg.GetPrivateKey(ctx, created.Wallet.WalletID, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, created.PrivateKey, key)

	_, err = f.reg.GetPrivateKey(ctx, created.Wallet.WalletID, "wrong")
	assert.True(t, xerr.IsKind(err, xerr.BadPassword))
	_, err = f.reg.GetPrivateKey(ctx, created.Wallet.WalletID, "")
	assert.True(t, xerr.IsKind(err, xerr.BadPassword))

	_, err = f.reg.GetPrivateKey(ctx, "missing", "s3cret")
	assert.True(t, xerr.IsKind(err, xerr.NotFound))
}

func TestGetPrivateKeyForUser_Ownership(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	created, err := f.reg.CreateWallet(ctx, f.alice, "bep20", "")
	require.NoError(t, err)

	_, err = f.reg.GetPrivateKeyForUser(ctx, f.bob, created.Wallet.WalletID, "")
	assert.True(t, xerr.IsKind(err, xerr.Forbidden))

	key, err := f.reg.GetPrivateKeyForUser(ctx, f.alice, created.Wallet.WalletID, "")
	require.NoError(t, err)
	assert.Equal(t, created.PrivateKey, key)
	assert.Contains(t, f.audit.Actions(), domain.AuditPrivateKeyViewed)
}

func TestRemovePrivateKey_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	created, err := f.reg.CreateWallet(ctx, f.alice, "bep20", "pw")
	require.NoError(t, err)
	id := created.Wallet.WalletID

	for i := 0; i < 2; i++ {
		w, err := f.reg.RemovePrivateKey(ctx, id)
		require.NoError(t, err)
		assert.False(t, w.HasPrivateKey())

		_, err = f.reg.GetPrivateKey(ctx, id, "pw")
		assert.True(t, xerr.IsKind(err, xerr.KeyUnavailable), "第 %d 次", i+1)
	}

	stored, err := f.reg.GetWallet(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored.PrivateKey)
	assert.Nil(t, stored.EncryptedPrivateKey)

	_, err = f.reg.UpdatePassword(ctx, id, "pw", "new")
	assert.True(t, xerr.IsKind(err, xerr.KeyUnavailable))
}

func TestUpdatePassword_Encrypted(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	created, err := f.reg.CreateWallet(ctx, f.alice, "solana", "old-pw")
	require.NoError(t, err)
	id := created.Wallet.WalletID
	before := *created.Wallet.EncryptedPrivateKey

	_, err = f.reg.UpdatePassword(ctx, id, "bad", "new-pw")
	assert.True(t, xerr.IsKind(err, xerr.BadPassword))
	stored, _ := f.reg.GetWallet(ctx, id)
	assert.Equal(t, before, *stored.EncryptedPrivateKey, "旧密码错误时密文不变")

	_, err = f.reg.UpdatePassword(ctx, id, "old-pw", "")
	assert.True(t, xerr.IsKind(err, xerr.InvalidArgument))

	w, err := f.reg.UpdatePassword(ctx, id, "old-pw", "new-pw")
	require.NoError(t, err)
	assert.NotEqual(t, before, *w.EncryptedPrivateKey)

	key, err := f.reg.GetPrivateKey(ctx, id, "new-pw")
	require.NoError(t, err)
	assert.Equal(t, created.PrivateKey, key)
	_, err = f.reg.GetPrivateKey(ctx, id, "old-pw")
	assert.True(t, xerr.IsKind(err, xerr.BadPassword))
	assert.Contains(t, f.audit.Actions(), domain.AuditPasswordUpdated)
}

func TestUpdatePassword_PlaintextGetsProtected(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	created, err := f.reg.CreateWallet(ctx, f.alice, "bitcoin", "")
	require.NoError(t, err)

	_, err = f.reg.UpdatePassword(ctx, created.Wallet.WalletID, "", "fresh")
	require.NoError(t, err)

	stored, err := f.reg.GetWallet(ctx, created.Wallet.WalletID)
	require.NoError(t, err)
	assert.Nil(t, stored.PrivateKey)
	require.NotNil(t, stored.EncryptedPrivateKey)

	key, err := f.reg.GetPrivateKey(ctx, created.Wallet.WalletID, "fresh")
	require.NoError(t, err)
	assert.Equal(t, created.PrivateKey, key)
}

func TestRecoverWallet(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	created, err := f.reg.CreateWallet(ctx, f.alice, "bep20", "")
	require.NoError(t, err)

	_, err = f.reg.RecoverWallet(ctx, "xyz", "bep20", f.bob)
	assert.True(t, xerr.IsKind(err, xerr.InvalidKey))

	// 地址已登记
	_, err = f.reg.RecoverWallet(ctx, created.PrivateKey, "bep20", f.bob)
	assert.True(t, xerr.IsKind(err, xerr.Conflict))

	// 同一私钥在另一条 EVM 链上派生出相同地址
	w, err := f.reg.RecoverWallet(ctx, "0x"+strings.ToUpper(created.PrivateKey), "ethereum", f.bob)
	require.NoError(t, err)
	assert.Equal(t, created.Wallet.Address, w.Address)
	assert.Equal(t, created.PrivateKey, *w.PrivateKey)

	_, err = f.reg.RecoverWallet(ctx, created.PrivateKey, "stellar", 404)
	assert.True(t, xerr.IsKind(err, xerr.NotFound))
	assert.Contains(t, f.audit.Actions(), domain.AuditWalletRecovered)
}

func TestRecoverWalletFromMnemonic(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	created, err := f.reg.CreateWallet(ctx, f.alice, "stellar", "pw")
	require.NoError(t, err)

	_, err = f.reg.RemovePrivateKey(ctx, created.Wallet.WalletID)
	require.NoError(t, err)

	_, err = f.reg.RecoverWalletFromMnemonic(ctx, "not a real phrase", "stellar", f.bob)
	assert.True(t, xerr.IsKind(err, xerr.InvalidKey))

	w, err := f.reg.RecoverWalletFromMnemonic(ctx, created.Mnemonic, "solana", f.bob)
	require.NoError(t, err)
	assert.True(t, f.reg.MatchesKey(w, created.PrivateKey))
	assert.False(t, f.reg.MatchesKey(created.Wallet, strings.Repeat("1", 64)))
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	bep, err := f.reg.CreateWallet(ctx, f.alice, "bep20", "")
	require.NoError(t, err)
	_, err = f.reg.CreateWallet(ctx, f.alice, "stellar", "")
	require.NoError(t, err)

	all, err := f.reg.ListByUser(ctx, f.alice, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := f.reg.ListByOwnerEmail(ctx, "ALICE@example.com", "bep20")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, bep.Wallet.WalletID, only[0].WalletID)

	_, err = f.reg.ListByOwnerEmail(ctx, "nobody@example.com", "")
	assert.True(t, xerr.IsKind(err, xerr.NotFound))

	_, err = f.reg.ListByUser(ctx, f.alice, "dogecoin")
	assert.True(t, xerr.IsKind(err, xerr.InvalidArgument))

	found, err := f.reg.FindByAddress(ctx, strings.ToLower(bep.Wallet.Address), domain.NetworkBEP20)
	require.NoError(t, err)
	assert.Equal(t, bep.Wallet.WalletID, found.WalletID)

	_, err = f.reg.FindByAddress(ctx, bep.Wallet.Address, domain.NetworkEthereum)
	assert.True(t, xerr.IsKind(err, xerr.NotFound))
}
