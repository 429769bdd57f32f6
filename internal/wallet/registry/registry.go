// Package registry 钱包登记：创建、恢复、私钥托管与查询
package registry

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/internal/wallet/keyvault"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/xerr"
)

type Registry struct {
	store domain.WalletStore
	users domain.UserLookup
	vault *keyvault.Vault
	audit domain.AuditSink
}

func New(store domain.WalletStore, users domain.UserLookup, vault *keyvault.Vault, audit domain.AuditSink) *Registry {
	return &Registry{store: store, users: users, vault: vault, audit: audit}
}

// Created 明文私钥与助记词只在这里出现一次
type Created struct {
	Wallet     *domain.Wallet `json:"wallet"`
	PrivateKey string         `json:"private_key"`
	Mnemonic   string         `json:"mnemonic"`
}

func parseNetwork(s string) (domain.Network, error) {
	n := domain.ParseNetwork(s)
	if !n.Supported() {
		return "", xerr.Newf(xerr.InvalidArgument, "unsupported network %q", s)
	}
	return n, nil
}

// cleanKey 允许 0x 前缀与大写，统一为小写 64 位 hex
func cleanKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X")
	return strings.ToLower(key)
}

func (r *Registry) CreateWallet(ctx context.Context, userID int64, network, password string) (*Created, error) {
	n, err := parseNetwork(network)
	if err != nil {
		return nil, err
	}
	if _, err := r.users.FindUserByID(ctx, userID); err != nil {
		return nil, err
	}
	if err := r.ensureNoWallet(ctx, userID, n); err != nil {
		return nil, err
	}

	kp, err := r.vault.GenerateKeyPair(n)
	if err != nil {
		return nil, err
	}
	if !r.vault.ValidateAddress(kp.Address, n) {
		return nil, xerr.Newf(xerr.InvalidAddress, "generated address is not valid for %s", n)
	}
	mnemonic, err := r.vault.KeyToMnemonic(kp.PrivateKey)
	if err != nil {
		return nil, err
	}

	w := &domain.Wallet{
		WalletID:  r.vault.GenerateWalletID(),
		UserID:    userID,
		Network:   n,
		Address:   kp.Address,
		PublicKey: kp.PublicKey,
	}
	if password != "" {
		enc, err := r.vault.EncryptPrivateKey(kp.PrivateKey, password)
		if err != nil {
			return nil, err
		}
		w.EncryptedPrivateKey = &enc
	} else {
		key := kp.PrivateKey
		w.PrivateKey = &key
	}

	if err := r.store.CreateWallet(ctx, w); err != nil {
		return nil, err
	}
	logger.Info(ctx, "✅ 钱包创建成功",
		zap.String("wallet_id", w.WalletID),
		zap.Int64("user_id", userID),
		zap.String("network", n.String()),
		zap.Bool("encrypted", w.HasEncryptedKey()))
	r.record(ctx, &userID, domain.AuditWalletCreated, map[string]any{
		"wallet_id": w.WalletID,
		"network":   n.String(),
		"address":   w.Address,
		"encrypted": w.HasEncryptedKey(),
	})
	return &Created{Wallet: w, PrivateKey: kp.PrivateKey, Mnemonic: mnemonic}, nil
}

// ensureNoWallet 提前给出友好的 Conflict，并发竞争由唯一索引兜底
func (r *Registry) ensureNoWallet(ctx context.Context, userID int64, n domain.Network) error {
	_, err := r.store.FindWalletByUserNetwork(ctx, userID, n)
	if err == nil {
		return xerr.Newf(xerr.Conflict, "user already has a %s wallet", n)
	}
	if !xerr.IsKind(err, xerr.NotFound) {
		return err
	}
	return nil
}

// RecoverWallet 按私钥重新登记，明文保存
func (r *Registry) RecoverWallet(ctx context.Context, privateKey, network string, userID int64) (*domain.Wallet, error) {
	return r.recover(ctx, privateKey, network, userID, "private_key")
}

func (r *Registry) RecoverWalletFromMnemonic(ctx context.Context, phrase, network string, userID int64) (*domain.Wallet, error) {
	key, err := r.vault.MnemonicToKey(phrase)
	if err != nil {
		return nil, err
	}
	return r.recover(ctx, key, network, userID, "mnemonic")
}

func (r *Registry) recover(ctx context.Context, privateKey, network string, userID int64, method string) (*domain.Wallet, error) {
	key := cleanKey(privateKey)
	if !r.vault.ValidatePrivateKey(key) {
		return nil, xerr.New(xerr.InvalidKey, "private key must be 64 hex characters")
	}
	n, err := parseNetwork(network)
	if err != nil {
		return nil, err
	}
	if _, err := r.users.FindUserByID(ctx, userID); err != nil {
		return nil, err
	}
	pub, addr, err := r.vault.DeriveAddress(key, n)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.FindWalletByAddress(ctx, addr, n); err == nil {
		return nil, xerr.Newf(xerr.Conflict, "address already registered on %s", n)
	} else if !xerr.IsKind(err, xerr.NotFound) {
		return nil, err
	}
	if err := r.ensureNoWallet(ctx, userID, n); err != nil {
		return nil, err
	}

	w := &domain.Wallet{
		WalletID:   r.vault.GenerateWalletID(),
		UserID:     userID,
		Network:    n,
		Address:    addr,
		PublicKey:  pub,
		PrivateKey: &key,
	}
	if err := r.store.CreateWallet(ctx, w); err != nil {
		return nil, err
	}
	logger.Info(ctx, "♻️ 钱包恢复成功",
		zap.String("wallet_id", w.WalletID),
		zap.Int64("user_id", userID),
		zap.String("network", n.String()),
		zap.String("method", method))
	r.record(ctx, &userID, domain.AuditWalletRecovered, map[string]any{
		"wallet_id": w.WalletID,
		"network":   n.String(),
		"address":   addr,
		"method":    method,
	})
	return w, nil
}

// GetPrivateKey 明文优先，否则用密码解密；两者都没有返回 KeyUnavailable
func (r *Registry) GetPrivateKey(ctx context.Context, walletID, password string) (string, error) {
	w, err := r.store.GetWallet(ctx, walletID)
	if err != nil {
		return "", err
	}
	return r.unlock(w, password)
}

func (r *Registry) unlock(w *domain.Wallet, password string) (string, error) {
	switch {
	case w.HasPlainKey():
		return *w.PrivateKey, nil
	case w.HasEncryptedKey():
		if password == "" {
			return "", xerr.New(xerr.BadPassword, "password is required to unlock this wallet")
		}
		return r.vault.DecryptPrivateKey(*w.EncryptedPrivateKey, password)
	default:
		return "", xerr.New(xerr.KeyUnavailable, "private key is not available for this wallet")
	}
}

// GetPrivateKeyForUser 只允许钱包所有者查看
func (r *Registry) GetPrivateKeyForUser(ctx context.Context, userID int64, walletID, password string) (string, error) {
	w, err := r.store.GetWallet(ctx, walletID)
	if err != nil {
		return "", err
	}
	if w.UserID != userID {
		return "", xerr.New(xerr.Forbidden, "wallet does not belong to user")
	}
	key, err := r.unlock(w, password)
	if err != nil {
		logger.Warn(ctx, "⚠️ 私钥查看失败",
			zap.String("wallet_id", walletID),
			zap.String("kind", string(xerr.KindOf(err))))
		return "", err
	}
	r.record(ctx, &userID, domain.AuditPrivateKeyViewed, map[string]any{"wallet_id": walletID})
	return key, nil
}

// RemovePrivateKey 不可逆，重复调用结果相同
func (r *Registry) RemovePrivateKey(ctx context.Context, walletID string) (*domain.Wallet, error) {
	w, err := r.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	hadKey := w.HasPrivateKey()
	if hadKey {
		if err := r.store.ClearPrivateKey(ctx, walletID); err != nil {
			return nil, err
		}
		w.PrivateKey, w.EncryptedPrivateKey = nil, nil
	}
	r.record(ctx, &w.UserID, domain.AuditPrivateKeyRemoved, map[string]any{
		"wallet_id": walletID,
		"had_key":   hadKey,
	})
	return w, nil
}

// UpdatePassword 先在内存里验证新密文可解出原私钥，再 CAS 替换旧密文
// 只有明文私钥的钱包会被加密保护，明文同时清除
func (r *Registry) UpdatePassword(ctx context.Context, walletID, oldPassword, newPassword string) (*domain.Wallet, error) {
	if newPassword == "" {
		return nil, xerr.New(xerr.InvalidArgument, "new password is required")
	}
	w, err := r.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	var key string
	switch {
	case w.HasEncryptedKey():
		if key, err = r.vault.DecryptPrivateKey(*w.EncryptedPrivateKey, oldPassword); err != nil {
			return nil, err
		}
	case w.HasPlainKey():
		key = *w.PrivateKey
	default:
		return nil, xerr.New(xerr.KeyUnavailable, "private key is not available for this wallet")
	}

	newCipher, err := r.vault.EncryptPrivateKey(key, newPassword)
	if err != nil {
		return nil, err
	}
	if check, err := r.vault.DecryptPrivateKey(newCipher, newPassword); err != nil || check != key {
		return nil, xerr.New(xerr.Internal, "re-encrypted key failed verification")
	}

	var oldCipher *string
	if w.HasEncryptedKey() {
		oldCipher = w.EncryptedPrivateKey
	}
	swapped, err := r.store.SwapEncryptedKey(ctx, walletID, oldCipher, newCipher)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, xerr.New(xerr.Conflict, "wallet key changed concurrently, retry")
	}
	w.EncryptedPrivateKey = &newCipher
	w.PrivateKey = nil
	w.UpdatedAt = time.Now()

	logger.Info(ctx, "🔐 钱包密码已更新", zap.String("wallet_id", walletID))
	r.record(ctx, &w.UserID, domain.AuditPasswordUpdated, map[string]any{"wallet_id": walletID})
	return w, nil
}

func (r *Registry) GetWallet(ctx context.Context, walletID string) (*domain.Wallet, error) {
	return r.store.GetWallet(ctx, walletID)
}

func (r *Registry) FindByAddress(ctx context.Context, address string, network domain.Network) (*domain.Wallet, error) {
	return r.store.FindWalletByAddress(ctx, r.vault.NormalizeAddress(strings.TrimSpace(address), network), network)
}

// ListByUser network 为空时返回全部链
func (r *Registry) ListByUser(ctx context.Context, userID int64, network string) ([]*domain.Wallet, error) {
	var n domain.Network
	if network != "" {
		var err error
		if n, err = parseNetwork(network); err != nil {
			return nil, err
		}
	}
	return r.store.ListWalletsByUser(ctx, userID, n)
}

func (r *Registry) ListByOwnerEmail(ctx context.Context, email, network string) ([]*domain.Wallet, error) {
	owner, err := r.users.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return r.ListByUser(ctx, owner.ID, network)
}

// MatchesKey 私钥能否派生出该钱包地址
func (r *Registry) MatchesKey(w *domain.Wallet, privateKey string) bool {
	_, addr, err := r.vault.DeriveAddress(cleanKey(privateKey), w.Network)
	return err == nil && addr == w.Address
}

func (r *Registry) record(ctx context.Context, userID *int64, action string, meta map[string]any) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, domain.AuditEntry{UserID: userID, Action: action, Metadata: meta, CreatedAt: time.Now()}); err != nil {
		logger.Warn(ctx, "⚠️ 审计写入失败", zap.String("action", action), zap.Error(err))
	}
}
