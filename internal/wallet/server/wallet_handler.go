package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/common"
	"gopherwallet.com/pkg/xerr"
)

type createWalletReq struct {
	Network  string `json:"network" binding:"required"`
	Password string `json:"password"`
}

type recoverWalletReq struct {
	Network    string `json:"network" binding:"required"`
	PrivateKey string `json:"private_key"`
	Mnemonic   string `json:"mnemonic"`
}

type privateKeyReq struct {
	Password string `json:"password"`
}

type updatePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" binding:"required"`
}

type validateAddressReq struct {
	Address string `json:"address" binding:"required"`
	Network string `json:"network" binding:"required"`
}

// walletView 对外视图，永远不带私钥字段
type walletView struct {
	*domain.Wallet
	HasPrivateKey bool `json:"has_private_key"`
	Encrypted     bool `json:"encrypted"`
}

func viewOf(w *domain.Wallet) walletView {
	return walletView{Wallet: w, HasPrivateKey: w.HasPrivateKey(), Encrypted: w.HasEncryptedKey()}
}

// publicWallet 按邮箱搜索时只暴露收款需要的信息
type publicWallet struct {
	WalletID string         `json:"wallet_id"`
	Network  domain.Network `json:"network"`
	Address  string         `json:"address"`
}

// ownedWallet 钱包不属于调用方时返回 Forbidden
func (h *Handler) ownedWallet(ctx context.Context, userID int64, walletID string) (*domain.Wallet, error) {
	w, err := h.registry.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, xerr.New(xerr.Forbidden, "wallet does not belong to caller")
	}
	return w, nil
}

func (h *Handler) CreateWallet(c *gin.Context) {
	var req createWalletReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "network is required")
		return
	}
	created, err := h.registry.CreateWallet(c.Request.Context(), callerID(c), req.Network, req.Password)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Created(c, gin.H{
		"wallet":      viewOf(created.Wallet),
		"private_key": created.PrivateKey,
		"mnemonic":    created.Mnemonic,
	})
}

func (h *Handler) RecoverWallet(c *gin.Context) {
	var req recoverWalletReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "network is required")
		return
	}
	if (req.PrivateKey == "") == (req.Mnemonic == "") {
		common.Error(c, xerr.New(xerr.InvalidArgument, "exactly one of private_key or mnemonic is required"))
		return
	}

	ctx := c.Request.Context()
	var (
		w   *domain.Wallet
		err error
	)
	if req.PrivateKey != "" {
		w, err = h.registry.RecoverWallet(ctx, req.PrivateKey, req.Network, callerID(c))
	} else {
		w, err = h.registry.RecoverWalletFromMnemonic(ctx, req.Mnemonic, req.Network, callerID(c))
	}
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Created(c, viewOf(w))
}

func (h *Handler) ListWallets(c *gin.Context) {
	list, err := h.registry.ListByUser(c.Request.Context(), callerID(c), c.Query("network"))
	if err != nil {
		common.Error(c, err)
		return
	}
	out := make([]walletView, 0, len(list))
	for _, w := range list {
		out = append(out, viewOf(w))
	}
	common.Success(c, out)
}

func (h *Handler) GetWallet(c *gin.Context) {
	w, err := h.ownedWallet(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, viewOf(w))
}

func (h *Handler) GetPrivateKey(c *gin.Context) {
	var req privateKeyReq
	// body 可以为空，未加密钱包不需要密码
	_ = c.ShouldBindJSON(&req)
	key, err := h.registry.GetPrivateKeyForUser(c.Request.Context(), callerID(c), c.Param("id"), req.Password)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, gin.H{"wallet_id": c.Param("id"), "private_key": key})
}

func (h *Handler) RemovePrivateKey(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.ownedWallet(ctx, callerID(c), c.Param("id")); err != nil {
		common.Error(c, err)
		return
	}
	w, err := h.registry.RemovePrivateKey(ctx, c.Param("id"))
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, viewOf(w))
}

func (h *Handler) UpdatePassword(c *gin.Context) {
	var req updatePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "new_password is required")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.ownedWallet(ctx, callerID(c), c.Param("id")); err != nil {
		common.Error(c, err)
		return
	}
	w, err := h.registry.UpdatePassword(ctx, c.Param("id"), req.OldPassword, req.NewPassword)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, viewOf(w))
}

func (h *Handler) SearchWallets(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		common.BadRequest(c, "email is required")
		return
	}
	list, err := h.registry.ListByOwnerEmail(c.Request.Context(), email, c.Query("network"))
	if err != nil {
		common.Error(c, err)
		return
	}
	out := make([]publicWallet, 0, len(list))
	for _, w := range list {
		out = append(out, publicWallet{WalletID: w.WalletID, Network: w.Network, Address: w.Address})
	}
	common.Success(c, out)
}

func (h *Handler) ValidateAddress(c *gin.Context) {
	var req validateAddressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "address and network are required")
		return
	}
	n := domain.ParseNetwork(req.Network)
	valid := h.vault.ValidateAddress(req.Address, n)
	resp := gin.H{"address": req.Address, "network": n, "valid": valid}
	if valid {
		resp["normalized"] = h.vault.NormalizeAddress(req.Address, n)
	}
	common.Success(c, resp)
}
