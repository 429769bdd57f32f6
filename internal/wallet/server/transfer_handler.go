package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/internal/wallet/transfer"
	"gopherwallet.com/pkg/common"
	"gopherwallet.com/pkg/xerr"
)

type transferReq struct {
	FromWalletID string `json:"from_wallet_id" binding:"required"`
	ToAddress    string `json:"to_address"`
	ToEmail      string `json:"to_email"`
	Amount       string `json:"amount" binding:"required"`
	TokenSymbol  string `json:"token_symbol" binding:"required"`
	Network      string `json:"network" binding:"required"`
	PrivateKey   string `json:"private_key"`
	Password     string `json:"password"`
	Memo         string `json:"memo"`
}

type initializeBalanceReq struct {
	WalletID       string `json:"wallet_id" binding:"required"`
	TokenSymbol    string `json:"token_symbol" binding:"required"`
	Network        string `json:"network" binding:"required"`
	InitialBalance string `json:"initial_balance"`
}

// parseAmount 金额一律用字符串传输，避免 float 精度问题
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, xerr.Newf(xerr.InvalidAmount, "invalid amount %q", s)
	}
	if !domain.WithinScale(d, domain.MaxScale) {
		return decimal.Zero, xerr.Newf(xerr.InvalidAmount, "amount %q has more than %d decimal places", s, domain.MaxScale)
	}
	return d, nil
}

// Transfer 结算失败不算错误：200 + status=failed
func (h *Handler) Transfer(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "from_wallet_id, amount, token_symbol and network are required")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		common.Error(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.ownedWallet(ctx, callerID(c), req.FromWalletID); err != nil {
		common.Error(c, err)
		return
	}

	res, err := h.engine.Transfer(ctx, transfer.Request{
		FromWalletID: req.FromWalletID,
		ToAddress:    req.ToAddress,
		ToEmail:      req.ToEmail,
		Amount:       amount,
		TokenSymbol:  req.TokenSymbol,
		Network:      req.Network,
		PrivateKey:   req.PrivateKey,
		Password:     req.Password,
		Memo:         req.Memo,
	})
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, res)
}

func (h *Handler) History(c *gin.Context) {
	ctx := c.Request.Context()
	walletID := c.Param("walletId")
	if _, err := h.ownedWallet(ctx, callerID(c), walletID); err != nil {
		common.Error(c, err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			common.BadRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}
	list, err := h.engine.History(ctx, walletID, limit)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, list)
}

// GetTransaction 付款方和收款方钱包的主人都能查看
func (h *Handler) GetTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	tx, err := h.engine.GetByHash(ctx, c.Param("hash"))
	if err != nil {
		common.Error(c, err)
		return
	}
	uid := callerID(c)
	if _, err := h.ownedWallet(ctx, uid, tx.WalletID); err != nil {
		if tx.ToWalletID == nil {
			common.Error(c, err)
			return
		}
		if _, err := h.ownedWallet(ctx, uid, *tx.ToWalletID); err != nil {
			common.Error(c, err)
			return
		}
	}
	common.Success(c, tx)
}

func (h *Handler) WalletBalances(c *gin.Context) {
	ctx := c.Request.Context()
	walletID := c.Param("walletId")
	if _, err := h.ownedWallet(ctx, callerID(c), walletID); err != nil {
		common.Error(c, err)
		return
	}
	list, err := h.engine.WalletBalances(ctx, walletID)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, list)
}

func (h *Handler) TokenBalance(c *gin.Context) {
	ctx := c.Request.Context()
	walletID := c.Param("walletId")
	tokenID, err := strconv.ParseUint(c.Param("tokenId"), 10, 64)
	if err != nil {
		common.BadRequest(c, "invalid token id")
		return
	}
	if _, err := h.ownedWallet(ctx, callerID(c), walletID); err != nil {
		common.Error(c, err)
		return
	}
	bal, err := h.engine.TokenBalance(ctx, walletID, tokenID)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, gin.H{"wallet_id": walletID, "token_id": tokenID, "balance": bal})
}

func (h *Handler) InitializeBalance(c *gin.Context) {
	var req initializeBalanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "wallet_id, token_symbol and network are required")
		return
	}
	initial := decimal.Zero
	if req.InitialBalance != "" {
		d, err := parseAmount(req.InitialBalance)
		if err != nil {
			common.Error(c, err)
			return
		}
		initial = d
	}
	ctx := c.Request.Context()
	if _, err := h.ownedWallet(ctx, callerID(c), req.WalletID); err != nil {
		common.Error(c, err)
		return
	}
	bal, err := h.engine.InitializeTokenBalance(ctx, req.WalletID, req.TokenSymbol, req.Network, initial)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Created(c, bal)
}
