// Package transfer 转账引擎：校验、落 pending、结算、记账、终态
package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelCodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/internal/wallet/keyvault"
	"gopherwallet.com/internal/wallet/ledger"
	"gopherwallet.com/internal/wallet/tokens"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/metrics"
	"gopherwallet.com/pkg/xerr"
)

const defaultSettleTimeout = 30 * time.Second

// Wallets 钱包登记簿中转账需要的部分
type Wallets interface {
	GetWallet(ctx context.Context, walletID string) (*domain.Wallet, error)
	FindByAddress(ctx context.Context, address string, network domain.Network) (*domain.Wallet, error)
	ListByOwnerEmail(ctx context.Context, email, network string) ([]*domain.Wallet, error)
	GetPrivateKey(ctx context.Context, walletID, password string) (string, error)
}

type Store interface {
	domain.TxManager
	domain.TransactionStore
}

type Request struct {
	FromWalletID string
	ToAddress    string
	ToEmail      string
	Amount       decimal.Decimal
	TokenSymbol  string
	Network      string
	PrivateKey   string
	Password     string
	Memo         string
}

type Result struct {
	Transaction *domain.Transaction `json:"transaction"`
	TxHash      string              `json:"tx_hash"`
	Status      domain.TxStatus     `json:"status"`
	Message     string              `json:"message"`
}

type Engine struct {
	store         Store
	wallets       Wallets
	ledger        *ledger.Ledger
	tokens        *tokens.Directory
	vault         *keyvault.Vault
	executor      Executor
	audit         domain.AuditSink
	settleTimeout time.Duration
	tracer        trace.Tracer
}

type Option func(*Engine)

func WithSettleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.settleTimeout = d
		}
	}
}

func WithAudit(sink domain.AuditSink) Option {
	return func(e *Engine) { e.audit = sink }
}

func NewEngine(store Store, wallets Wallets, l *ledger.Ledger, dir *tokens.Directory, vault *keyvault.Vault, exec Executor, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		wallets:       wallets,
		ledger:        l,
		tokens:        dir,
		vault:         vault,
		executor:      exec,
		settleTimeout: defaultSettleTimeout,
		tracer:        otel.Tracer("gopherwallet/transfer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer 校验失败直接返回错误且无任何写入；pending 记录落库后一定走到终态
// 结算失败（含超时）返回 status=failed 的 Result 与 nil error
func (e *Engine) Transfer(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	network := domain.ParseNetwork(req.Network)
	ctx, span := e.tracer.Start(ctx, "transfer.Transfer", trace.WithAttributes(
		attribute.String("wallet.id", req.FromWalletID),
		attribute.String("network", network.String()),
		attribute.String("token", req.TokenSymbol),
	))
	defer func() {
		status := "rejected"
		if res != nil {
			status = string(res.Status)
			span.SetAttributes(attribute.String("tx.hash", res.TxHash), attribute.String("tx.status", status))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelCodes.Error, string(xerr.KindOf(err)))
		}
		metrics.TransferTotal.WithLabelValues(network.String(), status).Inc()
		metrics.TransferDuration.WithLabelValues(network.String(), status).Observe(time.Since(start).Seconds())
		span.End()
	}()

	// 1. 金额
	if !req.Amount.IsPositive() {
		return nil, xerr.New(xerr.InvalidAmount, "amount must be greater than 0")
	}
	// 2. 源钱包
	src, err := e.wallets.GetWallet(ctx, req.FromWalletID)
	if err != nil {
		return nil, err
	}
	// 3. 网络一致
	if src.Network != network {
		return nil, xerr.Newf(xerr.NetworkMismatch, "source wallet is on %s, not %s", src.Network, req.Network)
	}
	// 4. 代币存在且启用
	token, err := e.tokens.Resolve(ctx, req.TokenSymbol, network)
	if err != nil {
		return nil, err
	}
	// 超出代币精度的金额落库会被截断，记账前拒绝
	if !domain.WithinScale(req.Amount, token.Scale()) {
		return nil, xerr.Newf(xerr.InvalidAmount, "amount exceeds %d decimal places of %s", token.Scale(), token.Symbol)
	}
	// 5 + 6. 目标解析与地址格式
	dest, err := e.resolveDestination(ctx, req, network)
	if err != nil {
		return nil, err
	}
	// 7. 禁止转给自己
	if dest.Address() == src.Address {
		return nil, xerr.New(xerr.SelfTransfer, "cannot transfer to the source wallet")
	}
	// 8. 预检余额（锁外快速失败，锁内再查一次）
	if err := e.ensureFunds(ctx, src.WalletID, token.ID, req.Amount); err != nil {
		return nil, err
	}

	err = e.ledger.Exclusive(ctx, src.WalletID, token.ID, func(ctx context.Context) error {
		var err error
		res, err = e.transferLocked(ctx, req, src, token, dest)
		return err
	})
	return res, err
}

func (e *Engine) ensureFunds(ctx context.Context, walletID string, tokenID uint64, amount decimal.Decimal) error {
	bal, err := e.ledger.GetBalance(ctx, walletID, tokenID)
	if err != nil {
		return err
	}
	if bal.LessThan(amount) {
		return xerr.Newf(xerr.InsufficientFunds, "insufficient balance: have %s, need %s", bal.String(), amount.String())
	}
	return nil
}

// transferLocked 持有 (source, token) 锁，同一 key 上的转账排队执行
func (e *Engine) transferLocked(ctx context.Context, req Request, src *domain.Wallet, token *domain.Token, dest domain.Destination) (*Result, error) {
	if err := e.ensureFunds(ctx, src.WalletID, token.ID, req.Amount); err != nil {
		return nil, err
	}
	// 9 + 10. 签名私钥
	key, err := e.signingKey(ctx, req, src)
	if err != nil {
		return nil, err
	}
	// 11. 交易哈希
	seed := fmt.Sprintf("%s|%s|%s|%d", src.Address, dest.Address(), req.Amount.String(), time.Now().UnixNano())
	txHash := e.vault.GenerateTransactionHash(src.Network, seed)

	// 12. pending 记录
	tx := &domain.Transaction{
		WalletID:  src.WalletID,
		TxHash:    txHash,
		TokenID:   token.ID,
		Amount:    req.Amount,
		ToAddress: dest.Address(),
		Status:    domain.TxPending,
		Network:   src.Network,
	}
	if in, ok := dest.(domain.InternalWallet); ok {
		id := in.Wallet.WalletID
		tx.ToWalletID = &id
	}
	if err := e.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	// 从这里开始不再响应调用方取消，必须把记录推到终态
	ctx = context.WithoutCancel(ctx)

	// 13. 结算
	out := e.settle(ctx, Settlement{
		TxHash:     txHash,
		Network:    src.Network,
		Token:      token,
		From:       src.Address,
		To:         dest.Address(),
		Amount:     req.Amount,
		PrivateKey: key,
		Memo:       req.Memo,
	})
	if !out.Success {
		if err := e.finalize(ctx, tx, domain.TxFailed, out.Message); err != nil {
			return nil, err
		}
		e.recordOutcome(ctx, src, token, tx, dest)
		return e.result(tx), nil
	}

	// 14 + 15. 扣款（锁内复核）、入账、确认，同一个数据库事务
	err = e.store.Transaction(ctx, func(txCtx context.Context) error {
		if err := e.ledger.Debit(txCtx, src.WalletID, token.ID, req.Amount); err != nil {
			return err
		}
		if in, ok := dest.(domain.InternalWallet); ok {
			if err := e.ledger.Credit(txCtx, in.Wallet.WalletID, token.ID, req.Amount); err != nil {
				return err
			}
		}
		ok, err := e.store.FinalizeTransaction(txCtx, tx.ID, domain.TxConfirmed, out.Message)
		if err != nil {
			return err
		}
		if !ok {
			return xerr.Newf(xerr.Conflict, "transaction %s is no longer pending", txHash)
		}
		return nil
	})
	if err != nil {
		logger.Error(ctx, "❌ 转账记账失败，标记为 failed",
			zap.String("tx_hash", txHash),
			zap.String("wallet_id", src.WalletID),
			zap.Error(err))
		if ferr := e.finalize(ctx, tx, domain.TxFailed, xerr.Message(err)); ferr != nil {
			logger.Error(ctx, "❌ 标记 failed 失败", zap.String("tx_hash", txHash), zap.Error(ferr))
		}
		e.recordOutcome(ctx, src, token, tx, dest)
		return nil, err
	}

	tx.Status = domain.TxConfirmed
	tx.Message = out.Message
	logger.Info(ctx, "✅ 转账成功",
		zap.String("tx_hash", txHash),
		zap.String("wallet_id", src.WalletID),
		zap.String("to", dest.Address()),
		zap.Bool("internal", isInternal(dest)),
		zap.String("amount", req.Amount.String()),
		zap.String("token", token.Symbol))
	e.recordOutcome(ctx, src, token, tx, dest)
	// 16
	return e.result(tx), nil
}

// signingKey 优先使用请求里的私钥，且必须能派生出源地址
func (e *Engine) signingKey(ctx context.Context, req Request, src *domain.Wallet) (string, error) {
	key := strings.TrimSpace(req.PrivateKey)
	if key != "" {
		key = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X"))
	} else {
		var err error
		if key, err = e.wallets.GetPrivateKey(ctx, src.WalletID, req.Password); err != nil {
			return "", err
		}
	}
	if !e.vault.ValidatePrivateKey(key) {
		return "", xerr.New(xerr.InvalidKey, "private key must be 64 hex characters")
	}
	if _, addr, err := e.vault.DeriveAddress(key, src.Network); err != nil || addr != src.Address {
		return "", xerr.New(xerr.InvalidKey, "private key does not match the source wallet")
	}
	return key, nil
}

// resolveDestination to_address 与 to_email 必须且只能给一个
func (e *Engine) resolveDestination(ctx context.Context, req Request, network domain.Network) (domain.Destination, error) {
	toAddr := strings.TrimSpace(req.ToAddress)
	toEmail := strings.TrimSpace(req.ToEmail)
	switch {
	case toAddr == "" && toEmail == "":
		return nil, xerr.New(xerr.InvalidArgument, "either to_address or to_email is required")
	case toAddr != "" && toEmail != "":
		return nil, xerr.New(xerr.InvalidArgument, "provide only one of to_address or to_email")
	}

	if toEmail != "" {
		list, err := e.wallets.ListByOwnerEmail(ctx, toEmail, network.String())
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, xerr.Newf(xerr.NotFound, "no %s wallet found for the recipient email", network)
		}
		if !e.vault.ValidateAddress(list[0].Address, network) {
			return nil, xerr.New(xerr.InvalidAddress, "invalid destination address")
		}
		return domain.InternalWallet{Wallet: list[0]}, nil
	}

	if !e.vault.ValidateAddress(toAddr, network) {
		return nil, xerr.New(xerr.InvalidAddress, "invalid destination address")
	}
	addr := e.vault.NormalizeAddress(toAddr, network)
	w, err := e.wallets.FindByAddress(ctx, addr, network)
	switch {
	case err == nil:
		return domain.InternalWallet{Wallet: w}, nil
	case xerr.IsKind(err, xerr.NotFound):
		return domain.ExternalAddress{Addr: addr}, nil
	default:
		return nil, err
	}
}

// settle 超时、执行器报错、panic 都折算为失败结果
func (e *Engine) settle(ctx context.Context, s Settlement) (out Outcome) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.settleTimeout)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "transfer.Settle")
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "🚨 结算执行器 panic", zap.String("tx_hash", s.TxHash), zap.Any("panic", r))
			out = Outcome{Success: false, Message: "settlement failed: internal error"}
		}
		result := "success"
		if !out.Success {
			result = "failure"
			span.SetStatus(otelCodes.Error, out.Message)
		}
		metrics.SettlementDuration.WithLabelValues(s.Network.String(), result).Observe(time.Since(start).Seconds())
		span.End()
	}()

	out, err := e.executor.Settle(ctx, s)
	switch {
	case err == nil:
		if !out.Success && out.Message == "" {
			out.Message = "settlement rejected"
		}
		return out
	case ctx.Err() == context.DeadlineExceeded:
		logger.Warn(ctx, "⏱️ 结算超时", zap.String("tx_hash", s.TxHash), zap.Duration("timeout", e.settleTimeout))
		return Outcome{Success: false, Message: "settlement timed out"}
	default:
		logger.Warn(ctx, "⚠️ 结算失败", zap.String("tx_hash", s.TxHash), zap.Error(err))
		return Outcome{Success: false, Message: "settlement failed: " + xerr.Message(err)}
	}
}

// finalize pending -> 终态，只发生一次
func (e *Engine) finalize(ctx context.Context, tx *domain.Transaction, status domain.TxStatus, msg string) error {
	ok, err := e.store.FinalizeTransaction(ctx, tx.ID, status, msg)
	if err != nil {
		return err
	}
	if !ok {
		return xerr.Newf(xerr.Conflict, "transaction %s is no longer pending", tx.TxHash)
	}
	tx.Status = status
	tx.Message = msg
	return nil
}

func (e *Engine) result(tx *domain.Transaction) *Result {
	return &Result{Transaction: tx, TxHash: tx.TxHash, Status: tx.Status, Message: tx.Message}
}

func (e *Engine) recordOutcome(ctx context.Context, src *domain.Wallet, token *domain.Token, tx *domain.Transaction, dest domain.Destination) {
	if e.audit == nil {
		return
	}
	action := domain.AuditTransferFailed
	if tx.Status == domain.TxConfirmed {
		action = domain.AuditTransferConfirmed
	}
	uid := src.UserID
	e.record(ctx, domain.AuditEntry{
		UserID: &uid,
		Action: action,
		Metadata: map[string]any{
			"wallet_id":  src.WalletID,
			"tx_hash":    tx.TxHash,
			"token":      token.Symbol,
			"network":    src.Network.String(),
			"amount":     tx.Amount.String(),
			"to_address": tx.ToAddress,
			"internal":   isInternal(dest),
			"status":     string(tx.Status),
			"message":    tx.Message,
		},
		CreatedAt: time.Now(),
	})
}

// record 审计失败只告警，不影响已完成的业务结果
func (e *Engine) record(ctx context.Context, entry domain.AuditEntry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		logger.Warn(ctx, "⚠️ 审计写入失败", zap.String("action", entry.Action), zap.Error(err))
	}
}

func isInternal(d domain.Destination) bool {
	_, ok := d.(domain.InternalWallet)
	return ok
}
