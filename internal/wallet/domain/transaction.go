package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus pending -> confirmed | failed，终态不再变化
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

type Transaction struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletID   string          `gorm:"type:varchar(36);not null;index:idx_wallet_created,priority:1" json:"wallet_id"`
	TxHash     string          `gorm:"type:varchar(80);not null;uniqueIndex:uk_tx_hash" json:"tx_hash"`
	TokenID    uint64          `gorm:"not null" json:"token_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(36,18);not null" json:"amount"`
	ToAddress  string          `gorm:"type:varchar(128);not null" json:"to_address"`
	ToWalletID *string         `gorm:"type:varchar(36)" json:"to_wallet_id,omitempty"`
	Status     TxStatus        `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	Network    Network         `gorm:"type:varchar(20);not null" json:"network"`
	Message    string          `gorm:"type:varchar(255)" json:"message,omitempty"`
	CreatedAt  time.Time       `gorm:"index:idx_wallet_created,priority:2" json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }
