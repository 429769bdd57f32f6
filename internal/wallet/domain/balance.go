package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletBalance (wallet_id, token_id) 唯一，余额永不为负
type WalletBalance struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"-"`
	WalletID    string          `gorm:"type:varchar(36);not null;uniqueIndex:uk_wallet_token,priority:1" json:"wallet_id"`
	TokenID     uint64          `gorm:"not null;uniqueIndex:uk_wallet_token,priority:2;index:idx_token" json:"token_id"`
	Balance     decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0" json:"balance"`
	LastUpdated time.Time       `gorm:"not null" json:"last_updated"`
}

func (WalletBalance) TableName() string { return "wallet_balances" }
