package domain

import (
	"context"
	"time"
)

// 审计动作
const (
	AuditWalletCreated      = "wallet.created"
	AuditWalletRecovered    = "wallet.recovered"
	AuditPrivateKeyViewed   = "wallet.private_key_viewed"
	AuditPrivateKeyRemoved  = "wallet.private_key_removed"
	AuditPasswordUpdated    = "wallet.password_updated"
	AuditTransferConfirmed  = "transfer.confirmed"
	AuditTransferFailed     = "transfer.failed"
	AuditBalanceInitialized = "balance.initialized"
)

// AuditEntry Metadata 里不允许出现任何密钥材料
type AuditEntry struct {
	UserID    *int64         `json:"user_id,omitempty"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditLog audit_logs 表
type AuditLog struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    *int64    `gorm:"index"`
	Action    string    `gorm:"type:varchar(64);not null;index"`
	Metadata  string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (AuditLog) TableName() string { return "audit_logs" }
