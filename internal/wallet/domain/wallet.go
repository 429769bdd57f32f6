package domain

import "time"

// Wallet 托管钱包：一个用户在一条链上最多一个
// PrivateKey 与 EncryptedPrivateKey 至多一个非空，两者都为空表示密钥已移除
type Wallet struct {
	ID                  uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	WalletID            string    `gorm:"type:varchar(36);not null;uniqueIndex:uk_wallet_id" json:"wallet_id"`
	UserID              int64     `gorm:"not null;uniqueIndex:uk_user_network,priority:1" json:"user_id"`
	Network             Network   `gorm:"type:varchar(20);not null;uniqueIndex:uk_user_network,priority:2;uniqueIndex:uk_address_network,priority:2" json:"network"`
	Address             string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_address_network,priority:1" json:"address"`
	PublicKey           string    `gorm:"type:varchar(160)" json:"public_key"`
	PrivateKey          *string   `gorm:"type:varchar(64)" json:"-"`
	EncryptedPrivateKey *string   `gorm:"type:text" json:"-"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

func (w *Wallet) HasPlainKey() bool {
	return w.PrivateKey != nil && *w.PrivateKey != ""
}

func (w *Wallet) HasEncryptedKey() bool {
	return w.EncryptedPrivateKey != nil && *w.EncryptedPrivateKey != ""
}

func (w *Wallet) HasPrivateKey() bool {
	return w.HasPlainKey() || w.HasEncryptedKey()
}

// Owner 用户查询服务返回的最小视图
type Owner struct {
	ID    int64
	Email string
	Name  string
}
