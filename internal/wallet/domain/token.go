package domain

import "github.com/shopspring/decimal"

// MaxScale 金额列 decimal(36,18) 的小数位
const MaxScale = 18

// Token (symbol, network) 唯一，ContractAddress 为空表示原生币
type Token struct {
	ID              uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol          string  `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_network,priority:1" json:"symbol"`
	Network         Network `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_network,priority:2" json:"network"`
	Name            string  `gorm:"type:varchar(64)" json:"name"`
	ContractAddress *string `gorm:"type:varchar(128)" json:"contract_address,omitempty"`
	Decimals        int     `gorm:"not null;default:18" json:"decimals"`
	IsActive        bool    `gorm:"not null" json:"is_active"`
	LogoURL         string  `gorm:"type:varchar(255)" json:"logo_url,omitempty"`
}

func (Token) TableName() string { return "tokens" }

// Scale 代币可表示的小数位，超过列精度按列精度
func (t *Token) Scale() int {
	if t.Decimals < 0 || t.Decimals > MaxScale {
		return MaxScale
	}
	return t.Decimals
}

// WithinScale 去掉尾随 0 之后小数位不超过 scale
func WithinScale(amount decimal.Decimal, scale int) bool {
	if scale < 0 || scale > MaxScale {
		scale = MaxScale
	}
	return amount.Truncate(int32(scale)).Equal(amount)
}
