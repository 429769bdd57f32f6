package domain

import "time"

// UserStatus 用户状态
type UserStatus uint8

const (
	UserStatusDisabled UserStatus = iota // 禁用
	UserStatusEnabled                    // 启用
)

// User 钱包服务只读的用户视图，账号体系在用户服务里维护
type User struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	Email     string     `gorm:"uniqueIndex:uniq_email;size:100;not null"`
	Name      string     `gorm:"size:50"`
	Status    UserStatus `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

func (u *User) Enabled() bool { return u.Status == UserStatusEnabled }
