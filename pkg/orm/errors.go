package orm

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// mysql ER_DUP_ENTRY
const mysqlDupEntry = 1062

// IsDuplicateKey 唯一键冲突：gorm 翻译后的错误，或者未翻译的原始 mysql 错误
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDupEntry
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
