package orm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"gorm 翻译后的错误", gorm.ErrDuplicatedKey, true},
		{"被包装的 gorm 错误", fmt.Errorf("create wallet: %w", gorm.ErrDuplicatedKey), true},
		{"原始 mysql 1062", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"其他 mysql 错误", &mysql.MySQLError{Number: 1213, Message: "Deadlock"}, false},
		{"普通错误", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateKey(tt.err))
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, ClampLimit(0, 50, 200))
	assert.Equal(t, 200, ClampLimit(1000, 50, 200))
	assert.Equal(t, 10, ClampLimit(10, 50, 200))
}
