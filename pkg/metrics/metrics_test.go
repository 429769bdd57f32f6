package metrics

import (
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMustRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}

func TestTransferCounters(t *testing.T) {
	before := testutil.ToFloat64(TransferTotal.WithLabelValues("bep20", "confirmed"))
	TransferTotal.WithLabelValues("bep20", "confirmed").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(TransferTotal.WithLabelValues("bep20", "confirmed")))
}

func TestCollectPools(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	var sqlDB *sql.DB
	sqlDB, err = db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	require.NoError(t, sqlDB.Ping())

	collectPools(sqlDB, nil)
	assert.Equal(t, float64(sqlDB.Stats().OpenConnections), testutil.ToFloat64(DbPoolOpen))
}
