package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	DbPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_pool_open",
		Help:      "Current open DB connections",
	})
	DbPoolIdle         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "db_pool_idle"})
	DbPoolInuse        = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "db_pool_inuse"})
	DbPoolWaitCount    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "db_pool_wait_count"})
	DbPoolWaitDuration = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "db_pool_wait_seconds"})

	RedisPoolOpen  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "redis_pool_open"})
	RedisPoolIdle  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "redis_pool_idle"})
	RedisPoolHits  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "redis_pool_hits"})
	RedisPoolMiss  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "redis_pool_misses"})
	RedisPoolStale = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "redis_pool_stale_conns"})
)

// StartPoolCollector 定时把连接池状态写入 gauge，redis 可为 nil
func StartPoolCollector(ctx context.Context, db *sql.DB, rdb *redis.Client, every time.Duration) {
	if every <= 0 {
		every = 15 * time.Second
	}
	collectPools(db, rdb)
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collectPools(db, rdb)
			}
		}
	}()
}

func collectPools(db *sql.DB, rdb *redis.Client) {
	if db != nil {
		s := db.Stats()
		DbPoolOpen.Set(float64(s.OpenConnections))
		DbPoolIdle.Set(float64(s.Idle))
		DbPoolInuse.Set(float64(s.InUse))
		DbPoolWaitCount.Set(float64(s.WaitCount))
		DbPoolWaitDuration.Set(s.WaitDuration.Seconds())
	}
	if rdb != nil {
		s := rdb.PoolStats()
		RedisPoolOpen.Set(float64(s.TotalConns))
		RedisPoolIdle.Set(float64(s.IdleConns))
		RedisPoolHits.Set(float64(s.Hits))
		RedisPoolMiss.Set(float64(s.Misses))
		RedisPoolStale.Set(float64(s.StaleConns))
	}
}
