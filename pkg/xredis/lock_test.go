package xredis

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要本地 Redis，连不上就跳过
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb, err := NewRedis(&Config{Addr: addr, PoolSize: 20})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestDistLock_MutualExclusion(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	key := "test:lock:" + uuid.NewString()

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
		success int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := NewDistLock(rdb, key, 5*time.Second)
			if err := l.Lock(ctx, 200, 5*time.Millisecond); err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			atomic.AddInt32(&success, 1)
			_, _ = l.Unlock(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen, "同一时刻只能有一个持有者")
	assert.Greater(t, success, int32(0))
}

func TestDistLock_UnlockOnlyOwnToken(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	key := "test:lock:" + uuid.NewString()

	owner := NewDistLock(rdb, key, 5*time.Second)
	other := NewDistLock(rdb, key, 5*time.Second)

	require.NoError(t, owner.Lock(ctx, 1, time.Millisecond))
	assert.ErrorIs(t, other.Lock(ctx, 1, time.Millisecond), ErrLockNotAcquired)

	ok, err := other.Unlock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "不能释放别人的锁")

	ok, err = owner.Renew(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = owner.Unlock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
