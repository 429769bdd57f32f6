package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/safe"
	"gopherwallet.com/pkg/xerr"
	"gopherwallet.com/pkg/xredis"
)

// Locker 按 key 互斥，返回的 unlock 必须调用且只调用一次
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex 进程内每个 key 一把锁，无人等待时回收
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			m.release(key, e)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, e *keyedEntry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

// size 当前仍被持有或等待的 key 数
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// RedisLocker 多实例部署时用 Redis 分布式锁，持有期间后台续期
type RedisLocker struct {
	client        redis.Cmdable
	prefix        string
	ttl           time.Duration
	retryTimes    int
	retryInterval time.Duration
}

type RedisLockerConfig struct {
	Prefix        string
	TTL           time.Duration
	RetryTimes    int
	RetryInterval time.Duration
}

func NewRedisLocker(client redis.Cmdable, c RedisLockerConfig) *RedisLocker {
	if c.Prefix == "" {
		c.Prefix = "wallet:balance:lock:"
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.RetryTimes <= 0 {
		c.RetryTimes = 200
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 50 * time.Millisecond
	}
	return &RedisLocker{
		client:        client,
		prefix:        c.Prefix,
		ttl:           c.TTL,
		retryTimes:    c.RetryTimes,
		retryInterval: c.RetryInterval,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	dl := xredis.NewDistLock(l.client, l.prefix+key, l.ttl)
	if err := dl.Lock(ctx, l.retryTimes, l.retryInterval); err != nil {
		if errors.Is(err, xredis.ErrLockNotAcquired) {
			return nil, xerr.Wrap(err, xerr.Conflict, "wallet is busy, retry later")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, xerr.Wrap(err, xerr.PersistenceFailure, "acquire balance lock")
	}

	// 看门狗：结算可能接近 TTL，每 ttl/3 续期一次
	stop := make(chan struct{})
	safe.GoCtx(context.WithoutCancel(ctx), func(ctx context.Context) {
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if ok, err := dl.Renew(ctx); err != nil || !ok {
					logger.Warn(ctx, "⚠️ 余额锁续期失败", zap.String("key", dl.Key()), zap.Error(err))
					return
				}
			}
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			ctx := context.WithoutCancel(ctx)
			if ok, err := dl.Unlock(ctx); err != nil || !ok {
				logger.Warn(ctx, "⚠️ 余额锁释放异常", zap.String("key", dl.Key()), zap.Bool("owned", ok), zap.Error(err))
			}
		})
	}, nil
}
