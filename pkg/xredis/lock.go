package xredis

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired 重试次数用尽仍没抢到
var ErrLockNotAcquired = errors.New("xredis: lock not acquired")

// KEYS[1]: 锁 key，ARGV[1]: token，只删自己的锁
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// KEYS[1]: 锁 key，ARGV[1]: token，ARGV[2]: 毫秒
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end
`)

type DistLock struct {
	client     redis.Cmdable
	key        string
	token      string // 谁加锁谁解锁
	expiration time.Duration
}

func NewDistLock(client redis.Cmdable, key string, expiration time.Duration) *DistLock {
	return &DistLock{
		client:     client,
		key:        key,
		token:      uuid.NewString(),
		expiration: expiration,
	}
}

func (l *DistLock) Key() string { return l.key }

// TryLock 非阻塞，一次性
func (l *DistLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
}

// Lock 自旋加锁，retryTimes 用尽返回 ErrLockNotAcquired
func (l *DistLock) Lock(ctx context.Context, retryTimes int, retryInterval time.Duration) error {
	for i := 0; i < retryTimes; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// 随机抖动，防止等待方同时唤醒冲击 Redis
		sleep := retryInterval + time.Duration(rand.Intn(10))*time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return ErrLockNotAcquired
}

// Renew 续期，只对自己持有的锁生效
func (l *DistLock) Renew(ctx context.Context) (bool, error) {
	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.expiration.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Unlock 返回 false 表示锁已过期或被别人持有
func (l *DistLock) Unlock(ctx context.Context) (bool, error) {
	res, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
