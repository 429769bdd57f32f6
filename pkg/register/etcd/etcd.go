package etcd

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/encoding/json"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/register"
)

// EtcdRegister 租约 + KeepAlive，进程挂掉后 ttl 秒内 key 自动消失
type EtcdRegister struct {
	client   *clientv3.Client
	basePath string // 比如 "/gopherwallet/services"
	ttl      int64  // 租约秒数

	mu      sync.Mutex
	leaseID clientv3.LeaseID
	stop    context.CancelFunc
}

func NewEtcdRegister(c *clientv3.Client, basePath string, ttl int64) *EtcdRegister {
	if ttl <= 0 {
		ttl = 10
	}
	return &EtcdRegister{
		client:   c,
		basePath: basePath,
		ttl:      ttl,
	}
}

func Key(basePath string, ins *register.Instance) string {
	return fmt.Sprintf("%s/%s/%s", basePath, ins.Name, ins.ID)
}

func Encode(ins *register.Instance) (string, error) {
	val, err := json.Marshal(ins)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (e *EtcdRegister) Register(ctx context.Context, ins *register.Instance) error {
	grant, err := e.client.Grant(ctx, e.ttl)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}
	val, err := Encode(ins)
	if err != nil {
		return err
	}
	if _, err = e.client.Put(ctx, Key(e.basePath, ins), val, clientv3.WithLease(grant.ID)); err != nil {
		return fmt.Errorf("put instance: %w", err)
	}

	// 续约跟随注册方生命周期，但不被单次请求的 ctx 取消
	kaCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch, err := e.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("keepalive: %w", err)
	}

	e.mu.Lock()
	e.leaseID = grant.ID
	e.stop = cancel
	e.mu.Unlock()

	go e.drain(kaCtx, ins, ch)
	logger.Info(ctx, "✅ 服务已注册到 etcd",
		zap.String("key", Key(e.basePath, ins)),
		zap.Int64("lease_id", int64(grant.ID)),
	)
	return nil
}

func (e *EtcdRegister) UnRegister(ctx context.Context, ins *register.Instance) error {
	e.mu.Lock()
	leaseID, stop := e.leaseID, e.stop
	e.mu.Unlock()
	if stop != nil {
		stop()
	}

	if _, err := e.client.Delete(ctx, Key(e.basePath, ins)); err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if leaseID != 0 {
		if _, err := e.client.Revoke(ctx, leaseID); err != nil {
			return fmt.Errorf("revoke lease: %w", err)
		}
	}
	return nil
}

// drain 必须消费 KeepAlive 响应，否则 client 会告警并丢弃
func (e *EtcdRegister) drain(ctx context.Context, ins *register.Instance, ch <-chan *clientv3.LeaseKeepAliveResponse) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				logger.Warn(ctx, "etcd keepalive channel closed", zap.String("instance", ins.ID))
				return
			}
		}
	}
}
