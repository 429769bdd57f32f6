// Package tokens (symbol, network) -> Token 的缓存目录
package tokens

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/xerr"
)

type entry struct {
	token *domain.Token
	at    time.Time
}

// Directory 读路径 RWMutex，缓存未命中或过期时 singleflight 合并回源
type Directory struct {
	store domain.TokenStore
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]entry
	sf    singleflight.Group
}

func NewDirectory(store domain.TokenStore, ttl time.Duration) *Directory {
	return &Directory{
		store: store,
		ttl:   ttl,
		cache: make(map[string]entry),
	}
}

func cacheKey(symbol string, network domain.Network) string {
	return strings.ToUpper(symbol) + "@" + string(network)
}

// Lookup 不检查是否启用，查无返回 TokenNotFound
func (d *Directory) Lookup(ctx context.Context, symbol string, network domain.Network) (*domain.Token, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := cacheKey(symbol, network)

	d.mu.RLock()
	e, ok := d.cache[key]
	d.mu.RUnlock()
	if ok && (d.ttl <= 0 || time.Since(e.at) < d.ttl) {
		return e.token, nil
	}

	v, err, _ := d.sf.Do(key, func() (any, error) {
		t, err := d.store.GetToken(ctx, symbol, network)
		if err != nil {
			if xerr.IsKind(err, xerr.NotFound) {
				return nil, xerr.Newf(xerr.TokenNotFound, "token %s not found on %s", symbol, network)
			}
			return nil, err
		}
		d.put(t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Token), nil
}

// Resolve 转账用：必须存在且已启用
// 缓存只用于定位 ID，启用状态按主键回库确认，停用即时生效
func (d *Directory) Resolve(ctx context.Context, symbol string, network domain.Network) (*domain.Token, error) {
	cached, err := d.Lookup(ctx, symbol, network)
	if err != nil {
		return nil, err
	}
	t, err := d.store.GetTokenByID(ctx, cached.ID)
	if err != nil {
		if xerr.IsKind(err, xerr.NotFound) {
			d.Invalidate(symbol, network)
			return nil, xerr.Newf(xerr.TokenNotFound, "token %s not found on %s", cached.Symbol, network)
		}
		return nil, err
	}
	d.put(t)
	if !t.IsActive {
		return nil, xerr.Newf(xerr.TokenInactive, "token %s is inactive on %s", t.Symbol, network)
	}
	return t, nil
}

func (d *Directory) ByID(ctx context.Context, id uint64) (*domain.Token, error) {
	d.mu.RLock()
	for _, e := range d.cache {
		if e.token.ID == id && (d.ttl <= 0 || time.Since(e.at) < d.ttl) {
			d.mu.RUnlock()
			return e.token, nil
		}
	}
	d.mu.RUnlock()

	t, err := d.store.GetTokenByID(ctx, id)
	if err != nil {
		if xerr.IsKind(err, xerr.NotFound) {
			return nil, xerr.Newf(xerr.TokenNotFound, "token %d not found", id)
		}
		return nil, err
	}
	d.put(t)
	return t, nil
}

// Seed 启动时按配置幂等写入
func (d *Directory) Seed(ctx context.Context, list []domain.Token) error {
	for i := range list {
		t := list[i]
		t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
		if !t.Network.Supported() {
			return xerr.Newf(xerr.InvalidArgument, "token %s: unsupported network %q", t.Symbol, t.Network)
		}
		if t.Decimals == 0 {
			t.Decimals = 18
		}
		if err := d.store.UpsertToken(ctx, &t); err != nil {
			return err
		}
		d.put(&t)
		logger.Info(ctx, "🪙 代币已就绪",
			zap.String("symbol", t.Symbol),
			zap.String("network", string(t.Network)),
			zap.Bool("active", t.IsActive))
	}
	return nil
}

func (d *Directory) Invalidate(symbol string, network domain.Network) {
	d.mu.Lock()
	delete(d.cache, cacheKey(symbol, network))
	d.mu.Unlock()
}

func (d *Directory) put(t *domain.Token) {
	d.mu.Lock()
	d.cache[cacheKey(t.Symbol, t.Network)] = entry{token: t, at: time.Now()}
	d.mu.Unlock()
}
