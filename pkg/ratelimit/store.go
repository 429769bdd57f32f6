package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nano
}

// Store 按 key（IP / 用户 / 方法）分桶的令牌桶，闲置超过 ttl 的桶被回收
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    rate.Limit
	burst   int
	ttl     time.Duration
}

func NewStore(r rate.Limit, burst int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Store{
		entries: make(map[string]*entry, 1024),
		rate:    r,
		burst:   burst,
		ttl:     ttl,
	}
}

func (s *Store) get(key string) *rate.Limiter {
	now := time.Now().UnixNano()
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.entries[key] = e
	}
	s.mu.Unlock()
	e.lastSeen.Store(now)
	return e.limiter
}

// Allow 非阻塞
func (s *Store) Allow(key string) bool {
	return s.get(key).Allow()
}

// Wait 阻塞直到拿到令牌或 ctx 结束
func (s *Store) Wait(ctx context.Context, key string) error {
	return s.get(key).Wait(ctx)
}

func (s *Store) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *Store) cleanup() {
	cut := time.Now().Add(-s.ttl).UnixNano()
	s.mu.Lock()
	for k, e := range s.entries {
		if e.lastSeen.Load() < cut {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}
