package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter 请求节流
type Limiter interface {
	Wait(ctx context.Context) error
	Allow() bool
}

// NewTokenBucket 每秒补充 rps 个令牌，容量为 burst；rps<=0 表示不限速
func NewTokenBucket(rps float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Registry 按名称管理的限速器集合，未注册的名称不限速
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
}

func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]Limiter)}
}

func (r *Registry) Register(name string, l Limiter) {
	r.mu.Lock()
	r.limiters[name] = l
	r.mu.Unlock()
}

func (r *Registry) Wait(ctx context.Context, name string) error {
	r.mu.RLock()
	l, ok := r.limiters[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
