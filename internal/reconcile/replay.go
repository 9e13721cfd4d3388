package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard 回调随机串去重
type ReplayGuard interface {
	// Consume 首次出现返回 true
	Consume(ctx context.Context, orderID, nonce string) (bool, error)
	// Release 处理失败时释放，允许网关重试
	Release(ctx context.Context, orderID, nonce string) error
}

func replayKey(orderID, nonce string) string {
	return strings.TrimSpace(orderID) + ":" + strings.TrimSpace(nonce)
}

// MemoryReplayGuard 进程内去重
type MemoryReplayGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryReplayGuard 创建内存去重器
func NewMemoryReplayGuard(ttl time.Duration) *MemoryReplayGuard {
	return &MemoryReplayGuard{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Consume 标记随机串已使用；随机串为空时无法去重，直接放行
func (g *MemoryReplayGuard) Consume(_ context.Context, orderID, nonce string) (bool, error) {
	if strings.TrimSpace(nonce) == "" {
		return true, nil
	}
	key := replayKey(orderID, nonce)
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if expireAt, ok := g.seen[key]; ok && (g.ttl <= 0 || now.Before(expireAt)) {
		return false, nil
	}
	g.seen[key] = now.Add(g.ttl)
	return true, nil
}

// Release 释放随机串
func (g *MemoryReplayGuard) Release(_ context.Context, orderID, nonce string) error {
	g.mu.Lock()
	delete(g.seen, replayKey(orderID, nonce))
	g.mu.Unlock()
	return nil
}

// Sweep 清理过期随机串
func (g *MemoryReplayGuard) Sweep(now time.Time) int {
	if g.ttl <= 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for key, expireAt := range g.seen {
		if !now.Before(expireAt) {
			delete(g.seen, key)
			removed++
		}
	}
	return removed
}

// RedisReplayGuard 基于 SET NX 的去重
type RedisReplayGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisReplayGuard 创建 Redis 去重器
func NewRedisReplayGuard(client *redis.Client, prefix string, ttl time.Duration) *RedisReplayGuard {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "hp"
	}
	return &RedisReplayGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisReplayGuard) key(orderID, nonce string) string {
	return fmt.Sprintf("%s:callback_nonce:%s", g.prefix, replayKey(orderID, nonce))
}

// Consume 标记随机串已使用
func (g *RedisReplayGuard) Consume(ctx context.Context, orderID, nonce string) (bool, error) {
	if strings.TrimSpace(nonce) == "" {
		return true, nil
	}
	return g.client.SetNX(ctx, g.key(orderID, nonce), "1", g.ttl).Result()
}

// Release 释放随机串
func (g *RedisReplayGuard) Release(ctx context.Context, orderID, nonce string) error {
	return g.client.Del(ctx, g.key(orderID, nonce)).Err()
}
