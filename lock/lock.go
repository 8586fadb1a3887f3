// Package lock 提供基于 Redis 的互斥原语，用于保证每个消费组
// 同一时刻只有一个存活的读取者在推进游标。
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockHeld 锁已被其他持有者占用。
	ErrLockHeld = errors.New("lock held by another owner")
	// ErrNotOwner 释放时校验失败：令牌不匹配或锁已过期。
	ErrNotOwner = errors.New("lock not owned")
)

// 续期与释放都必须校验令牌归属，避免误伤其他持有者的锁。
const (
	renewScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end`
	releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`
)

// DistributedLock 分布式互斥锁契约。
type DistributedLock interface {
	// Acquire 一次性抢锁，成功返回所有权令牌。
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	// AcquireWithWatchdog 抢锁并启动续期协程，持有期间自动延长 TTL。
	// 返回的 stop 只结束续期，不释放锁。
	AcquireWithWatchdog(ctx context.Context, key string, ttl time.Duration) (string, func(), error)
	// Release 按令牌释放锁，非持有者返回 ErrNotOwner。
	Release(ctx context.Context, key, token string) error
}

// RedisLock 基于 SET NX 与 Lua 校验脚本的锁实现。
type RedisLock struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// LockOption RedisLock 可选配置。
type LockOption func(*RedisLock)

// WithLockLogger 设置日志器。
func WithLockLogger(logger *slog.Logger) LockOption {
	return func(l *RedisLock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLock 创建 Redis 分布式锁。
func NewRedisLock(client redis.UniversalClient, opts ...LockOption) *RedisLock {
	l := &RedisLock{
		client: client,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

var _ DistributedLock = (*RedisLock)(nil)

// Acquire 尝试一次性抢锁。
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return "", ErrLockHeld
	}

	l.logger.DebugContext(ctx, "lock acquired", "key", key)

	return token, nil
}

// AcquireWithWatchdog 抢锁并以 TTL/3 的周期续期，直到 stop 被调用、
// 业务 ctx 结束或所有权丢失。所有权丢失时续期协程自行退出，
// 竞争者将在 TTL 内接管。
func (l *RedisLock) AcquireWithWatchdog(ctx context.Context, key string, ttl time.Duration) (string, func(), error) {
	token, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return "", nil, err
	}

	watchdogCtx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				res, err := l.client.Eval(watchdogCtx, renewScript, []string{key}, token, int(ttl.Seconds())).Int()
				if err != nil || res == 0 {
					l.logger.Warn("lock renewal failed, ownership lost", "key", key, "error", err)
					return
				}
			case <-watchdogCtx.Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return token, cancel, nil
}

// Release 校验令牌后删除锁。锁已过期或被他人持有时返回 ErrNotOwner。
func (l *RedisLock) Release(ctx context.Context, key, token string) error {
	res, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	if res == 0 {
		return ErrNotOwner
	}

	l.logger.DebugContext(ctx, "lock released", "key", key)

	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
