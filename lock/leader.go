package lock

import (
	"context"
	"log/slog"
	"time"
)

// campaignRetryInterval 竞选失败后的重试间隔。
const campaignRetryInterval = 2 * time.Second

// LeaderElector 消费组领导选举器。每个消费组对应一把租约锁，
// 持锁实例是该组唯一的事件流读取者。
type LeaderElector struct {
	lock   DistributedLock
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// ElectorOption 选举器可选配置。
type ElectorOption func(*LeaderElector)

// WithElectorLogger 设置日志器。
func WithElectorLogger(logger *slog.Logger) ElectorOption {
	return func(e *LeaderElector) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewLeaderElector 创建领导选举器。
func NewLeaderElector(lock DistributedLock, key string, ttl time.Duration, opts ...ElectorOption) *LeaderElector {
	e := &LeaderElector{
		lock:   lock,
		key:    key,
		ttl:    ttl,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Campaign 持续竞选领导权，当选后执行 callback 直到 ctx 结束。
// callback 返回后释放租约重新竞选，失去领导权的实例在下一轮重新排队。
func (e *LeaderElector) Campaign(ctx context.Context, callback func(ctx context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		token, stop, err := e.lock.AcquireWithWatchdog(ctx, e.key, e.ttl)
		if err != nil {
			if !e.sleep(ctx) {
				return
			}
			continue
		}

		e.logger.InfoContext(ctx, "elected as leader", "key", e.key)

		callback(ctx)

		stop()
		// ctx 结束后仍要释放租约，让继任者立即接管而不是等 TTL 过期。
		if err := e.lock.Release(context.WithoutCancel(ctx), e.key, token); err != nil {
			e.logger.Warn("leader lease release failed", "key", e.key, "error", err)
		} else {
			e.logger.Info("resigned from leadership", "key", e.key)
		}
	}
}

func (e *LeaderElector) sleep(ctx context.Context) bool {
	timer := time.NewTimer(campaignRetryInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
