// Package retry 提供带抖动的指数退避重试。
// 事件存储的乐观并发冲突与工作流启动的瞬态失败都经由本包收敛。
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Func 可重试的操作。
type Func func() error

// Config 重试策略。MaxRetries 为重试次数上限，总执行次数为 MaxRetries+1；
// 取负值时退化为单次执行且不包装错误。
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
	MaxRetries     int
}

// DefaultRetryConfig 返回默认重试策略。
func DefaultRetryConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// next 推进退避间隔：乘以系数、施加 ±Jitter 比例的随机抖动、按上限截断。
func (c Config) next(backoff time.Duration) time.Duration {
	raw := float64(backoff) * c.Multiplier
	if c.Jitter > 0 {
		raw += (rand.Float64()*2 - 1) * c.Jitter * raw
	}

	return min(time.Duration(raw), c.MaxBackoff)
}

// Retry 对任何错误都重试，直到成功或预算耗尽。
func Retry(ctx context.Context, fn Func, cfg Config) error {
	return RetryIf(ctx, fn, func(error) bool { return true }, cfg)
}

// RetryIf 执行 fn，失败且 shouldRetry 判定可重试时退避后再试。
// 预算耗尽或遇到不可重试错误时包装最后一次错误返回；
// 退避等待期间 ctx 结束则立即返回包装后的 ctx.Err()。
func RetryIf(ctx context.Context, fn Func, shouldRetry func(error) bool, cfg Config) error {
	if cfg.MaxRetries < 0 {
		return fn()
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxRetries || !shouldRetry(lastErr) {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = cfg.next(backoff)
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxRetries, lastErr)
}
