package async

import (
	"context"
	"sync"
)

// Future 异步计算的占位结果。计算在后台 goroutine 中进行，
// Get 阻塞取值且可重复调用。
type Future[T any] struct {
	value T
	err   error
	done  chan struct{}
	once  sync.Once
}

// NewFuture 启动 fn 并立即返回 Future。fn 收到的是后台上下文，
// 取消语义由 Get 的调用方 ctx 控制，不中断计算本身。
func NewFuture[T any](fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	SafeGo(func() {
		defer f.once.Do(func() { close(f.done) })
		f.value, f.err = fn(context.Background())
	})

	return f
}

// Get 等待计算完成。ctx 先结束时返回 ctx.Err()，计算继续进行，
// 后续 Get 仍可取到结果。
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-f.done:
		return f.value, f.err
	}
}
