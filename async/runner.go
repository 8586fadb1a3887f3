// Package async 提供 panic 安全的 goroutine 原语。
// 服务器循环与尽力而为的旁路任务（如创建通知）都经由本包启动，
// 单个任务的 panic 只终止自身，不拖垮进程。
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrPanicRecovered 异步任务中恢复出的 panic。
var ErrPanicRecovered = errors.New("async task panic recovered")

// Runner 并发执行器契约。
type Runner interface {
	Go(fn func())
	GoWithContext(ctx context.Context, fn func(ctx context.Context))
}

type defaultRunner struct {
	logger *slog.Logger
}

// DefaultRunner 进程级默认执行器。
var DefaultRunner = &defaultRunner{logger: slog.Default()}

// Go 启动 goroutine 执行 fn，panic 被恢复并记录。
func (r *defaultRunner) Go(fn func()) {
	go r.guard(fn)
}

// GoWithContext 同 Go，并把 ctx 透传给任务。
func (r *defaultRunner) GoWithContext(ctx context.Context, fn func(ctx context.Context)) {
	go r.guard(func() { fn(ctx) })
}

func (r *defaultRunner) guard(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("async task panic recovered",
				"error", fmt.Errorf("%w: %v", ErrPanicRecovered, rec),
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// SafeGo 用默认执行器启动 panic 安全的 goroutine。
func SafeGo(fn func()) {
	DefaultRunner.Go(fn)
}

// RunGroup 带 panic 恢复的任务组：Wait 返回首个任务错误，
// panic 只记日志，不作为错误上抛。
type RunGroup struct {
	err     error
	wg      sync.WaitGroup
	errOnce sync.Once
}

// Go 在组内启动一个任务。
func (g *RunGroup) Go(fn func() error) {
	g.wg.Add(1)
	SafeGo(func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.errOnce.Do(func() {
				g.err = err
			})
		}
	})
}

// Wait 阻塞到全部任务结束，返回首个错误。
func (g *RunGroup) Wait() error {
	g.wg.Wait()
	return g.err
}
