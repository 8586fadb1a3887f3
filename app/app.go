// Package app 管理进程生命周期：启动注册的服务器，监听退出信号，
// 按序优雅关停并释放资源。
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wyfcoding/docstore/async"
)

// defaultShutdownTimeout 优雅关停的默认预算。
const defaultShutdownTimeout = 10 * time.Second

// App 进程容器。持有根上下文，任一服务器失败或收到退出信号
// 都会触发整体关停。
type App struct {
	name   string
	logger *slog.Logger
	opts   options
	ctx    context.Context
	cancel func()
}

// New 创建进程容器。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{shutdownTimeout: defaultShutdownTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		name:   name,
		logger: logger,
		opts:   o,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run 启动全部服务器并阻塞，直到收到 SIGINT/SIGTERM 或某个服务器
// 启动失败。返回前在关停预算内依次停止服务器并执行清理函数。
func (a *App) Run() error {
	a.logger.Info("application starting", "name", a.name, "pid", os.Getpid())

	for _, srv := range a.opts.servers {
		s := srv
		async.SafeGo(func() {
			if err := s.Start(a.ctx); err != nil {
				a.logger.Error("server exited with error", "error", err)
				a.cancel()
			}
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.Info("shutdown signal received", "name", a.name, "signal", sig.String())
	case <-a.ctx.Done():
		a.logger.Info("shutting down after server failure", "name", a.name)
	}

	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.opts.shutdownTimeout)
	defer shutdownCancel()

	// 即使某个服务器停止失败也要继续停完其余的，错误合并上抛。
	var errs []error
	for _, srv := range a.opts.servers {
		if err := srv.Stop(shutdownCtx); err != nil {
			a.logger.Error("server failed to stop", "error", err)
			errs = append(errs, err)
		}
	}

	for _, cleanup := range a.opts.cleanups {
		cleanup()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	a.logger.Info("application stopped", "name", a.name)

	return nil
}
