package app

import (
	"context"
	"log/slog"
	"sync"
)

// Hook 资源的关停动作。装配容器按创建顺序登记，关停按相反顺序执行，
// 依赖方先于被依赖方释放。
type Hook struct {
	Name   string
	OnStop func(ctx context.Context) error
}

// Lifecycle 资源关停栈。
type Lifecycle struct {
	logger *slog.Logger
	hooks  []Hook
	mu     sync.Mutex
}

// NewLifecycle 创建关停栈。
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Append 登记一个关停钩子。
func (l *Lifecycle) Append(hook Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook)
}

// Stop 逆序执行全部钩子。单个钩子失败不中断其余钩子，首个错误上抛。
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for i := len(l.hooks) - 1; i >= 0; i-- {
		hook := l.hooks[i]
		if hook.OnStop == nil {
			continue
		}

		l.logger.Info("stopping component", "name", hook.Name)
		if err := hook.OnStop(ctx); err != nil {
			l.logger.Error("component stop failed", "name", hook.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
