package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Hook 需要在进程退出时释放的组件.
type Hook struct {
	Name   string
	OnStop func(ctx context.Context) error
}

// Lifecycle 按注册的逆序关闭组件.
type Lifecycle struct {
	logger *slog.Logger
	hooks  []Hook
	mu     sync.Mutex
}

// NewLifecycle 创建生命周期管理器.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{logger: logger}
}

// Append 添加一个钩子.
func (l *Lifecycle) Append(hook Hook) {
	if hook.OnStop == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook)
}

// Stop 以相反的顺序关闭所有组件，单个组件失败不会中断其余组件. Stop 之后钩子被清空.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	hooks := l.hooks
	l.hooks = nil
	l.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		l.logger.Info("stopping component", "name", hook.Name)
		if err := hook.OnStop(ctx); err != nil {
			l.logger.Error("failed to stop component", "name", hook.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
