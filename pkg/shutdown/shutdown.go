package shutdown

import (
	"context"
	"sync"

	"github.com/popswap/gopopswap/pkg/logger"
)

// Hook 关闭回调
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Manager 按注册的逆序依次执行关闭回调（后启动的组件先关闭）
type Manager struct {
	mu    sync.Mutex
	hooks []namedHook
	done  bool
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, fn Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, fn: fn})
}

// Shutdown 只执行一次；ctx 超时后剩余回调被跳过。返回第一个出错的回调的错误
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	hooks := m.hooks
	m.mu.Unlock()

	logger.Infof("开始优雅关闭，共 %d 个回调", len(hooks))
	var firstErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := ctx.Err(); err != nil {
			logger.Warnf("关闭超时，跳过 %s: %v", h.name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := h.fn(ctx); err != nil {
			logger.Errorf("关闭 %s 失败: %v", h.name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Debugf("已关闭 %s", h.name)
	}
	return firstErr
}
