package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Manager 持有一组同时停机的后台服务。
// 停机分为两个阶段时，上层（如shutdown）为每个阶段各创建一个Manager。
type Manager struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	services map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager 创建一个新的生命周期管理器
func NewManager() *Manager {
	m := &Manager{
		services: make(map[string]struct{}),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// NewServiceHandle 登记一个名为 name 的服务并返回它的句柄，同名服务只能登记一次。
// 调用方负责在服务退出时调用 Handle.Close。
func (m *Manager) NewServiceHandle(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[name]; exists {
		return nil, fmt.Errorf("生命周期管理器: 服务 '%s' 已被登记", name)
	}
	m.services[name] = struct{}{}
	m.wg.Add(1)

	return &Handle{
		name: name,
		ctx:  m.ctx,
		done: func() { m.release(name) },
	}, nil
}

// Go 登记服务并在新的Goroutine中运行它，run 返回后服务自动注销
func (m *Manager) Go(name string, run func(h *Handle)) error {
	h, err := m.NewServiceHandle(name)
	if err != nil {
		return err
	}
	h.Go(run)
	return nil
}

func (m *Manager) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.services[name]; !exists {
		return
	}
	delete(m.services, name)
	m.wg.Done()
}

// Running 返回仍在运行的服务名称，按名称排序
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown 向所有服务广播停机信号
func (m *Manager) Shutdown() {
	m.cancel()
}

// WaitWithTimeout 等待所有服务退出，最多等待 timeout。
// 超时时返回仍未退出的服务名称，全部退出时返回nil。
func (m *Manager) WaitWithTimeout(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return m.Running()
	}
}
