package lifecycle

import (
	"context"
	"time"
)

// Handle 是分发给单个后台服务的生命周期句柄
type Handle struct {
	name string
	ctx  context.Context
	done func()
}

// Name 返回服务登记时的名称
func (h *Handle) Name() string {
	return h.name
}

// Close 通知Manager该服务已经退出，可重复调用
func (h *Handle) Close() {
	h.done()
}

// Ctx 返回随停机信号取消的上下文，可直接传给数据库和Redis调用
func (h *Handle) Ctx() context.Context {
	return h.ctx
}

// Done 在停机信号发出后关闭
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Err 返回停机原因，停机前为nil
func (h *Handle) Err() error {
	return h.ctx.Err()
}

// Sleep 暂停指定的时长，收到停机信号时提前返回错误
func (h *Handle) Sleep(duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-h.Done():
		return h.Err()
	case <-timer.C:
		return nil
	}
}

// Every 每隔 interval 调用一次 tick，直到收到停机信号后返回。
// 第一次调用发生在第一个间隔结束时，tick 收到的上下文随停机信号取消。
func (h *Handle) Every(interval time.Duration, tick func(ctx context.Context)) {
	for h.Sleep(interval) == nil {
		tick(h.ctx)
	}
}

// Go 在新的Goroutine中运行服务，并在其返回后自动调用 Close
func (h *Handle) Go(run func(h *Handle)) {
	go func() {
		defer h.Close()
		run(h)
	}()
}
