package shutdown

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SlpAus/flag-training-backend/pkg/lifecycle"
	"go.uber.org/zap"
)

const (
	httpTimeout     = 15 * time.Second
	gracefulTimeout = 30 * time.Second
	forcefulTimeout = 1 * time.Second
)

// Finalizer 在所有后台服务退出后执行，例如关闭数据库和Redis连接
type Finalizer struct {
	Name string
	Fn   func() error
}

// Coordinator 负责编排应用程序的优雅停机流程。
// 它接收外部创建的生命周期管理器，并使用它们来协调停机。
type Coordinator struct {
	GracefulManager *lifecycle.Manager
	ForcefulManager *lifecycle.Manager

	log        *zap.Logger
	finalizers []Finalizer
}

// NewCoordinator 创建一个新的停机协调器。
func NewCoordinator(gracefulMgr, forcefulMgr *lifecycle.Manager, log *zap.Logger, finalizers ...Finalizer) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		GracefulManager: gracefulMgr,
		ForcefulManager: forcefulMgr,
		log:             log,
		finalizers:      finalizers,
	}
}

// ListenForSignalsAndShutdown 启动信号监听并阻塞，直到停机流程完成。
func (c *Coordinator) ListenForSignalsAndShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 阻塞直到接收到停机信号
	sig := <-sigChan
	c.log.Info("收到关闭信号，开始优雅停机", zap.Stringer("signal", sig))
	c.Shutdown(server)
}

// Shutdown 执行两阶段停机：先关闭HTTP服务器，再依次停止后台服务并执行收尾操作
func (c *Coordinator) Shutdown(server *http.Server) {
	// 关闭HTTP服务器，允许正在进行的请求完成
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			c.log.Error("HTTP服务器关闭错误", zap.Error(err))
		} else {
			c.log.Info("HTTP服务器已关闭")
		}
	}

	// --- 阶段一: 优雅停机 ---
	c.log.Info("第一阶段停机",
		zap.Duration("timeout", gracefulTimeout),
		zap.Strings("services", c.GracefulManager.Running()))
	c.GracefulManager.Shutdown()

	remaining := c.GracefulManager.WaitWithTimeout(gracefulTimeout)
	if len(remaining) == 0 {
		c.log.Info("所有服务已在第一阶段优雅关闭")
	} else {
		// --- 阶段二: 强制停机 ---
		c.log.Warn("第一阶段超时，发送强制停机信号", zap.Strings("remaining", remaining))
		c.ForcefulManager.Shutdown()
		if stuck := c.ForcefulManager.WaitWithTimeout(forcefulTimeout); len(stuck) > 0 {
			c.log.Error("部分服务未能退出", zap.Strings("services", stuck))
		}
	}

	// --- 最终步骤 ---
	for _, f := range c.finalizers {
		if err := f.Fn(); err != nil {
			c.log.Error("收尾操作失败", zap.String("step", f.Name), zap.Error(err))
		}
	}
	c.log.Info("优雅停机完成")
}
