package health

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/SlpAus/flag-training-backend/internal/platform/database"
	"github.com/SlpAus/flag-training-backend/pkg/lifecycle"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 5 * time.Second
	pingTimeout     = 2 * time.Second
)

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

// RecoveryFunc 在Redis重启或恢复后被调用，用于清理可能过期的派生缓存
type RecoveryFunc func(ctx context.Context) error

// infoSource 是健康检查所需的Redis命令子集
type infoSource interface {
	Info(ctx context.Context, section ...string) *redis.StringCmd
}

// Checker 周期性地检查Redis连接与run_id，并维护全局的Redis健康标记
type Checker struct {
	rdb      infoSource
	status   *statusManager
	recovery []RecoveryFunc
	log      *zap.Logger
	interval time.Duration
}

// NewChecker 创建健康检查器，rdb 为nil时检查器始终报告降级
func NewChecker(rdb *redis.Client, log *zap.Logger, recovery ...RecoveryFunc) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Checker{
		status:   newStatusManager(log),
		recovery: recovery,
		log:      log,
		interval: DefaultInterval,
	}
	if rdb != nil {
		c.rdb = rdb
	}
	return c
}

// State 返回当前的健康状态
func (c *Checker) State() State {
	return c.status.State()
}

// getRedisRunID 从Redis服务器信息中提取run_id
func (c *Checker) getRedisRunID(parent context.Context) (string, error) {
	if c.rdb == nil {
		return "", errors.New("未配置Redis客户端")
	}
	ctx, cancel := context.WithTimeout(parent, pingTimeout)
	defer cancel()
	info, err := c.rdb.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}
	matches := runIDPattern.FindStringSubmatch(info)
	if len(matches) < 2 {
		return "", fmt.Errorf("无法在Redis INFO中找到run_id")
	}
	return matches[1], nil
}

// InitializeRunID 在应用启动时执行一次，获取并设置初始的run_id。
// 失败时标记为降级，由后续的周期检查负责恢复。
func (c *Checker) InitializeRunID(ctx context.Context) error {
	runID, err := c.getRedisRunID(ctx)
	if err != nil {
		c.status.Assess(false, "")
		database.UpdateStatus(false, "")
		return fmt.Errorf("无法获取初始Redis Run ID: %w", err)
	}
	c.status.setInitialRunID(runID)
	database.SetInitialRunID(runID)
	database.UpdateStatus(true, runID)
	c.log.Info("获取初始Redis Run ID成功", zap.String("run_id", runID))
	return nil
}

// rebuild 依次执行恢复钩子，任一失败即视为本次重建失败
func (c *Checker) rebuild(ctx context.Context) bool {
	for _, fn := range c.recovery {
		if err := fn(ctx); err != nil {
			c.log.Error("派生缓存清理失败", zap.Error(err))
			return false
		}
	}
	return true
}

// PerformCheck 执行一次完整的健康检查和可能的修复操作
func (c *Checker) PerformCheck(ctx context.Context) {
	// 1. 探测Redis
	runID, err := c.getRedisRunID(ctx)
	connected := err == nil

	// 2. 推进状态机，必要时清理派生缓存
	if c.status.Assess(connected, runID) {
		ok := c.rebuild(ctx)
		runIDAfter, err := c.getRedisRunID(ctx)
		c.status.MarkRebuildComplete(ok && err == nil, runIDAfter)
	}

	// 3. 只有完全健康时才允许业务读写缓存
	healthy := c.status.State() == StateHealthy
	if database.UpdateStatus(healthy, runID) {
		c.log.Info("Redis可用状态变化", zap.Bool("healthy", healthy), zap.Stringer("state", c.status.State()))
	}
}

// Start 在后台循环执行健康检查，直到生命周期句柄被取消
func (c *Checker) Start(handle *lifecycle.Handle) {
	defer handle.Close()
	c.log.Info("Redis健康检查器已启动", zap.Duration("interval", c.interval))

	handle.Every(c.interval, c.PerformCheck)
	c.log.Info("Redis健康检查器已停止")
}
