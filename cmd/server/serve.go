package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SlpAus/flag-training-backend/api"
	"github.com/SlpAus/flag-training-backend/internal/platform/database"
	"github.com/SlpAus/flag-training-backend/internal/platform/health"
	"github.com/SlpAus/flag-training-backend/internal/platform/logger"
	"github.com/SlpAus/flag-training-backend/internal/platform/shutdown"
	"github.com/SlpAus/flag-training-backend/internal/platform/startup"
	"github.com/SlpAus/flag-training-backend/pkg/lifecycle"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const bootTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP服务",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), bootTimeout)
	defer cancel()

	// 1. 迁移表结构
	if err := startup.InitializeApplication(db, log); err != nil {
		return err
	}

	// 2. 连接Redis，失败时以降级模式启动，由健康检查器负责恢复
	rdb, err := database.InitRedis(ctx, cfg.Database.Redis)
	if err != nil {
		log.Warn("Redis不可用，以降级模式启动", zap.Error(err))
	}

	// 3. 组装业务组件
	app := api.NewApp(cfg, db, rdb, log)

	// 4. 健康检查，Redis重启或恢复后清除排行榜缓存
	checker := health.NewChecker(rdb, logger.Component(log, "health"), app.Scoring.InvalidateCache)
	if err := checker.InitializeRunID(ctx); err != nil {
		log.Warn("初始健康检查失败", zap.Error(err))
	}

	// 5. 启动后台服务
	gracefulMgr := lifecycle.NewManager()
	forcefulMgr := lifecycle.NewManager()

	services := map[string]func(h *lifecycle.Handle){
		"redis-health": checker.Start,
		"scoreboard-warmer": func(h *lifecycle.Handle) {
			app.Scoring.StartCacheWarmer(h, cfg.Scoring.WarmInterval)
		},
		"ratelimit-sweeper": func(h *lifecycle.Handle) {
			app.Limiter.StartSweeper(h, logger.Component(log, "ratelimit"))
		},
	}
	for name, run := range services {
		if err := gracefulMgr.Go(name, run); err != nil {
			return err
		}
	}

	// 6. 启动HTTP服务器
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           app.NewRouter(checker),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("服务器已准备就绪", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP服务器异常退出", zap.Error(err))
		}
	}()

	// 7. 阻塞直到收到停机信号
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr, log,
		shutdown.Finalizer{Name: "redis", Fn: rdb.Close},
		shutdown.Finalizer{Name: "database", Fn: sqlDB.Close},
	)
	coordinator.ListenForSignalsAndShutdown(server)
	return nil
}
