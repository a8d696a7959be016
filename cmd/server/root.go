package main

import (
	"fmt"

	"github.com/SlpAus/flag-training-backend/internal/platform/config"
	"github.com/SlpAus/flag-training-backend/internal/platform/database"
	"github.com/SlpAus/flag-training-backend/internal/platform/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Flag训练平台后端",
	Long: `Flag训练平台后端：为每个用户派生独立的动态Flag，记录提交并计算排行榜。

不带子命令运行时等同于 server serve。
配置从 ./config/config.yaml 或 ./config.yaml 读取，环境变量可覆盖任意配置项，
例如 DATABASE_DSN=/data/flags.db。`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, rotateSecretCmd)
}

// bootstrap 加载配置、创建日志器并连接数据库，是所有子命令的公共前置步骤
func bootstrap() (*config.Config, *zap.Logger, *gorm.DB, error) {
	// 1. 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// 2. 初始化日志
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	// 3. 连接数据库
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	log.Info("数据库连接成功", zap.String("driver", cfg.Database.Driver))
	return cfg, log, db, nil
}
