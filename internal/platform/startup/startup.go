package startup

import (
	"fmt"

	"github.com/SlpAus/flag-training-backend/internal/module"
	"github.com/SlpAus/flag-training-backend/internal/scoring"
	"github.com/SlpAus/flag-training-backend/internal/secret"
	"github.com/SlpAus/flag-training-backend/internal/submission"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InitializeApplication 是应用启动时执行的总入口，按依赖顺序迁移所有表结构
func InitializeApplication(db *gorm.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("开始迁移数据库表结构...")

	steps := []struct {
		name    string
		migrate func(*gorm.DB) error
	}{
		{name: "module", migrate: module.Migrate},
		{name: "secret", migrate: secret.Migrate},
		{name: "submission", migrate: submission.Migrate},
		{name: "scoring", migrate: scoring.Migrate},
	}
	for _, step := range steps {
		if err := step.migrate(db); err != nil {
			return fmt.Errorf("模块 %s 初始化失败: %w", step.name, err)
		}
		log.Debug("表结构迁移成功", zap.String("module", step.name))
	}

	log.Info("应用初始化完成")
	return nil
}
