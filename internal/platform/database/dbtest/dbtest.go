// Package dbtest 为各模块的测试提供隔离的内存SQLite数据库。
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/SlpAus/flag-training-backend/internal/platform/config"
	"github.com/SlpAus/flag-training-backend/internal/platform/database"
	"gorm.io/gorm"
)

// New 打开一个只属于当前测试的内存数据库，并迁移给定的模型
func New(t testing.TB, models ...interface{}) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := database.Open(config.DatabaseConfig{Driver: config.DriverSqlite, DSN: dsn})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("迁移测试表失败: %v", err)
		}
	}
	return db
}
