package database

import (
	"context"
	"fmt"

	"github.com/SlpAus/flag-training-backend/internal/platform/config"
	"github.com/redis/go-redis/v9"
)

// RDB 是一个全局的Redis客户端实例，供项目其他部分使用
var RDB *redis.Client

// InitRedis 初始化与Redis数据库的连接。
// Redis只承载可重建的缓存，连接失败时返回客户端和错误，由调用方决定是否降级运行。
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 使用Ping命令来测试连接是否成功
	if err := RDB.Ping(ctx).Err(); err != nil {
		UpdateStatus(false, "")
		return RDB, fmt.Errorf("无法连接到Redis: %w", err)
	}
	return RDB, nil
}
