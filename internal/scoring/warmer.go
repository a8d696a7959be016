package scoring

import (
	"context"
	"time"

	"github.com/SlpAus/flag-training-backend/internal/platform/database"
	"github.com/SlpAus/flag-training-backend/pkg/lifecycle"
	"go.uber.org/zap"
)

const warmTimeout = 10 * time.Second

// StartCacheWarmer 启动一个后台循环，定期重新计算排行榜并写入缓存。
// 它应当在独立的Goroutine中运行，收到停机信号后返回。
func (s *Service) StartCacheWarmer(handle *lifecycle.Handle, interval time.Duration) {
	defer handle.Close()
	s.log.Info("排行榜缓存预热器已启动", zap.String("service", handle.Name()), zap.Duration("interval", interval))

	handle.Every(interval, func(ctx context.Context) {
		if !database.IsRedisHealthy() {
			s.log.Debug("Redis不可用，跳过本次排行榜预热")
			return
		}
		if err := s.warmOnce(ctx); err != nil {
			s.log.Warn("排行榜预热失败", zap.Error(err))
		}
	})
	s.log.Info("排行榜缓存预热器收到停机信号，正在退出")
}

func (s *Service) warmOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, warmTimeout)
	defer cancel()

	gen, err := s.cache.Generation(ctx)
	if err != nil {
		return err
	}
	entries, err := s.Compute(ctx)
	if err != nil {
		return err
	}
	written, err := s.cache.Set(ctx, gen, entries)
	if err != nil {
		return err
	}
	if !written {
		s.log.Debug("预热期间排行榜已失效，丢弃本次快照")
	}
	return nil
}
