package audit

import (
	"context"

	"github.com/SlpAus/flag-training-backend/internal/flag"
	"go.uber.org/zap"
)

// LogObserver 把每一次Flag校验结论写入结构化日志
type LogObserver struct {
	log *zap.Logger
}

// NewLogObserver 创建日志观察者
func NewLogObserver(log *zap.Logger) *LogObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogObserver{log: log}
}

// FlagChecked 实现 flag.Observer，提交的原文不会被记录
func (o *LogObserver) FlagChecked(_ context.Context, out flag.Outcome) error {
	o.log.Info("Flag校验完成",
		zap.Int64("user_id", out.UserID),
		zap.Int64("module_id", out.ModuleID),
		zap.Bool("exact", out.Exact),
		zap.Bool("valid", out.Valid),
		zap.Time("checked_at", out.CheckedAt))
	return nil
}
