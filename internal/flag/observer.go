package flag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Outcome 描述一次Flag校验的结论
type Outcome struct {
	UserID    int64     `json:"userId"`
	ModuleID  int64     `json:"moduleId"`
	Exact     bool      `json:"exact"`
	Valid     bool      `json:"valid"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Observer 在校验得出结论之后被通知。
// 它是尽力而为的旁路，返回的错误和发生的panic都只会被记录。
type Observer interface {
	FlagChecked(ctx context.Context, o Outcome) error
}

// ObserverFunc 让普通函数满足 Observer 接口
type ObserverFunc func(ctx context.Context, o Outcome) error

func (f ObserverFunc) FlagChecked(ctx context.Context, o Outcome) error {
	return f(ctx, o)
}

func (e *Engine) notify(ctx context.Context, o Outcome) {
	for _, obs := range e.observers {
		if err := safeNotify(ctx, obs, o); err != nil {
			e.log.Warn("Flag校验观察者执行失败",
				zap.Int64("user_id", o.UserID),
				zap.Int64("module_id", o.ModuleID),
				zap.Error(err))
		}
	}
}

func safeNotify(ctx context.Context, obs Observer, o Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("观察者panic: %v", r)
		}
	}()
	return obs.FlagChecked(ctx, o)
}
