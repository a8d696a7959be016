package health

import (
	"sync"

	"go.uber.org/zap"
)

// State 定义了Redis缓存层健康状态的枚举类型
type State int

const (
	StateHealthy State = iota
	StateDegraded
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateRebuilding:
		return "rebuilding"
	default:
		return "unknown"
	}
}

// statusManager 负责线程安全地管理健康状态的迁移
type statusManager struct {
	mu             sync.RWMutex
	currentState   State
	lastKnownRunID string
	log            *zap.Logger
}

func newStatusManager(log *zap.Logger) *statusManager {
	return &statusManager{currentState: StateHealthy, log: log}
}

// State 返回当前状态
func (sm *statusManager) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

func (sm *statusManager) setInitialRunID(runID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.lastKnownRunID = runID
}

// Assess 根据一次检查结果推进状态，返回是否需要清理派生缓存。
// 降级期间的缓存失效操作会丢失，因此从降级恢复时总是需要清理。
func (sm *statusManager) Assess(connected bool, runID string) (needsRebuild bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.currentState {
	case StateHealthy:
		if !connected {
			sm.currentState = StateDegraded
			sm.log.Warn("Redis连接丢失，状态 -> 降级")
		} else if sm.lastKnownRunID != "" && sm.lastKnownRunID != runID {
			sm.currentState = StateRebuilding
			needsRebuild = true
			sm.log.Warn("检测到Redis重启，状态 -> 重建中",
				zap.String("old_run_id", sm.lastKnownRunID),
				zap.String("new_run_id", runID))
		}
	case StateDegraded:
		if connected {
			sm.currentState = StateRebuilding
			needsRebuild = true
			sm.log.Info("Redis连接已恢复，状态 -> 重建中", zap.String("run_id", runID))
		}
	case StateRebuilding:
		if !connected {
			sm.currentState = StateDegraded
			sm.log.Warn("重建期间Redis连接再次丢失，状态 -> 降级")
		} else {
			// 仍处于重建中说明上一次重建失败
			needsRebuild = true
		}
	}

	if connected {
		sm.lastKnownRunID = runID
	}
	return needsRebuild
}

// MarkRebuildComplete 在一次重建尝试之后调用。
// 重建期间Redis再次重启时，本次重建无效，保持重建中。
func (sm *statusManager) MarkRebuildComplete(success bool, runIDAfterRebuild string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.currentState != StateRebuilding {
		return
	}
	if success && sm.lastKnownRunID != runIDAfterRebuild {
		sm.log.Warn("重建期间检测到Redis再次重启，重建无效",
			zap.String("old_run_id", sm.lastKnownRunID),
			zap.String("new_run_id", runIDAfterRebuild))
		sm.lastKnownRunID = runIDAfterRebuild
		return
	}
	if success {
		sm.currentState = StateHealthy
		sm.log.Info("派生缓存清理完成，状态 -> 健康")
	} else {
		sm.log.Warn("派生缓存清理失败，保持重建中以待重试")
	}
}
