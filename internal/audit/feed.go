package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SlpAus/flag-training-backend/internal/platform/database"
	"github.com/SlpAus/flag-training-backend/internal/submission"
	"github.com/redis/go-redis/v9"
)

const (
	// FeedKey 是Redis中最近解题动态的列表键名
	// Key: solves:recent
	// Value: List<FeedEntry JSON>，最新的在表头
	FeedKey = "solves:recent"
	// FeedSize 是动态列表保留的最大条目数
	FeedSize = 100
)

// FeedEntry 是一条解题动态
type FeedEntry struct {
	UserID   int64     `json:"userId"`
	ModuleID int64     `json:"moduleId"`
	SolvedAt time.Time `json:"solvedAt"`
}

// listStore 是动态列表所需的Redis命令子集
type listStore interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// Feed 在Redis中维护一个有上限的最近解题列表。
// 它只是展示用的旁路数据，Redis不可用时写入被跳过、读取返回空列表。
type Feed struct {
	rdb     listStore
	healthy func() bool
}

// NewFeed 创建解题动态，rdb 为nil时动态被禁用
func NewFeed(rdb *redis.Client) *Feed {
	f := &Feed{healthy: database.IsRedisHealthy}
	if rdb != nil {
		f.rdb = rdb
	}
	return f
}

func (f *Feed) enabled() bool {
	return f != nil && f.rdb != nil && f.healthy()
}

// SolveRecorded 实现 submission.SolveListener
func (f *Feed) SolveRecorded(ctx context.Context, s submission.Submission) error {
	if !f.enabled() || !s.Valid {
		return nil
	}
	raw, err := json.Marshal(FeedEntry{UserID: s.UserID, ModuleID: s.ModuleID, SolvedAt: s.SubmittedAt})
	if err != nil {
		return fmt.Errorf("序列化解题动态失败: %w", err)
	}
	if err := f.rdb.LPush(ctx, FeedKey, raw).Err(); err != nil {
		return fmt.Errorf("写入解题动态失败: %w", err)
	}
	if err := f.rdb.LTrim(ctx, FeedKey, 0, FeedSize-1).Err(); err != nil {
		return fmt.Errorf("裁剪解题动态失败: %w", err)
	}
	return nil
}

// Recent 返回最新的 n 条解题动态，n 被限制在 [1, FeedSize] 内
func (f *Feed) Recent(ctx context.Context, n int) ([]FeedEntry, error) {
	entries := []FeedEntry{}
	if !f.enabled() {
		return entries, nil
	}
	if n <= 0 || n > FeedSize {
		n = FeedSize
	}
	raws, err := f.rdb.LRange(ctx, FeedKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取解题动态失败: %w", err)
	}
	for _, raw := range raws {
		var e FeedEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
