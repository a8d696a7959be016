package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/flag-training-backend/internal/platform/database"
	"github.com/redis/go-redis/v9"
)

// SnapshotKey 是Redis中排行榜快照的键名
// Key: scoreboard:snapshot
// Value: []Entry 的JSON序列化字符串
const SnapshotKey = "scoreboard:snapshot"

// GenerationKey 是排行榜快照的代数计数器，每次失效都会递增
// Key: scoreboard:generation
// Value: 整数
const GenerationKey = "scoreboard:generation"

// snapshotStore 是缓存所需的Redis命令子集
type snapshotStore interface {
	redis.Cmdable
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// Cache 把排行榜快照缓存在Redis中。
// 它只是可重建的加速层，Redis不可用时所有方法都退化为未命中/空操作。
// 写入快照前必须先通过 Generation 取得代数，计算期间发生过失效的快照不会被写入。
type Cache struct {
	rdb     snapshotStore
	ttl     time.Duration
	healthy func() bool
}

// NewCache 创建排行榜缓存，rdb 为nil时缓存被禁用
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	c := &Cache{ttl: ttl, healthy: database.IsRedisHealthy}
	if rdb != nil {
		c.rdb = rdb
	}
	return c
}

func (c *Cache) enabled() bool {
	return c != nil && c.rdb != nil && c.healthy()
}

// Get 读取缓存的排行榜，未命中时第二个返回值为false
func (c *Cache) Get(ctx context.Context) ([]Entry, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	raw, err := c.rdb.Get(ctx, SnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取排行榜缓存失败: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("解析排行榜缓存失败: %w", err)
	}
	return entries, true, nil
}

// Generation 返回当前的快照代数，应在开始计算排行榜之前读取
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	return readGeneration(ctx, c.rdb)
}

// stringGetter 同时被普通客户端和 WATCH 事务实现
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, r stringGetter) (int64, error) {
	gen, err := r.Get(ctx, GenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取排行榜代数失败: %w", err)
	}
	return gen, nil
}

// Set 写入按代数 gen 计算出的排行榜快照。
// 如果此后发生过失效，快照已经过期，直接丢弃，返回的 written 为false。
func (c *Cache) Set(ctx context.Context, gen int64, entries []Entry) (written bool, err error) {
	if !c.enabled() {
		return false, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return false, fmt.Errorf("序列化排行榜失败: %w", err)
	}

	// 1. 使用WATCH监视代数，失效与写入之间的竞争由Redis事务裁决
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		// 2. 代数未变，在事务中写入快照
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, SnapshotKey, raw, c.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		written = true
		return nil
	}, GenerationKey)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("写入排行榜缓存失败: %w", err)
	}
	return written, nil
}

// Invalidate 递增快照代数并删除快照，下一次读取会重新计算，
// 正在进行中的计算也无法再把旧结果写回
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, GenerationKey)
		pipe.Del(ctx, SnapshotKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("清除排行榜缓存失败: %w", err)
	}
	return nil
}
