package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/SlpAus/flag-training-backend/pkg/lifecycle"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config 描述每个键独立的令牌桶参数
type Config struct {
	// PerSecond 是每秒补充的令牌数
	PerSecond float64
	// Burst 是桶容量
	Burst int
	// IdleTTL 是一个键在无请求后被回收的时长，为0时不回收。
	// 回收由 StartSweeper 周期性完成，Allow 本身不扫描。
	IdleTTL time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter 为每个键（通常是用户ID）维护一个独立的令牌桶
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewLimiter 创建一个按键限流器
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow 判断该键此刻能否放行，不会阻塞
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Tracked 返回当前持有令牌桶的键数量
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep 回收空闲超过 IdleTTL 的键，返回回收的数量
func (l *Limiter) Sweep() int {
	if l.cfg.IdleTTL <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > l.cfg.IdleTTL {
			delete(l.entries, key)
			evicted++
		}
	}
	return evicted
}

// StartSweeper 启动一个后台循环，每隔 IdleTTL/2 回收一次空闲的令牌桶。
// IdleTTL 为0时立即返回。
func (l *Limiter) StartSweeper(handle *lifecycle.Handle, log *zap.Logger) {
	defer handle.Close()
	if l.cfg.IdleTTL <= 0 {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	interval := l.cfg.IdleTTL / 2
	log.Info("限流器回收循环已启动", zap.Duration("interval", interval))

	handle.Every(interval, func(context.Context) {
		if n := l.Sweep(); n > 0 {
			log.Debug("已回收空闲令牌桶", zap.Int("evicted", n), zap.Int("tracked", l.Tracked()))
		}
	})
	log.Info("限流器回收循环收到停机信号，正在退出")
}

// Middleware 返回一个按键限流的gin中间件。
// keyFunc 返回false时请求不受限流约束。
func (l *Limiter) Middleware(keyFunc func(c *gin.Context) (string, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := keyFunc(c)
		if ok && !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "提交过于频繁，请稍后重试",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
