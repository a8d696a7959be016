package api

import (
	"time"

	"github.com/SlpAus/flag-training-backend/internal/audit"
	"github.com/SlpAus/flag-training-backend/internal/flag"
	"github.com/SlpAus/flag-training-backend/internal/module"
	"github.com/SlpAus/flag-training-backend/internal/platform/config"
	"github.com/SlpAus/flag-training-backend/internal/platform/logger"
	"github.com/SlpAus/flag-training-backend/internal/ratelimit"
	"github.com/SlpAus/flag-training-backend/internal/scoring"
	"github.com/SlpAus/flag-training-backend/internal/secret"
	"github.com/SlpAus/flag-training-backend/internal/submission"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// limiterIdleTTL 是限流器回收长时间无请求用户的时长
const limiterIdleTTL = 10 * time.Minute

// App 持有进程内组装好的全部业务组件
type App struct {
	Modules *module.Repository
	Secrets *secret.Store
	Engine  *flag.Engine
	Ledger  *submission.Ledger
	Scoring *scoring.Service
	Feed    *audit.Feed
	Limiter *ratelimit.Limiter

	cfg *config.Config
	db  *gorm.DB
	log *zap.Logger
}

// NewApp 按依赖顺序组装业务组件，rdb 为nil时缓存与解题动态被禁用
func NewApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}

	// 1. 存储层
	modules := module.NewRepository(db)
	secrets := secret.NewStore(db)

	// 2. Flag引擎，校验结论写入审计日志
	engine := flag.NewEngine(modules, secrets, logger.Component(log, "flag"),
		audit.NewLogObserver(logger.Component(log, "audit")))

	// 3. 计分与缓存
	cache := scoring.NewCache(rdb, cfg.Scoring.CacheTTL)
	feed := audit.NewFeed(rdb)

	// 4. 提交账本，有效提交会清除排行榜缓存并写入解题动态
	ledger := submission.NewLedger(db, engine, logger.Component(log, "submission"))
	scoringSvc := scoring.NewService(db, ledger, cache, logger.Component(log, "scoring"))
	ledger.AddListeners(scoringSvc, feed)

	return &App{
		Modules: modules,
		Secrets: secrets,
		Engine:  engine,
		Ledger:  ledger,
		Scoring: scoringSvc,
		Feed:    feed,
		Limiter: ratelimit.NewLimiter(ratelimit.Config{
			PerSecond: cfg.RateLimit.PerSecond,
			Burst:     cfg.RateLimit.Burst,
			IdleTTL:   limiterIdleTTL,
		}),
		cfg: cfg,
		db:  db,
		log: log,
	}
}
