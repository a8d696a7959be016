package api

import (
	"time"

	"github.com/SlpAus/flag-training-backend/internal/audit"
	"github.com/SlpAus/flag-training-backend/internal/module"
	"github.com/SlpAus/flag-training-backend/internal/platform/health"
	"github.com/SlpAus/flag-training-backend/internal/platform/logger"
	"github.com/SlpAus/flag-training-backend/internal/scoring"
	"github.com/SlpAus/flag-training-backend/internal/secret"
	"github.com/SlpAus/flag-training-backend/internal/submission"
	"github.com/SlpAus/flag-training-backend/internal/user"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter 创建带全局中间件的Gin引擎并注册所有路由
func (a *App) NewRouter(checker *health.Checker) *gin.Engine {
	switch a.cfg.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(a.cfg.Server.Mode)
	}

	httpLog := logger.Component(a.log, "http")
	r := gin.New()
	r.Use(RequestIDMiddleware(), AccessLogMiddleware(httpLog), RecoveryMiddleware(httpLog))

	if origins := a.cfg.Server.Cors.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", a.cfg.Auth.UserHeader, user.AdminTokenHeader},
			ExposeHeaders: []string{"Content-Length", RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/healthz", health.Handler(a.db, checker))
	a.SetupRoutes(r)
	return r
}

// SetupRoutes 注册项目的所有API路由
func (a *App) SetupRoutes(router *gin.Engine) {
	moduleHandler := module.NewHandler(a.Modules, a.Engine, logger.Component(a.log, "module"))
	submissionHandler := submission.NewHandler(a.Ledger, logger.Component(a.log, "submission"))
	scoringHandler := scoring.NewHandler(a.Scoring, logger.Component(a.log, "scoring"))
	secretHandler := secret.NewHandler(a.Secrets, logger.Component(a.log, "secret"))
	feedHandler := audit.NewHandler(a.Feed, logger.Component(a.log, "audit"))

	api := router.Group("/api")
	{
		// 公开的只读路由
		api.GET("/modules", moduleHandler.ListOpen)
		api.GET("/scoreboard", scoringHandler.GetScoreboard)
		api.GET("/solves/recent", feedHandler.GetRecent)

		// 需要用户身份的路由
		participant := api.Group("", user.LoadUserMiddleware(a.cfg.Auth.UserHeader))
		{
			participant.POST("/modules/:id/submissions", a.Limiter.Middleware(user.RateLimitKey), submissionHandler.Submit)
			participant.GET("/modules/:id/solved", submissionHandler.Solved)
			participant.GET("/me/solved", submissionHandler.MySolved)
			participant.GET("/me/submissions", submissionHandler.MySubmissions)
		}

		// 管理路由
		admin := api.Group("/admin", user.RequireAdminMiddleware(a.cfg.Auth.AdminToken))
		{
			admin.GET("/modules", moduleHandler.ListAll)
			admin.POST("/modules", moduleHandler.Create)
			admin.PUT("/modules/:id", moduleHandler.Update)
			admin.GET("/modules/:id/flags/:userId", moduleHandler.DeriveFlag)
			admin.GET("/modules/:id/rules", scoringHandler.GetRules)
			admin.PUT("/modules/:id/rules", scoringHandler.PutRules)
			admin.GET("/modules/:id/scores", scoringHandler.GetModuleScores)
			admin.POST("/corrections", scoringHandler.PostCorrection)
			admin.GET("/users/:id/corrections", scoringHandler.GetCorrections)
			admin.POST("/server-secret/rotate", secretHandler.Rotate)
		}
	}
}
