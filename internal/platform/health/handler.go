package health

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 返回存活探针。数据库不可用时返回503，Redis降级只反映在响应体中。
func Handler(db *gorm.DB, checker *Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		dbOK := false
		if sqlDB, err := db.DB(); err == nil {
			dbOK = sqlDB.PingContext(ctx) == nil
		}

		redisState := StateDegraded
		if checker != nil {
			redisState = checker.State()
		}

		status, code := "ok", http.StatusOK
		if !dbOK {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"database": dbOK,
			"redis":    redisState.String(),
		})
	}
}
