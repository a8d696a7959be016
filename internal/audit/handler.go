package audit

import (
	"net/http"
	"strconv"

	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 提供最近解题动态接口
type Handler struct {
	feed *Feed
	log  *zap.Logger
}

// NewHandler 创建解题动态接口
func NewHandler(feed *Feed, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{feed: feed, log: log}
}

// GetRecent 返回最新的解题动态，limit 默认20
func (h *Handler) GetRecent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		apperr.BadRequest(c, "limit 必须是整数")
		return
	}
	entries, err := h.feed.Recent(c.Request.Context(), limit)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
