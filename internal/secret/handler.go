package secret

import (
	"net/http"

	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 提供服务端密钥的管理接口
type Handler struct {
	store *Store
	log   *zap.Logger
}

// NewHandler 创建密钥管理接口
func NewHandler(store *Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, log: log}
}

// Rotate 轮换服务端密钥，此后派生的所有动态Flag都会改变，已有提交记录不受影响
func (h *Handler) Rotate(c *gin.Context) {
	if err := h.store.RotateServerSecret(c.Request.Context()); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	h.log.Warn("服务端密钥已轮换", zap.String("request_id", c.GetString("requestID")))
	c.Status(http.StatusNoContent)
}
