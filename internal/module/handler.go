package module

import (
	"context"
	"net/http"

	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FlagDeriver 为某个用户派生某个模块的动态Flag
type FlagDeriver interface {
	Derive(ctx context.Context, userID, moduleID int64) (string, error)
}

// Handler 提供模块的查询与管理接口
type Handler struct {
	repo    *Repository
	deriver FlagDeriver
	log     *zap.Logger
}

// NewHandler 创建模块接口
func NewHandler(repo *Repository, deriver FlagDeriver, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{repo: repo, deriver: deriver, log: log}
}

// moduleRequest 是创建和更新模块的请求体
type moduleRequest struct {
	Name        string  `json:"name"`
	FlagEnabled bool    `json:"flagEnabled"`
	FlagExact   bool    `json:"flagExact"`
	Secret      *string `json:"secret"`
	Open        bool    `json:"open"`
}

func (r moduleRequest) toModule(id int64) *Module {
	return &Module{
		ID:          id,
		Name:        r.Name,
		FlagEnabled: r.FlagEnabled,
		FlagExact:   r.FlagExact,
		Secret:      r.Secret,
		Open:        r.Open,
	}
}

// ListOpen 返回对参与者可见的模块
func (h *Handler) ListOpen(c *gin.Context) {
	modules, err := h.repo.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	open := make([]Module, 0, len(modules))
	for _, m := range modules {
		if m.Open {
			open = append(open, m)
		}
	}
	c.JSON(http.StatusOK, open)
}

// ListAll 返回全部模块，供管理端使用
func (h *Handler) ListAll(c *gin.Context) {
	modules, err := h.repo.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, modules)
}

// Create 创建一个模块
func (h *Handler) Create(c *gin.Context) {
	var body moduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	m := body.toModule(0)
	if err := h.repo.Create(c.Request.Context(), m); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	h.log.Info("模块已创建", zap.Int64("module_id", m.ID), zap.Bool("flag_exact", m.FlagExact))
	c.JSON(http.StatusCreated, m)
}

// Update 整体替换一个模块的配置
func (h *Handler) Update(c *gin.Context) {
	id, ok := apperr.ParseID(c, "id")
	if !ok {
		return
	}
	var body moduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.repo.Update(ctx, body.toModule(id)); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	m, err := h.repo.Get(ctx, id)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	h.log.Info("模块已更新", zap.Int64("module_id", id))
	c.JSON(http.StatusOK, m)
}

// DeriveFlag 返回某个用户在某个模块上的动态Flag，供题目环境下发使用
func (h *Handler) DeriveFlag(c *gin.Context) {
	moduleID, ok := apperr.ParseID(c, "id")
	if !ok {
		return
	}
	userID, ok := apperr.ParseID(c, "userId")
	if !ok {
		return
	}

	flag, err := h.deriver.Derive(c.Request.Context(), userID, moduleID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "moduleId": moduleID, "flag": flag})
}
