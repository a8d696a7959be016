package scoring

import (
	"net/http"
	"sort"

	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 提供排行榜与计分管理接口
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler 创建计分接口
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// ModuleScore 是模块内单个用户的得分
type ModuleScore struct {
	UserID int64 `json:"userId"`
	Score  int64 `json:"score"`
}

// RulesRequestBody 以 名次 -> 分值 的形式描述奖励表，名次0为基础分
type RulesRequestBody struct {
	Rules map[int]int64 `json:"rules"`
}

// CorrectionRequestBody 是新增分数修正的请求体
type CorrectionRequestBody struct {
	UserID int64  `json:"userId"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// GetScoreboard 返回全站排行榜
func (h *Handler) GetScoreboard(c *gin.Context) {
	entries, err := h.svc.Scoreboard(c.Request.Context())
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

// GetModuleScores 返回某个模块内每个解出者的得分，高分在前
func (h *Handler) GetModuleScores(c *gin.Context) {
	moduleID, ok := apperr.ParseID(c, "id")
	if !ok {
		return
	}
	scores, err := h.svc.ScoreModule(c.Request.Context(), moduleID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	list := make([]ModuleScore, 0, len(scores))
	for userID, score := range scores {
		list = append(list, ModuleScore{UserID: userID, Score: score})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].UserID < list[j].UserID
	})
	c.JSON(http.StatusOK, list)
}

// GetRules 返回模块的名次奖励表
func (h *Handler) GetRules(c *gin.Context) {
	moduleID, ok := apperr.ParseID(c, "id")
	if !ok {
		return
	}
	rules, err := h.svc.Rules(c.Request.Context(), moduleID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, RulesRequestBody{Rules: rules})
}

// PutRules 整体替换模块的名次奖励表
func (h *Handler) PutRules(c *gin.Context) {
	moduleID, ok := apperr.ParseID(c, "id")
	if !ok {
		return
	}
	var body RulesRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	if err := h.svc.SetRules(c.Request.Context(), moduleID, body.Rules); err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	h.log.Info("计分规则已更新", zap.Int64("module_id", moduleID), zap.Int("ranks", len(body.Rules)))
	c.JSON(http.StatusOK, body)
}

// PostCorrection 追加一条分数修正
func (h *Handler) PostCorrection(c *gin.Context) {
	var body CorrectionRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	corr, err := h.svc.AddCorrection(c.Request.Context(), body.UserID, body.Delta, body.Reason)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	h.log.Info("分数修正已记录",
		zap.Int64("user_id", corr.UserID),
		zap.Int64("delta", corr.Delta),
		zap.String("reason", corr.Reason))
	c.JSON(http.StatusCreated, corr)
}

// GetCorrections 返回某个用户的全部分数修正
func (h *Handler) GetCorrections(c *gin.Context) {
	userID, ok := apperr.ParseID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Corrections(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	if list == nil {
		list = []Correction{}
	}
	c.JSON(http.StatusOK, list)
}
