package submission

import (
	"net/http"
	"strconv"
	"time"

	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"github.com/SlpAus/flag-training-backend/internal/user"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 提供Flag提交与解题状态查询接口
type Handler struct {
	ledger *Ledger
	log    *zap.Logger
}

// NewHandler 创建提交接口
func NewHandler(ledger *Ledger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{ledger: ledger, log: log}
}

// SubmitRequestBody 是提交Flag的请求体
type SubmitRequestBody struct {
	Flag *string `json:"flag"`
}

// SubmitResponse 是提交Flag的响应
type SubmitResponse struct {
	Valid        bool      `json:"valid"`
	SubmissionID int64     `json:"submissionId"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// Submit 处理当前用户对某个模块的一次Flag提交
func (h *Handler) Submit(c *gin.Context) {
	userID, ok := user.CurrentUserID(c)
	if !ok {
		apperr.BadRequest(c, "缺少用户身份")
		return
	}
	moduleID, ok := apperr.ParseID(c, "id")
	if !ok {
		return
	}

	// 1. 绑定请求体，flag 缺失时交给核心逻辑判定为无效输入
	var body SubmitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	// 2. 校验并记录
	s, err := h.ledger.Submit(c.Request.Context(), userID, moduleID, body.Flag)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}

	// 3. 返回结果
	c.JSON(http.StatusOK, SubmitResponse{
		Valid:        s.Valid,
		SubmissionID: s.ID,
		SubmittedAt:  s.SubmittedAt,
	})
}

// Solved 返回当前用户是否已经解出某个模块
func (h *Handler) Solved(c *gin.Context) {
	userID, ok := user.CurrentUserID(c)
	if !ok {
		apperr.BadRequest(c, "缺少用户身份")
		return
	}
	moduleID, ok := apperr.ParseID(c, "id")
	if !ok {
		return
	}

	solved, err := h.ledger.HasValidSubmission(c.Request.Context(), userID, moduleID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moduleId": moduleID, "solved": solved})
}

// MySolved 返回当前用户已解出的全部模块ID
func (h *Handler) MySolved(c *gin.Context) {
	userID, ok := user.CurrentUserID(c)
	if !ok {
		apperr.BadRequest(c, "缺少用户身份")
		return
	}

	ids, err := h.ledger.ValidModuleIDsForUser(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"moduleIds": ids})
}

// MySubmissions 返回当前用户最近的提交记录
func (h *Handler) MySubmissions(c *gin.Context) {
	userID, ok := user.CurrentUserID(c)
	if !ok {
		apperr.BadRequest(c, "缺少用户身份")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		apperr.BadRequest(c, "limit 必须是整数")
		return
	}

	subs, err := h.ledger.ForUser(c.Request.Context(), userID, limit)
	if err != nil {
		apperr.Respond(c, h.log, err)
		return
	}
	if subs == nil {
		subs = []Submission{}
	}
	c.JSON(http.StatusOK, subs)
}
