package apperr

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 响应体中 code 字段的取值
const (
	CodeInvalidInput  = "invalid_input"
	CodeNotFound      = "not_found"
	CodeInvalidState  = "invalid_state"
	CodeAlreadySolved = "already_solved"
	CodeInternal      = "internal"
)

// HTTPStatus 把错误种类映射为HTTP状态码和响应代码
func HTTPStatus(err error) (int, string) {
	switch Kind(err) {
	case ErrInvalidInput:
		return http.StatusBadRequest, CodeInvalidInput
	case ErrNotFound:
		return http.StatusNotFound, CodeNotFound
	case ErrInvalidState:
		return http.StatusConflict, CodeInvalidState
	case ErrAlreadySolved:
		return http.StatusConflict, CodeAlreadySolved
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// Respond 把错误写成统一的JSON响应。
// 基础设施故障只返回笼统的提示，详细原因写入日志。
func Respond(c *gin.Context, log *zap.Logger, err error) {
	status, code := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		if log != nil {
			log.Error("请求处理失败",
				zap.String("path", c.FullPath()),
				zap.String("request_id", c.GetString("requestID")),
				zap.Error(err))
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "服务器内部错误", "code": code})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": code})
}

// BadRequest 用于请求体或路径参数无法解析的情况
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": CodeInvalidInput})
}

// ParseID 解析路径参数中的正整数ID，失败时已写好400响应
func ParseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, "路径参数 "+name+" 必须是正整数")
		return 0, false
	}
	return id, true
}
