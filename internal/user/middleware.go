package user

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDKey 是gin上下文中保存当前用户ID的键
	UserIDKey = "userID"
	// AdminTokenHeader 是管理接口携带令牌的请求头
	AdminTokenHeader = "X-Admin-Token"
)

// LoadUserMiddleware 从上游身份层设置的请求头中读取用户ID并放入Gin上下文中。
// 请求头缺失时返回401，格式不正确或不是正整数时返回400。
func LoadUserMiddleware(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(header))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "缺少用户身份",
				"code":  "unauthenticated",
			})
			return
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "用户ID格式不正确",
				"code":  "invalid_input",
			})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// CurrentUserID 读取 LoadUserMiddleware 放入上下文的用户ID
func CurrentUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// RateLimitKey 把当前用户ID作为限流键，未识别身份的请求不参与限流
func RateLimitKey(c *gin.Context) (string, bool) {
	id, ok := CurrentUserID(c)
	if !ok {
		return "", false
	}
	return strconv.FormatInt(id, 10), true
}

// RequireAdminMiddleware 要求请求头中的管理令牌与配置一致。
// 未配置令牌时所有管理请求都被拒绝。
func RequireAdminMiddleware(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		given := []byte(c.GetHeader(AdminTokenHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "无权访问管理接口",
				"code":  "forbidden",
			})
			return
		}
		c.Next()
	}
}
