// Package digest 提供带密钥的消息认证码原语。
package digest

import (
	"crypto/hmac"
	"crypto/sha512"
	"errors"
)

// Size 是 MAC 输出的字节数 (HMAC-SHA512)
const Size = sha512.Size

// ErrInvalidInput 在密钥或消息缺失(nil)时返回
var ErrInvalidInput = errors.New("digest: 密钥和消息都不能为空")

// MAC 使用 HMAC-SHA512 计算 message 在 key 下的认证码。
// 空切片是合法输入，nil 表示缺失。
func MAC(key, message []byte) ([]byte, error) {
	if key == nil || message == nil {
		return nil, ErrInvalidInput
	}
	mac := hmac.New(sha512.New, key)
	mac.Write(message)
	return mac.Sum(nil), nil
}

// Equal 以恒定时间比较两个认证码，防止时序攻击
func Equal(a, b []byte) bool {
	return hmac.Equal(a, b)
}
