package flag

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/SlpAus/flag-training-backend/internal/module"
	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"github.com/SlpAus/flag-training-backend/pkg/digest"
	"go.uber.org/zap"
)

// ModuleSource 是Flag引擎读取模块记录所需的最小接口
type ModuleSource interface {
	Get(ctx context.Context, id int64) (*module.Module, error)
}

// SecretSource 是Flag引擎读取密钥所需的最小接口
type SecretSource interface {
	UserSecret(ctx context.Context, userID int64) ([]byte, error)
	ServerSecret(ctx context.Context) ([]byte, error)
}

// Engine 负责派生和校验Flag。它不持有可变状态，可被任意并发调用。
type Engine struct {
	modules   ModuleSource
	secrets   SecretSource
	observers []Observer
	log       *zap.Logger
}

// NewEngine 创建一个Flag引擎，observers 会在每次校验得出结论后被通知
func NewEngine(modules ModuleSource, secrets SecretSource, log *zap.Logger, observers ...Observer) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		modules:   modules,
		secrets:   secrets,
		observers: observers,
		log:       log,
	}
}

// Derive 计算 (用户, 模块) 的期望动态Flag，返回128位小写十六进制字符串。
// 结果从不持久化，轮换任一密钥都会让之后的派生结果改变。
func (e *Engine) Derive(ctx context.Context, userID, moduleID int64) (string, error) {
	// 1. 校验ID
	if err := validateIDs(userID, moduleID); err != nil {
		return "", err
	}

	// 2. 读取模块并检查状态
	m, err := e.loadEnabled(ctx, moduleID)
	if err != nil {
		return "", err
	}
	if m.FlagExact {
		return "", fmt.Errorf("%w: 模块 %d 使用静态Flag，无法派生", apperr.ErrInvalidState, m.ID)
	}

	// 3-5. 计算摘要并编码
	return e.derive(ctx, userID, m)
}

// Verify 校验提交的Flag是否正确，比较时忽略大小写。
// 该函数对核心状态没有副作用，观察者的失败不会影响返回值。
func (e *Engine) Verify(ctx context.Context, userID, moduleID int64, submitted *string) (bool, error) {
	if submitted == nil {
		return false, fmt.Errorf("%w: 提交的Flag不能为空", apperr.ErrInvalidInput)
	}
	if err := validateIDs(userID, moduleID); err != nil {
		return false, err
	}

	m, err := e.loadEnabled(ctx, moduleID)
	if err != nil {
		return false, err
	}

	var expected string
	if m.FlagExact {
		expected = m.SecretValue()
	} else {
		expected, err = e.derive(ctx, userID, m)
		if err != nil {
			return false, err
		}
	}

	valid := equalFold(*submitted, expected)
	e.notify(ctx, Outcome{
		UserID:    userID,
		ModuleID:  moduleID,
		Exact:     m.FlagExact,
		Valid:     valid,
		CheckedAt: time.Now(),
	})
	return valid, nil
}

func (e *Engine) loadEnabled(ctx context.Context, moduleID int64) (*module.Module, error) {
	m, err := e.modules.Get(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if !m.FlagEnabled {
		return nil, fmt.Errorf("%w: 模块 %d 未启用Flag", apperr.ErrInvalidState, m.ID)
	}
	if m.Secret == nil {
		return nil, fmt.Errorf("%w: 模块 %d 启用了Flag但没有 Secret", apperr.ErrInvalidState, m.ID)
	}
	return m, nil
}

// derive 的密钥是 用户密钥||服务器密钥，消息是模块种子的UTF-8字节
func (e *Engine) derive(ctx context.Context, userID int64, m *module.Module) (string, error) {
	userKey, err := e.secrets.UserSecret(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("获取用户密钥失败: %w", err)
	}
	serverKey, err := e.secrets.ServerSecret(ctx)
	if err != nil {
		return "", fmt.Errorf("获取服务器密钥失败: %w", err)
	}

	combined := make([]byte, 0, len(userKey)+len(serverKey))
	combined = append(combined, userKey...)
	combined = append(combined, serverKey...)

	sum, err := digest.MAC(combined, []byte(m.SecretValue()))
	if err != nil {
		return "", fmt.Errorf("计算模块 %d 的Flag失败: %w", m.ID, err)
	}
	return hex.EncodeToString(sum), nil
}

func validateIDs(userID, moduleID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: 用户ID必须为正数，实际为 %d", apperr.ErrInvalidInput, userID)
	}
	if moduleID <= 0 {
		return fmt.Errorf("%w: 模块ID必须为正数，实际为 %d", apperr.ErrInvalidInput, moduleID)
	}
	return nil
}

// equalFold 以恒定时间比较两个字符串的小写形式
func equalFold(a, b string) bool {
	return digest.Equal([]byte(strings.ToLower(a)), []byte(strings.ToLower(b)))
}
