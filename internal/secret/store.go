package secret

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrEntropy 表示安全随机源不可用，属于基础设施故障
var ErrEntropy = errors.New("安全随机源不可用")

// loadTimeout 限制一次共享加载的总时长，它不随任何单个调用方的请求取消
const loadTimeout = 5 * time.Second

// Store 管理用户密钥与服务器密钥的惰性创建、读取和轮换。
type Store struct {
	db     *gorm.DB
	random io.Reader
	group  singleflight.Group
}

// NewStore 创建一个使用 crypto/rand 作为随机源的密钥仓库
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, random: rand.Reader}
}

// Migrate 负责自动迁移密钥相关的表结构
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&UserSecret{}, &ServerSecret{}); err != nil {
		return fmt.Errorf("无法迁移secret表: %w", err)
	}
	return nil
}

// UserSecret 返回用户的私有密钥，不存在时生成并持久化。
// 并发的首次访问最终都会返回同一个已持久化的值。
func (s *Store) UserSecret(ctx context.Context, userID int64) ([]byte, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: 用户ID必须为正数，实际为 %d", apperr.ErrInvalidInput, userID)
	}
	return s.shared(ctx, "user:"+strconv.FormatInt(userID, 10), func(ctx context.Context) ([]byte, error) {
		return s.loadOrCreateUserSecret(ctx, userID)
	})
}

func (s *Store) loadOrCreateUserSecret(ctx context.Context, userID int64) ([]byte, error) {
	db := s.db.WithContext(ctx)

	// 1. 先尝试读取已有的密钥
	var rec UserSecret
	err := db.Where("user_id = ?", userID).Take(&rec).Error
	if err == nil {
		return rec.Secret, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("读取用户 %d 的密钥失败: %w", userID, err)
	}

	// 2. 生成新密钥，以 "冲突则忽略" 的方式写入
	key, err := s.generate(UserSecretSize)
	if err != nil {
		return nil, err
	}
	candidate := UserSecret{UserID: userID, Secret: key}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate).Error; err != nil {
		return nil, fmt.Errorf("持久化用户 %d 的密钥失败: %w", userID, err)
	}

	// 3. 无论是谁赢得了写入，都以持久化的值为准
	if err := db.Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		return nil, fmt.Errorf("回读用户 %d 的密钥失败: %w", userID, err)
	}
	return rec.Secret, nil
}

// ServerSecret 返回全局服务器密钥，不存在时生成并持久化
func (s *Store) ServerSecret(ctx context.Context) ([]byte, error) {
	return s.shared(ctx, "server", s.loadOrCreateServerSecret)
}

func (s *Store) loadOrCreateServerSecret(ctx context.Context) ([]byte, error) {
	db := s.db.WithContext(ctx)

	var rec ServerSecret
	err := db.Where("id = ?", serverSecretID).Take(&rec).Error
	if err == nil {
		return rec.Secret, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("读取服务器密钥失败: %w", err)
	}

	key, err := s.generate(ServerSecretSize)
	if err != nil {
		return nil, err
	}
	candidate := ServerSecret{ID: serverSecretID, Secret: key, RotatedAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate).Error; err != nil {
		return nil, fmt.Errorf("持久化服务器密钥失败: %w", err)
	}
	if err := db.Where("id = ?", serverSecretID).Take(&rec).Error; err != nil {
		return nil, fmt.Errorf("回读服务器密钥失败: %w", err)
	}
	return rec.Secret, nil
}

// RotateServerSecret 用新的随机值替换服务器密钥。
// 此后派生的所有动态Flag都会改变，已有的提交记录不受影响。
func (s *Store) RotateServerSecret(ctx context.Context) error {
	key, err := s.generate(ServerSecretSize)
	if err != nil {
		return err
	}
	rec := ServerSecret{ID: serverSecretID, Secret: key, RotatedAt: time.Now()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret", "rotated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("轮换服务器密钥失败: %w", err)
	}
	return nil
}

// shared 合并同一个key上的并发加载。
// 加载本身运行在脱离调用方取消信号的上下文中，发起者断开连接不会让其他等待者失败；
// 每个调用方只按自己的上下文决定是否放弃等待。
func (s *Store) shared(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	ch := s.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return load(loadCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]byte)), nil
	}
}

func (s *Store) generate(n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := io.ReadFull(s.random, key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntropy, err)
	}
	return key, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
