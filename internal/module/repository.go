package module

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"gorm.io/gorm"
)

// Repository 负责模块记录的读取和管理端的写入
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建一个新的模块仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate 负责自动迁移模块表结构
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Module{}); err != nil {
		return fmt.Errorf("无法迁移module表: %w", err)
	}
	return nil
}

// Get 按ID读取模块
func (r *Repository) Get(ctx context.Context, id int64) (*Module, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: 模块ID必须为正数，实际为 %d", apperr.ErrInvalidInput, id)
	}
	var m Module
	if err := r.db.WithContext(ctx).Take(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 模块 %d", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("读取模块 %d 失败: %w", id, err)
	}
	return &m, nil
}

// List 返回全部模块，按ID升序
func (r *Repository) List(ctx context.Context) ([]Module, error) {
	var modules []Module
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&modules).Error; err != nil {
		return nil, fmt.Errorf("读取模块列表失败: %w", err)
	}
	return modules, nil
}

// Create 校验并创建一个新模块，成功后 m.ID 被填充
func (r *Repository) Create(ctx context.Context, m *Module) error {
	if err := validate(m); err != nil {
		return err
	}
	m.ID = 0
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("创建模块失败: %w", err)
	}
	return nil
}

// Update 用 m 的内容整体替换已存在的模块
func (r *Repository) Update(ctx context.Context, m *Module) error {
	if m.ID <= 0 {
		return fmt.Errorf("%w: 模块ID必须为正数，实际为 %d", apperr.ErrInvalidInput, m.ID)
	}
	if err := validate(m); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&Module{ID: m.ID}).
		Select("name", "flag_enabled", "flag_exact", "secret", "open").
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("更新模块 %d 失败: %w", m.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: 模块 %d", apperr.ErrNotFound, m.ID)
	}
	return nil
}

// validate 保证启用Flag的模块一定带有非空的 Secret
func validate(m *Module) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: 模块名称不能为空", apperr.ErrInvalidInput)
	}
	if m.Secret != nil && strings.TrimSpace(*m.Secret) == "" {
		return fmt.Errorf("%w: 模块 Secret 不能为空字符串", apperr.ErrInvalidInput)
	}
	if m.FlagEnabled && m.Secret == nil {
		return fmt.Errorf("%w: 启用Flag的模块必须设置 Secret", apperr.ErrInvalidInput)
	}
	return nil
}
