package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Verifier 是账本校验Flag所需的最小接口
type Verifier interface {
	Verify(ctx context.Context, userID, moduleID int64, submitted *string) (bool, error)
}

// SolveListener 在一条有效提交落库后被通知，失败只会被记录
type SolveListener interface {
	SolveRecorded(ctx context.Context, s Submission) error
}

// Ledger 记录所有提交尝试，并保证每个 (用户, 模块) 最多一条有效提交
type Ledger struct {
	db        *gorm.DB
	verifier  Verifier
	listeners []SolveListener
	log       *zap.Logger
	now       func() time.Time
}

// NewLedger 创建一个提交账本
func NewLedger(db *gorm.DB, verifier Verifier, log *zap.Logger, listeners ...SolveListener) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		db:        db,
		verifier:  verifier,
		listeners: listeners,
		log:       log,
		now:       time.Now,
	}
}

// AddListeners 追加有效提交的监听者，只能在账本开始处理请求之前调用
func (l *Ledger) AddListeners(listeners ...SolveListener) {
	l.listeners = append(l.listeners, listeners...)
}

// Migrate 负责自动迁移提交表结构，包括部分唯一索引
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Submission{}); err != nil {
		return fmt.Errorf("无法迁移submission表: %w", err)
	}
	return nil
}

// Submit 校验并记录一次提交。
// 已有有效提交时返回 ErrAlreadySolved，且本次尝试不会被记录；
// 否则无论对错都会记录一条提交并返回。
func (l *Ledger) Submit(ctx context.Context, userID, moduleID int64, flag *string) (*Submission, error) {
	// 1. 校验ID
	if err := validateIDs(userID, moduleID); err != nil {
		return nil, err
	}

	if err := validateFlag(flag); err != nil {
		return nil, err
	}

	// 2. 快速路径：已经解出则直接拒绝
	solved, err := l.HasValidSubmission(ctx, userID, moduleID)
	if err != nil {
		return nil, err
	}
	if solved {
		return nil, alreadySolved(userID, moduleID)
	}

	// 3. 校验Flag，任何错误都在写入之前短路返回
	valid, err := l.verifier.Verify(ctx, userID, moduleID, flag)
	if err != nil {
		return nil, err
	}

	// 4. 记录本次提交；并发的有效提交由唯一索引裁决
	s := &Submission{
		UserID:      userID,
		ModuleID:    moduleID,
		Flag:        *flag,
		Valid:       valid,
		SubmittedAt: l.now().UTC(),
	}
	if err := l.record(ctx, s); err != nil {
		return nil, err
	}

	// 5. 通知监听者
	if valid {
		l.notifySolved(ctx, *s)
	}
	return s, nil
}

// validateFlag 拒绝无法原样存储的提交文本，nil 交给校验器判定
func validateFlag(flag *string) error {
	if flag == nil {
		return nil
	}
	switch {
	case len(*flag) > MaxFlagLength:
		return fmt.Errorf("%w: Flag长度不能超过 %d 字节", apperr.ErrInvalidInput, MaxFlagLength)
	case strings.IndexByte(*flag, 0) >= 0:
		return fmt.Errorf("%w: Flag不能包含NUL字符", apperr.ErrInvalidInput)
	case !utf8.ValidString(*flag):
		return fmt.Errorf("%w: Flag必须是合法的UTF-8文本", apperr.ErrInvalidInput)
	}
	return nil
}

// record 插入一条提交，违反有效提交唯一索引时返回 ErrAlreadySolved
func (l *Ledger) record(ctx context.Context, s *Submission) error {
	err := l.db.WithContext(ctx).Create(s).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return alreadySolved(s.UserID, s.ModuleID)
	}
	return fmt.Errorf("记录提交失败: %w", err)
}

func (l *Ledger) notifySolved(ctx context.Context, s Submission) {
	for _, listener := range l.listeners {
		if err := listener.SolveRecorded(ctx, s); err != nil {
			l.log.Warn("有效提交监听者执行失败",
				zap.Int64("submission_id", s.ID),
				zap.Int64("user_id", s.UserID),
				zap.Int64("module_id", s.ModuleID),
				zap.Error(err))
		}
	}
}

// ValidSubmissionsForModule 返回模块的全部有效提交，按提交时间升序
func (l *Ledger) ValidSubmissionsForModule(ctx context.Context, moduleID int64) ([]Submission, error) {
	if moduleID <= 0 {
		return nil, fmt.Errorf("%w: 模块ID必须为正数，实际为 %d", apperr.ErrInvalidInput, moduleID)
	}
	var subs []Submission
	err := l.db.WithContext(ctx).
		Where("module_id = ? AND valid = ?", moduleID, true).
		Order("submitted_at ASC, id ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("读取模块 %d 的有效提交失败: %w", moduleID, err)
	}
	return subs, nil
}

// ValidSubmissions 返回所有模块的有效提交，按模块、提交时间升序
func (l *Ledger) ValidSubmissions(ctx context.Context) ([]Submission, error) {
	var subs []Submission
	err := l.db.WithContext(ctx).
		Where("valid = ?", true).
		Order("module_id ASC, submitted_at ASC, id ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("读取有效提交失败: %w", err)
	}
	return subs, nil
}

// ValidModuleIDsForUser 返回用户已解出的模块ID，按ID升序
func (l *Ledger) ValidModuleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: 用户ID必须为正数，实际为 %d", apperr.ErrInvalidInput, userID)
	}
	var ids []int64
	err := l.db.WithContext(ctx).Model(&Submission{}).
		Where("user_id = ? AND valid = ?", userID, true).
		Order("module_id ASC").
		Pluck("module_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("读取用户 %d 已解出的模块失败: %w", userID, err)
	}
	return ids, nil
}

// HasValidSubmission 判断用户是否已经解出该模块
func (l *Ledger) HasValidSubmission(ctx context.Context, userID, moduleID int64) (bool, error) {
	if err := validateIDs(userID, moduleID); err != nil {
		return false, err
	}
	var count int64
	err := l.db.WithContext(ctx).Model(&Submission{}).
		Where("user_id = ? AND module_id = ? AND valid = ?", userID, moduleID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询有效提交失败: %w", err)
	}
	return count > 0, nil
}

// ForUser 返回用户最近的提交尝试，最新的在前
func (l *Ledger) ForUser(ctx context.Context, userID int64, limit int) ([]Submission, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: 用户ID必须为正数，实际为 %d", apperr.ErrInvalidInput, userID)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var subs []Submission
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("submitted_at DESC, id DESC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("读取用户 %d 的提交记录失败: %w", userID, err)
	}
	return subs, nil
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

func alreadySolved(userID, moduleID int64) error {
	return fmt.Errorf("%w: 用户 %d 已解出模块 %d", apperr.ErrAlreadySolved, userID, moduleID)
}
