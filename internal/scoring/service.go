package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/SlpAus/flag-training-backend/internal/platform/apperr"
	"github.com/SlpAus/flag-training-backend/internal/submission"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// SubmissionSource 是计分所需的有效提交查询接口
type SubmissionSource interface {
	ValidSubmissionsForModule(ctx context.Context, moduleID int64) ([]submission.Submission, error)
	ValidSubmissions(ctx context.Context) ([]submission.Submission, error)
}

// Service 根据有效提交、规则表和修正记录计算分数与排行榜
type Service struct {
	db    *gorm.DB
	subs  SubmissionSource
	cache *Cache
	log   *zap.Logger
}

// NewService 创建计分服务，cache 可以为nil
func NewService(db *gorm.DB, subs SubmissionSource, cache *Cache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, subs: subs, cache: cache, log: log}
}

// Migrate 负责自动迁移规则表与修正表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ScoreRule{}, &Correction{}); err != nil {
		return fmt.Errorf("无法迁移scoring表: %w", err)
	}
	return nil
}

// ScoreModule 返回模块内每个解出者的得分
func (s *Service) ScoreModule(ctx context.Context, moduleID int64) (map[int64]int64, error) {
	if moduleID <= 0 {
		return nil, fmt.Errorf("%w: 模块ID必须为正数，实际为 %d", apperr.ErrInvalidInput, moduleID)
	}
	// 1. 读取名次奖励表
	table, err := s.Rules(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	// 2. 读取按时间排序的有效提交
	subs, err := s.subs.ValidSubmissionsForModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	// 3-4. 分配名次并计分
	return scoreModule(subs, table).scores, nil
}

// Scoreboard 返回排行榜，优先使用缓存，未命中时重新计算并回填
func (s *Service) Scoreboard(ctx context.Context) ([]Entry, error) {
	entries, hit, err := s.cache.Get(ctx)
	if err != nil {
		s.log.Warn("排行榜缓存不可用，改为直接计算", zap.Error(err))
	}
	if hit {
		return entries, nil
	}

	// 先记下代数，计算期间若有新的解题，回填会被放弃
	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		s.log.Warn("读取排行榜代数失败，本次不回填缓存", zap.Error(genErr))
	}

	entries, err = s.Compute(ctx)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		if _, err := s.cache.Set(ctx, gen, entries); err != nil {
			s.log.Warn("回填排行榜缓存失败", zap.Error(err))
		}
	}
	return entries, nil
}

// Compute 绕过缓存，从账本完整地重新计算排行榜
func (s *Service) Compute(ctx context.Context) ([]Entry, error) {
	var (
		rules       map[int64]map[int]int64
		subs        []submission.Submission
		corrections map[int64]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rules, err = s.allRules(gctx)
		return err
	})
	g.Go(func() (err error) {
		subs, err = s.subs.ValidSubmissions(gctx)
		return err
	})
	g.Go(func() (err error) {
		corrections, err = s.correctionTotals(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	grouped := groupByModule(subs)
	results := make([]moduleResult, 0, len(grouped))
	for moduleID, moduleSubs := range grouped {
		results = append(results, scoreModule(moduleSubs, rules[moduleID]))
	}
	return buildScoreboard(results, corrections), nil
}

// Rules 返回模块的名次奖励表，没有规则时返回空表
func (s *Service) Rules(ctx context.Context, moduleID int64) (map[int]int64, error) {
	if moduleID <= 0 {
		return nil, fmt.Errorf("%w: 模块ID必须为正数，实际为 %d", apperr.ErrInvalidInput, moduleID)
	}
	var rows []ScoreRule
	if err := s.db.WithContext(ctx).Where("module_id = ?", moduleID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取模块 %d 的计分规则失败: %w", moduleID, err)
	}
	table := make(map[int]int64, len(rows))
	for _, r := range rows {
		table[r.Rank] = r.Points
	}
	return table, nil
}

func (s *Service) allRules(ctx context.Context) (map[int64]map[int]int64, error) {
	var rows []ScoreRule
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取计分规则失败: %w", err)
	}
	rules := make(map[int64]map[int]int64)
	for _, r := range rows {
		if rules[r.ModuleID] == nil {
			rules[r.ModuleID] = make(map[int]int64)
		}
		rules[r.ModuleID][r.Rank] = r.Points
	}
	return rules, nil
}

// SetRules 在一个事务中整体替换模块的名次奖励表
func (s *Service) SetRules(ctx context.Context, moduleID int64, table map[int]int64) error {
	if moduleID <= 0 {
		return fmt.Errorf("%w: 模块ID必须为正数，实际为 %d", apperr.ErrInvalidInput, moduleID)
	}
	rows := make([]ScoreRule, 0, len(table))
	for rank, points := range table {
		if rank < BaseRank {
			return fmt.Errorf("%w: 名次不能为负数: %d", apperr.ErrInvalidInput, rank)
		}
		rows = append(rows, ScoreRule{ModuleID: moduleID, Rank: rank, Points: points})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("module_id = ?", moduleID).Delete(&ScoreRule{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("保存模块 %d 的计分规则失败: %w", moduleID, err)
	}
	s.invalidate(ctx)
	return nil
}

// AddCorrection 追加一条手工分数修正
func (s *Service) AddCorrection(ctx context.Context, userID, delta int64, reason string) (*Correction, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: 用户ID必须为正数，实际为 %d", apperr.ErrInvalidInput, userID)
	}
	if delta == 0 {
		return nil, fmt.Errorf("%w: 修正分值不能为0", apperr.ErrInvalidInput)
	}
	c := &Correction{UserID: userID, Delta: delta, Reason: strings.TrimSpace(reason)}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("保存分数修正失败: %w", err)
	}
	s.invalidate(ctx)
	return c, nil
}

// Corrections 返回用户的全部修正记录，按时间升序
func (s *Service) Corrections(ctx context.Context, userID int64) ([]Correction, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: 用户ID必须为正数，实际为 %d", apperr.ErrInvalidInput, userID)
	}
	var list []Correction
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("读取用户 %d 的分数修正失败: %w", userID, err)
	}
	return list, nil
}

func (s *Service) correctionTotals(ctx context.Context) (map[int64]int64, error) {
	var rows []struct {
		UserID int64
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&Correction{}).
		Select("user_id, CAST(SUM(delta) AS BIGINT) AS total").
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("汇总分数修正失败: %w", err)
	}
	totals := make(map[int64]int64, len(rows))
	for _, r := range rows {
		totals[r.UserID] = r.Total
	}
	return totals, nil
}

// SolveRecorded 在出现新的有效提交时清除排行榜缓存
func (s *Service) SolveRecorded(ctx context.Context, _ submission.Submission) error {
	return s.cache.Invalidate(ctx)
}

// InvalidateCache 清除排行榜缓存，供Redis恢复后的清理流程调用
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("清除排行榜缓存失败", zap.Error(err))
	}
}
