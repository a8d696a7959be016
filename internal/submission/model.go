package submission

import "time"

// MaxFlagLength 是提交的Flag允许的最大字节数
const MaxFlagLength = 1024

// Submission 记录一次Flag提交尝试，只追加、不修改。
// (user_id, module_id) 上带 "valid = true" 条件的唯一索引保证每个用户对每个模块最多一条有效提交。
type Submission struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	UserID   int64 `gorm:"not null;uniqueIndex:idx_submission_valid_solve,where:valid = true,priority:1;index:idx_submission_user" json:"userId"`
	ModuleID int64 `gorm:"not null;uniqueIndex:idx_submission_valid_solve,where:valid = true,priority:2;index:idx_submission_module" json:"moduleId"`

	// Flag 是用户提交的原始文本
	Flag string `gorm:"not null" json:"-"`

	Valid       bool      `gorm:"not null" json:"valid"`
	SubmittedAt time.Time `gorm:"not null;index" json:"submittedAt"`
}
