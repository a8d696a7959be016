package scoring

import "time"

// BaseRank 是规则表中表示 "任意正确解答" 的名次，其分值即基础分
const BaseRank = 0

// ScoreRule 定义模块在某个名次上的奖励分。Rank 为0的记录是基础分。
type ScoreRule struct {
	ModuleID int64 `gorm:"primaryKey;autoIncrement:false" json:"moduleId"`
	Rank     int   `gorm:"primaryKey;autoIncrement:false" json:"rank"`
	Points   int64 `gorm:"not null" json:"points"`
}

// Correction 是一条与提交无关的手工分数调整，只追加
type Correction struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"userId"`
	Delta     int64     `gorm:"not null" json:"delta"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Medals 统计用户在各模块中获得第1/2/3名的次数
type Medals struct {
	Gold   int `json:"gold"`
	Silver int `json:"silver"`
	Bronze int `json:"bronze"`
}

// Entry 是排行榜中的一行，每次读取时由提交和修正记录重新计算
type Entry struct {
	UserID int64  `json:"userId"`
	Rank   int    `json:"rank"`
	Score  int64  `json:"score"`
	Medals Medals `json:"medals"`
}
