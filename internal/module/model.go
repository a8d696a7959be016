package module

import "time"

// Module 定义了一个训练模块（题目）中与Flag相关的数据。
// 名称、描述等展示信息由管理端维护，这里只保留核心逻辑需要读取的字段。
type Module struct {
	ID int64 `gorm:"primaryKey" json:"id"`

	// Name 是模块的展示名称
	Name string `gorm:"not null" json:"name"`

	// FlagEnabled 为 false 时该模块不接受任何Flag提交
	FlagEnabled bool `json:"flagEnabled"`

	// FlagExact 为 true 时 Secret 就是字面Flag；否则 Secret 是动态Flag派生所用的种子
	FlagExact bool `json:"flagExact"`

	// Secret 绝不会通过API返回
	Secret *string `json:"-"`

	// Open 表示模块是否对参与者可见，与核心逻辑无关
	Open bool `json:"open"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SecretValue 返回 Secret 的值，为空指针时返回空字符串
func (m *Module) SecretValue() string {
	if m.Secret == nil {
		return ""
	}
	return *m.Secret
}
