// Package apperr 定义了核心操作可能返回的错误种类。
// 各模块用 fmt.Errorf("%w: ...") 包装这些哨兵错误，调用方用 errors.Is 判断种类。
// 不属于这些种类的错误一律视为基础设施故障。
package apperr

import "errors"

var (
	// ErrInvalidInput 表示输入不合法（非正ID、空Flag等），不会产生任何副作用
	ErrInvalidInput = errors.New("输入无效")
	// ErrNotFound 表示引用的对象不存在
	ErrNotFound = errors.New("对象不存在")
	// ErrInvalidState 表示对象当前状态不允许该操作
	ErrInvalidState = errors.New("状态不允许此操作")
	// ErrAlreadySolved 表示该用户已经对该模块有过一次有效提交
	ErrAlreadySolved = errors.New("已经解出此模块")
)

// Kind 返回err所属的错误种类，不属于任何已知种类时返回nil
func Kind(err error) error {
	for _, kind := range []error{ErrInvalidInput, ErrNotFound, ErrInvalidState, ErrAlreadySolved} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
