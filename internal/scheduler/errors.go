package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// ── 排考引擎错误分类 ──
//
//   - *ValidationError   规则校验未通过，可预期，原样返回给调用方
//   - ErrResourceConflict 资源锁等待超时或乐观重试耗尽，调用方可重试
//   - ErrNotFound         引用的课程/考场/教师/考试安排不存在，不应重试
//   - ErrCancelled        调用方主动取消（如长时间的候选生成），不记为失败

var (
	ErrResourceConflict  = errors.New("资源繁忙，请稍后重试")
	ErrNotFound          = errors.New("引用的数据不存在")
	ErrCancelled         = errors.New("操作已取消")
	ErrInvalidTransition = errors.New("考试状态不允许此变更")
	ErrExamNotFinished   = errors.New("考试尚未结束，不能标记为已完成")
	ErrInvalidWindow     = errors.New("时间窗口无效")

	// errStaleSnapshot 快照版本落后且相关资源已被其他提交修改（内部重试用）
	errStaleSnapshot = errors.New("快照已过期")
)

// ValidationError 硬约束校验失败，携带本次发现的全部违规项
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("校验未通过(%d项): %s", len(e.Violations), strings.Join(parts, "; "))
}

// AsValidationError 提取校验错误
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}
