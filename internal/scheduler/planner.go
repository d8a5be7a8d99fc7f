package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PlanOptions 贪心排考参数
type PlanOptions struct {
	Generate   GenerateOptions
	ExamType   string
	Actor      string
	MaxCommits int // 0 表示不限
}

// PlanSkip 被跳过的候选及原因
type PlanSkip struct {
	Candidate  Candidate   `json:"candidate"`
	Reason     string      `json:"reason"`
	Violations []Violation `json:"violations,omitempty"`
}

// PlanResult 贪心排考结果
type PlanResult struct {
	Committed []CommitResult `json:"committed"`
	Skipped   []PlanSkip     `json:"skipped"`
	Rounds    int            `json:"rounds"`
}

// Plan 贪心装箱：按分数顺序逐条提交候选，每成功一条即重新生成
//
// 每次提交都会改变考场占用和教师当日负载，因此每轮只提交一条。
// 某轮全部候选都被拒绝时结束。
// 结果仍是局部最优，不做回溯。
func (c *Coordinator) Plan(ctx context.Context, windowStart, windowEnd time.Time, opts PlanOptions) (*PlanResult, error) {
	result := &PlanResult{Committed: []CommitResult{}, Skipped: []PlanSkip{}}
	tried := make(map[string]bool)

	for opts.MaxCommits <= 0 || len(result.Committed) < opts.MaxCommits {
		snap, err := c.store.Snapshot(ctx)
		if err != nil {
			return result, err
		}
		candidates, err := Generate(ctx, snap, windowStart, windowEnd, opts.Generate)
		if err != nil {
			return result, err
		}
		result.Rounds++

		committed := false
		for i := range candidates {
			cand := &candidates[i]
			key := candidateKey(cand)
			if tried[key] {
				continue
			}
			tried[key] = true

			res, err := c.Commit(ctx, cand.Proposal(opts.ExamType, opts.Actor))
			if err == nil {
				result.Committed = append(result.Committed, *res)
				committed = true
				break
			}
			if ve, ok := AsValidationError(err); ok {
				result.Skipped = append(result.Skipped, PlanSkip{Candidate: *cand, Reason: "validation_failed", Violations: ve.Violations})
				continue
			}
			if errors.Is(err, ErrResourceConflict) {
				result.Skipped = append(result.Skipped, PlanSkip{Candidate: *cand, Reason: "resource_conflict"})
				continue
			}
			return result, err
		}
		if !committed {
			break
		}
	}

	c.logger.Info("贪心排考完成",
		zap.Int("committed", len(result.Committed)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("rounds", result.Rounds))
	return result, nil
}

func candidateKey(c *Candidate) string {
	return fmt.Sprintf("%s|%s|%s|%d", c.CourseID, c.RoomID, c.ProfessorID, c.StartTime.Unix())
}
