package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// 生命周期事件
const (
	EventConfirm  = "confirm"
	EventCancel   = "cancel"
	EventComplete = "complete"
)

// EventForStatus 目标状态对应的事件（HTTP 层按目标状态提交）
func EventForStatus(status string) (string, bool) {
	switch status {
	case model.ExamStatusConfirmed:
		return EventConfirm, true
	case model.ExamStatusCancelled:
		return EventCancel, true
	case model.ExamStatusCompleted:
		return EventComplete, true
	}
	return "", false
}

// newLifecycle 状态机：
//
//	planned ──confirm──▶ confirmed
//	planned|confirmed ──cancel──▶ cancelled
//	planned|confirmed ──complete──▶ completed（须已过结束时间）
//
// cancelled、completed 为终态。
func newLifecycle(a *model.ExamAssignment, now time.Time) *fsm.FSM {
	active := []string{model.ExamStatusPlanned, model.ExamStatusConfirmed}
	return fsm.NewFSM(
		a.Status,
		fsm.Events{
			{Name: EventConfirm, Src: []string{model.ExamStatusPlanned}, Dst: model.ExamStatusConfirmed},
			{Name: EventCancel, Src: active, Dst: model.ExamStatusCancelled},
			{Name: EventComplete, Src: active, Dst: model.ExamStatusCompleted},
		},
		fsm.Callbacks{
			"before_" + EventComplete: func(_ context.Context, e *fsm.Event) {
				if now.Before(a.EndTime()) {
					e.Cancel(ErrExamNotFinished)
				}
			},
		},
	)
}

// NextStatus 计算事件作用后的状态，不修改 a
func NextStatus(ctx context.Context, a *model.ExamAssignment, event string, now time.Time) (string, error) {
	machine := newLifecycle(a, now)
	if err := machine.Event(ctx, event); err != nil {
		var canceled fsm.CanceledError
		if errors.As(err, &canceled) && canceled.Err != nil {
			return "", canceled.Err
		}
		return "", fmt.Errorf("%w: %s 状态不支持 %s", ErrInvalidTransition, a.Status, event)
	}
	return machine.Current(), nil
}
