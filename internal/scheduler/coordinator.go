package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// 变更通知动作
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionTransition = "transition"
)

// Proposal 一次提交请求；AssignmentID 为空表示新增
type Proposal struct {
	AssignmentID    string    `json:"assignment_id,omitempty"`
	CourseID        string    `json:"course_id"`
	ProfessorID     string    `json:"professor_id"`
	RoomID          string    `json:"room_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	ExamType        string    `json:"exam_type"`
	Actor           string    `json:"-"`
}

// CommitResult 提交成功的结果
type CommitResult struct {
	Assignment model.ExamAssignment `json:"assignment"`
	Advisories []Advisory           `json:"advisories,omitempty"`
}

// ChangeEvent 每次成功写入后发出的变更通知，由外部审计模块落地
type ChangeEvent struct {
	Entity string                `json:"entity"`
	ID     string                `json:"id"`
	Action string                `json:"action"`
	Actor  string                `json:"actor,omitempty"`
	Before *model.ExamAssignment `json:"before"`
	After  *model.ExamAssignment `json:"after"`
	At     time.Time             `json:"at"`
}

// Notifier 变更通知接收方
type Notifier interface {
	Notify(ctx context.Context, ev ChangeEvent) error
}

// CoordinatorOptions 提交协调参数
type CoordinatorOptions struct {
	Rules       Rules
	LockTimeout time.Duration // 资源锁等待上限，同时限制重试总耗时
	MaxRetries  int           // 快照过期后的最大重试次数
	Now         func() time.Time
}

// Coordinator 考试安排唯一的写入口
//
// 提交流程：刷新维度数据 → 按资源键（考场、教师、注册学生）有序加锁 →
// 读取最新快照复核 → 写入 Store（版本比对）→ 发出变更通知。
// 锁保证同一资源上的提交按到达顺序串行；Store 的版本比对兜住
// 锁外的写入（例如加锁后才注册的学生）。
type Coordinator struct {
	store    *Store
	locks    *LockManager
	notifier Notifier
	opts     CoordinatorOptions
	logger   *zap.Logger
}

// NewCoordinator 创建 Coordinator；notifier 可为 nil
func NewCoordinator(store *Store, notifier Notifier, opts CoordinatorOptions, logger *zap.Logger) *Coordinator {
	def := DefaultRules()
	if opts.Rules.MaxDailyPerProfessor <= 0 {
		opts.Rules.MaxDailyPerProfessor = def.MaxDailyPerProfessor
	}
	if opts.Rules.CapacityMargin <= 0 {
		opts.Rules.CapacityMargin = def.CapacityMargin
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 3 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		store:    store,
		locks:    NewLockManager(),
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// Store 底层 Store（只读访问用）
func (c *Coordinator) Store() *Store { return c.store }

// Rules 当前生效的硬约束参数
func (c *Coordinator) Rules() Rules { return c.opts.Rules }

// ════════════════════════════════════════════════════════════
// Validate — 试运行校验，不加锁、不写入
// ════════════════════════════════════════════════════════════

func (c *Coordinator) Validate(ctx context.Context, p Proposal) ([]Violation, []Advisory, error) {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		c.logger.Error("读取排考快照失败", zap.Error(err))
		return nil, nil, err
	}
	proposed, err := resolveProposal(snap, p)
	if err != nil {
		return nil, nil, err
	}
	violations := c.opts.Rules.Validate(&proposed, snap)
	if violations == nil {
		violations = []Violation{}
	}
	return violations, Advise(&proposed, snap), nil
}

// ════════════════════════════════════════════════════════════
// Commit — 复核后写入
// ════════════════════════════════════════════════════════════

func (c *Coordinator) Commit(ctx context.Context, p Proposal) (*CommitResult, error) {
	fresh, err := c.store.FreshSnapshot(ctx)
	if err != nil {
		c.logger.Error("读取排考快照失败", zap.Error(err))
		return nil, err
	}
	proposed, err := resolveProposal(fresh, p)
	if err != nil {
		return nil, err
	}

	release, err := c.acquire(ctx, resourceKeys(&proposed, fresh.Catalog()))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		result *CommitResult
		event  ChangeEvent
	)
	err = c.retry(ctx, func() error {
		snap, err := c.store.Snapshot(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		candidate := proposed
		if violations := c.opts.Rules.Validate(&candidate, snap); len(violations) > 0 {
			return backoff.Permanent(&ValidationError{Violations: violations})
		}
		candidate.EnrolledAtCommit = snap.RegisteredCount(candidate.CourseID)

		before, applied, err := c.store.Apply(ctx, candidate, snap)
		if err != nil {
			if errors.Is(err, errStaleSnapshot) {
				return err
			}
			return backoff.Permanent(err)
		}

		action := ActionCreate
		if before != nil {
			action = ActionUpdate
		}
		after := applied
		result = &CommitResult{Assignment: applied, Advisories: Advise(&applied, snap)}
		event = ChangeEvent{Action: action, ID: applied.AssignmentID, Before: before, After: &after}
		return nil
	})
	if err != nil {
		return nil, c.commitError("提交考试安排失败", err, zap.String("course_id", proposed.CourseID))
	}

	event.Actor = p.Actor
	c.notify(ctx, event)
	c.logger.Info("考试安排已提交",
		zap.String("assignment_id", result.Assignment.AssignmentID),
		zap.String("course_id", result.Assignment.CourseID),
		zap.String("room_id", result.Assignment.RoomID),
		zap.Time("start_time", result.Assignment.StartTime),
		zap.String("action", event.Action))
	return result, nil
}

// ════════════════════════════════════════════════════════════
// Transition — 生命周期变更（确认 / 取消 / 完成）
// ════════════════════════════════════════════════════════════

func (c *Coordinator) Transition(ctx context.Context, id, event, actor string) (*model.ExamAssignment, error) {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		c.logger.Error("读取排考快照失败", zap.Error(err))
		return nil, err
	}
	current, ok := snap.Assignment(id)
	if !ok {
		return nil, notFound("考试安排", id)
	}

	release, err := c.acquire(ctx, []string{lockPrefixRoom + current.RoomID, lockPrefixProfessor + current.ProfessorID})
	if err != nil {
		return nil, err
	}
	defer release()

	var ev ChangeEvent
	err = c.retry(ctx, func() error {
		snap, err := c.store.Snapshot(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		cur, ok := snap.Assignment(id)
		if !ok {
			return backoff.Permanent(notFound("考试安排", id))
		}
		status, err := NextStatus(ctx, &cur, event, c.opts.Now())
		if err != nil {
			return backoff.Permanent(err)
		}
		next := cur
		next.Status = status
		next.UpdatedBy = actorRef(actor)

		before, applied, err := c.store.Apply(ctx, next, snap)
		if err != nil {
			if errors.Is(err, errStaleSnapshot) {
				return err
			}
			return backoff.Permanent(err)
		}
		after := applied
		ev = ChangeEvent{Action: ActionTransition, ID: id, Actor: actor, Before: before, After: &after}
		return nil
	})
	if err != nil {
		return nil, c.commitError("考试状态变更失败", err, zap.String("assignment_id", id), zap.String("event", event))
	}

	c.notify(ctx, ev)
	c.logger.Info("考试状态已变更",
		zap.String("assignment_id", id),
		zap.String("from", ev.Before.Status),
		zap.String("to", ev.After.Status))
	return ev.After, nil
}

// CompleteElapsed 将已过结束时间的活跃安排标记为 completed，返回处理条数
// 单条失败只记录日志，不中断
func (c *Coordinator) CompleteElapsed(ctx context.Context) (int, error) {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	now := c.opts.Now()
	done := 0
	for _, a := range snap.Active() {
		if err := ctx.Err(); err != nil {
			return done, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		if now.Before(a.EndTime()) {
			continue
		}
		if _, err := c.Transition(ctx, a.AssignmentID, EventComplete, ""); err != nil {
			c.logger.Warn("自动完结考试失败", zap.String("assignment_id", a.AssignmentID), zap.Error(err))
			continue
		}
		done++
	}
	if done > 0 {
		c.logger.Info("已自动完结考试", zap.Int("count", done))
	}
	return done, nil
}

// ── 内部辅助 ──

// acquire 在 LockTimeout 内获取资源锁；超时返回 ErrResourceConflict，调用方取消返回 ErrCancelled
func (c *Coordinator) acquire(ctx context.Context, keys []string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, c.opts.LockTimeout)
	defer cancel()
	release, err := c.locks.Acquire(lockCtx, keys)
	if err == nil {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	c.logger.Warn("等待资源锁超时", zap.Strings("keys", normalizeKeys(keys)), zap.Duration("timeout", c.opts.LockTimeout))
	return nil, fmt.Errorf("%w: 等待资源锁超时", ErrResourceConflict)
}

// retry 快照过期时指数退避重试，次数与总耗时均有上限
func (c *Coordinator) retry(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.opts.LockTimeout
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxRetries)), ctx))
}

// commitError 错误归类并按类别记录日志
func (c *Coordinator) commitError(msg string, err error, fields ...zap.Field) error {
	switch {
	case errors.Is(err, errStaleSnapshot):
		c.logger.Warn(msg+": 重试耗尽", fields...)
		return fmt.Errorf("%w: 重试耗尽", ErrResourceConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.logger.Info(msg+": 已取消", fields...)
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if _, ok := AsValidationError(err); ok {
		c.logger.Info(msg+": 校验未通过", append(fields, zap.Error(err))...)
		return err
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrExamNotFinished) || errors.Is(err, ErrResourceConflict) {
		return err
	}
	c.logger.Error(msg, append(fields, zap.Error(err))...)
	return err
}

// notify 通知失败不回滚已提交的写入，只记录告警
func (c *Coordinator) notify(ctx context.Context, ev ChangeEvent) {
	if c.notifier == nil {
		return
	}
	ev.Entity = "ExamAssignment"
	ev.At = c.opts.Now()
	if err := c.notifier.Notify(ctx, ev); err != nil {
		c.logger.Warn("发送变更通知失败", zap.String("assignment_id", ev.ID), zap.Error(err))
	}
}

// resolveProposal 将请求展开为完整的考试安排，引用缺失时返回 ErrNotFound
func resolveProposal(view *Snapshot, p Proposal) (model.ExamAssignment, error) {
	var a model.ExamAssignment
	if p.AssignmentID != "" {
		existing, ok := view.Assignment(p.AssignmentID)
		if !ok {
			return a, notFound("考试安排", p.AssignmentID)
		}
		if !existing.IsActive() {
			return a, fmt.Errorf("%w: %s 状态的考试不能修改", ErrInvalidTransition, existing.Status)
		}
		a = existing
	} else {
		a.Status = model.ExamStatusPlanned
		a.ExamType = model.ExamTypeFinal
		a.CreatedBy = actorRef(p.Actor)
	}

	if p.CourseID != "" {
		a.CourseID = p.CourseID
	}
	if p.ProfessorID != "" {
		a.ProfessorID = p.ProfessorID
	}
	if p.RoomID != "" {
		a.RoomID = p.RoomID
	}
	if !p.StartTime.IsZero() {
		a.StartTime = p.StartTime
	}
	if p.DurationMinutes != 0 {
		a.DurationMinutes = p.DurationMinutes
	}
	if p.ExamType != "" {
		a.ExamType = p.ExamType
	}
	a.UpdatedBy = actorRef(p.Actor)

	catalog := view.Catalog()
	if _, ok := catalog.Courses[a.CourseID]; !ok {
		return a, notFound("课程", a.CourseID)
	}
	if _, ok := catalog.Rooms[a.RoomID]; !ok {
		return a, notFound("考场", a.RoomID)
	}
	if _, ok := catalog.Professors[a.ProfessorID]; !ok {
		return a, notFound("教师", a.ProfessorID)
	}
	return a, nil
}

// actorRef 审计字段只接受 UUID 形式的用户ID
func actorRef(actor string) *string {
	if _, err := uuid.Parse(actor); err != nil {
		return nil
	}
	return &actor
}
