package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aya-cs/bdaprojet2/config"
	"github.com/aya-cs/bdaprojet2/internal/dto"
	"github.com/aya-cs/bdaprojet2/internal/model"
	"github.com/aya-cs/bdaprojet2/internal/repository"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
)

// ── 排考模块业务错误 ──

var (
	ErrExamProposalIncomplete = errors.New("新增考试安排须提供课程、教师、考场、开考时间与时长")
	ErrExamWindowTooLarge     = errors.New("时间窗口不能超过 62 天")
	ErrExamInvalidStatus      = errors.New("不支持的目标状态")
	ErrDepartmentNotFound     = errors.New("系不存在")
)

const maxWindow = 62 * 24 * time.Hour

// ExamService 排考业务接口
//
// 只做请求编排与响应组装，约束校验、写入与并发控制全部交给 scheduler.Coordinator。
type ExamService interface {
	// 生成候选
	Candidates(ctx context.Context, req *dto.CandidateRequest) (*dto.CandidateListResponse, error)
	// 试校验（不写入）
	Validate(ctx context.Context, req *dto.ExamProposalRequest) (*dto.ValidateResponse, error)
	// 提交
	Commit(ctx context.Context, req *dto.ExamProposalRequest, callerID string) (*dto.CommitResponse, error)
	// 贪心排考
	Plan(ctx context.Context, req *dto.PlanRequest, callerID string) (*dto.PlanResponse, error)
	// 冲突扫描
	Conflicts(ctx context.Context, req *dto.ConflictRequest) (*dto.ConflictResponse, error)
	// 考试安排列表
	List(ctx context.Context, req *dto.ExamListRequest) ([]dto.ExamResponse, int64, error)
	// 生命周期变更
	UpdateStatus(ctx context.Context, id string, req *dto.UpdateExamStatusRequest, callerID string) (*dto.ExamResponse, error)
}

type examService struct {
	coord    *scheduler.Coordinator
	depts    repository.DepartmentRepository
	genOpts  scheduler.GenerateOptions
	scanOpts scheduler.ScanOptions
	logger   *zap.Logger
}

// NewExamService 创建 ExamService 实例
func NewExamService(cfg *config.SchedulerConfig, coord *scheduler.Coordinator, depts repository.DepartmentRepository, logger *zap.Logger) ExamService {
	dayStart, dayEnd, err := cfg.DailyBounds()
	if err != nil {
		logger.Warn("每日考试时段配置无效，按不限处理", zap.Error(err))
		dayStart, dayEnd = 0, 0
	}
	return &examService{
		coord: coord,
		depts: depts,
		genOpts: scheduler.GenerateOptions{
			SlotMinutes:          cfg.SlotMinutes,
			Limit:                cfg.CandidateLimit,
			DayStart:             dayStart,
			DayEnd:               dayEnd,
			MaxDailyPerProfessor: cfg.MaxDailyPerProfessor,
		},
		scanOpts: scheduler.ScanOptions{
			MaxDailyPerProfessor: cfg.MaxDailyPerProfessor,
			ProximityWindow:      cfg.ProximityWindow,
		},
		logger: logger,
	}
}

// ════════════════════════════════════════════════════════════
// Candidates — 候选生成
// ════════════════════════════════════════════════════════════

func (s *examService) Candidates(ctx context.Context, req *dto.CandidateRequest) (*dto.CandidateListResponse, error) {
	if err := checkWindow(req.Start, req.End); err != nil {
		return nil, err
	}
	snap, err := s.coord.Store().Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	opts := s.genOpts
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	started := time.Now()
	candidates, err := scheduler.Generate(ctx, snap, req.Start, req.End, opts)
	if err != nil {
		if errors.Is(err, scheduler.ErrCancelled) {
			s.logger.Info("候选生成已取消", zap.Duration("elapsed", time.Since(started)))
		}
		return nil, err
	}

	s.logger.Debug("候选生成完成",
		zap.Int("count", len(candidates)),
		zap.Uint64("snapshot_version", snap.Version()),
		zap.Duration("elapsed", time.Since(started)))
	return &dto.CandidateListResponse{SnapshotVersion: snap.Version(), Candidates: candidates}, nil
}

// ════════════════════════════════════════════════════════════
// Validate / Commit
// ════════════════════════════════════════════════════════════

func (s *examService) Validate(ctx context.Context, req *dto.ExamProposalRequest) (*dto.ValidateResponse, error) {
	if err := checkProposal(req); err != nil {
		return nil, err
	}
	violations, advisories, err := s.coord.Validate(ctx, toProposal(req, ""))
	if err != nil {
		return nil, err
	}
	return &dto.ValidateResponse{
		Valid:      len(violations) == 0,
		Violations: violations,
		Advisories: advisories,
	}, nil
}

func (s *examService) Commit(ctx context.Context, req *dto.ExamProposalRequest, callerID string) (*dto.CommitResponse, error) {
	if err := checkProposal(req); err != nil {
		return nil, err
	}
	result, err := s.coord.Commit(ctx, toProposal(req, callerID))
	if err != nil {
		return nil, err
	}
	return s.toCommitResponse(ctx, result), nil
}

// ════════════════════════════════════════════════════════════
// Plan — 贪心排考
// ════════════════════════════════════════════════════════════

func (s *examService) Plan(ctx context.Context, req *dto.PlanRequest, callerID string) (*dto.PlanResponse, error) {
	if err := checkWindow(req.Start, req.End); err != nil {
		return nil, err
	}
	result, err := s.coord.Plan(ctx, req.Start, req.End, scheduler.PlanOptions{
		Generate:   s.genOpts,
		ExamType:   req.ExamType,
		Actor:      callerID,
		MaxCommits: req.MaxCommits,
	})
	if err != nil && result == nil {
		return nil, err
	}

	resp := &dto.PlanResponse{
		Committed: make([]dto.CommitResponse, 0, len(result.Committed)),
		Skipped:   result.Skipped,
		Rounds:    result.Rounds,
	}
	for i := range result.Committed {
		resp.Committed = append(resp.Committed, *s.toCommitResponse(ctx, &result.Committed[i]))
	}
	// 中途出错时已提交的部分保留，错误照常返回
	return resp, err
}

// ════════════════════════════════════════════════════════════
// Conflicts — 冲突扫描
// ════════════════════════════════════════════════════════════

func (s *examService) Conflicts(ctx context.Context, req *dto.ConflictRequest) (*dto.ConflictResponse, error) {
	if err := s.checkDepartment(ctx, req.DepartmentID); err != nil {
		return nil, err
	}
	snap, err := s.coord.Store().Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := scheduler.Scan(ctx, snap, s.scanOpts)
	if err != nil {
		return nil, err
	}
	if req.DepartmentID != "" {
		reports = reportsForDepartment(snap, reports, req.DepartmentID)
	}

	bySeverity := make(map[scheduler.Severity]int)
	for _, r := range reports {
		bySeverity[r.Severity]++
	}
	if len(reports) > 0 {
		s.logger.Info("冲突扫描发现问题",
			zap.Int("total", len(reports)),
			zap.Int("critical", bySeverity[scheduler.SeverityCritical]))
	}
	return &dto.ConflictResponse{
		SnapshotVersion: snap.Version(),
		Total:           len(reports),
		BySeverity:      bySeverity,
		Reports:         reports,
	}, nil
}

// ════════════════════════════════════════════════════════════
// List / UpdateStatus
// ════════════════════════════════════════════════════════════

func (s *examService) List(ctx context.Context, req *dto.ExamListRequest) ([]dto.ExamResponse, int64, error) {
	if err := s.checkDepartment(ctx, req.DepartmentID); err != nil {
		return nil, 0, err
	}
	snap, err := s.coord.Store().Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	catalog := snap.Catalog()

	// 学生课表：只看其已注册课程的考试
	var studentCourses map[string]bool
	if req.StudentID != "" {
		studentCourses = make(map[string]bool)
		for _, courseID := range catalog.StudentCourses(req.StudentID) {
			studentCourses[courseID] = true
		}
	}

	var matched []model.ExamAssignment
	for _, a := range snap.All() {
		if req.Status != "" && a.Status != req.Status {
			continue
		}
		if req.CourseID != "" && a.CourseID != req.CourseID {
			continue
		}
		if req.RoomID != "" && a.RoomID != req.RoomID {
			continue
		}
		if req.ProfessorID != "" && a.ProfessorID != req.ProfessorID {
			continue
		}
		if studentCourses != nil && !studentCourses[a.CourseID] {
			continue
		}
		if req.DepartmentID != "" && catalog.CourseDepartment(a.CourseID) != req.DepartmentID {
			continue
		}
		if req.From != nil && a.EndTime().Before(*req.From) {
			continue
		}
		if req.To != nil && !a.StartTime.Before(*req.To) {
			continue
		}
		matched = append(matched, a)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].StartTime.Before(matched[j].StartTime)
		}
		return matched[i].AssignmentID < matched[j].AssignmentID
	})

	total := int64(len(matched))
	offset := req.GetOffset()
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + req.GetPageSize()
	if end > len(matched) {
		end = len(matched)
	}

	list := make([]dto.ExamResponse, 0, end-offset)
	for i := offset; i < end; i++ {
		list = append(list, toExamResponse(snap, &matched[i]))
	}
	return list, total, nil
}

func (s *examService) UpdateStatus(ctx context.Context, id string, req *dto.UpdateExamStatusRequest, callerID string) (*dto.ExamResponse, error) {
	event, ok := scheduler.EventForStatus(req.Status)
	if !ok {
		return nil, ErrExamInvalidStatus
	}
	updated, err := s.coord.Transition(ctx, id, event, callerID)
	if err != nil {
		return nil, err
	}
	snap, err := s.coord.Store().Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	resp := toExamResponse(snap, updated)
	return &resp, nil
}

// ── 辅助函数 ──

// checkDepartment 校验系存在；空 ID 表示不过滤
func (s *examService) checkDepartment(ctx context.Context, departmentID string) error {
	if departmentID == "" {
		return nil
	}
	if _, err := s.depts.GetByID(ctx, departmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDepartmentNotFound
		}
		s.logger.Error("查询系失败", zap.String("department_id", departmentID), zap.Error(err))
		return err
	}
	return nil
}

// reportsForDepartment 保留至少涉及一门该系课程的冲突
func reportsForDepartment(snap *scheduler.Snapshot, reports []scheduler.ConflictReport, departmentID string) []scheduler.ConflictReport {
	catalog := snap.Catalog()
	scoped := make([]scheduler.ConflictReport, 0, len(reports))
	for _, r := range reports {
		for _, id := range r.AssignmentIDs {
			a, ok := snap.Assignment(id)
			if ok && catalog.CourseDepartment(a.CourseID) == departmentID {
				scoped = append(scoped, r)
				break
			}
		}
	}
	return scoped
}

func checkWindow(start, end time.Time) error {
	if !end.After(start) {
		return scheduler.ErrInvalidWindow
	}
	if end.Sub(start) > maxWindow {
		return ErrExamWindowTooLarge
	}
	return nil
}

func checkProposal(req *dto.ExamProposalRequest) error {
	if req.AssignmentID != "" {
		return nil
	}
	if req.CourseID == "" || req.ProfessorID == "" || req.RoomID == "" ||
		req.StartTime.IsZero() || req.DurationMinutes == 0 {
		return ErrExamProposalIncomplete
	}
	return nil
}

func toProposal(req *dto.ExamProposalRequest, callerID string) scheduler.Proposal {
	return scheduler.Proposal{
		AssignmentID:    req.AssignmentID,
		CourseID:        req.CourseID,
		ProfessorID:     req.ProfessorID,
		RoomID:          req.RoomID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		ExamType:        req.ExamType,
		Actor:           callerID,
	}
}

func (s *examService) toCommitResponse(ctx context.Context, result *scheduler.CommitResult) *dto.CommitResponse {
	resp := &dto.CommitResponse{Advisories: result.Advisories}
	snap, err := s.coord.Store().Snapshot(ctx)
	if err != nil {
		// 名称只用于展示，读取失败时只返回 ID
		s.logger.Warn("读取排考快照失败", zap.Error(err))
		resp.Assignment = toExamResponse(nil, &result.Assignment)
		return resp
	}
	resp.Assignment = toExamResponse(snap, &result.Assignment)
	return resp
}

func toExamResponse(snap *scheduler.Snapshot, a *model.ExamAssignment) dto.ExamResponse {
	resp := dto.ExamResponse{
		ID:               a.AssignmentID,
		CourseID:         a.CourseID,
		ProfessorID:      a.ProfessorID,
		RoomID:           a.RoomID,
		StartTime:        a.StartTime.Format(time.RFC3339),
		EndTime:          a.EndTime().Format(time.RFC3339),
		DurationMinutes:  a.DurationMinutes,
		ExamType:         a.ExamType,
		Status:           a.Status,
		EnrolledAtCommit: a.EnrolledAtCommit,
		Version:          a.Version,
		UpdatedAt:        a.UpdatedAt.Format(time.RFC3339),
	}
	if snap == nil {
		return resp
	}
	loc := snap.Location()
	resp.StartTime = a.StartTime.In(loc).Format(time.RFC3339)
	resp.EndTime = a.EndTime().In(loc).Format(time.RFC3339)

	catalog := snap.Catalog()
	if c, ok := catalog.Courses[a.CourseID]; ok {
		resp.CourseCode = c.Code
		resp.CourseName = c.Name
	}
	if r, ok := catalog.Rooms[a.RoomID]; ok {
		resp.RoomName = r.Name
	}
	if p, ok := catalog.Professors[a.ProfessorID]; ok {
		resp.ProfessorName = p.Name
	}
	return resp
}
