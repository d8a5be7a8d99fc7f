package dto

import (
	"time"

	"github.com/aya-cs/bdaprojet2/internal/scheduler"
)

// ── 排考模块 DTO ──

// TimeWindow 时间窗口 [start, end)
type TimeWindow struct {
	Start time.Time `json:"start" form:"start" binding:"required"`
	End   time.Time `json:"end"   form:"end"   binding:"required,gtfield=Start"`
}

// CandidateRequest 候选生成请求
type CandidateRequest struct {
	TimeWindow
	Limit int `json:"limit" binding:"omitempty,min=1,max=1000"`
}

// ExamProposalRequest 提交 / 试校验考试安排请求
// assignment_id 为空表示新增，此时课程、教师、考场、开考时间、时长均必填（由 service 校验）；
// 非空表示调整已有安排，未给出的字段沿用原值
type ExamProposalRequest struct {
	AssignmentID    string    `json:"assignment_id"    binding:"omitempty,uuid"`
	CourseID        string    `json:"course_id"        binding:"omitempty,uuid"`
	ProfessorID     string    `json:"professor_id"     binding:"omitempty,uuid"`
	RoomID          string    `json:"room_id"          binding:"omitempty,uuid"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes" binding:"omitempty,min=1"`
	ExamType        string    `json:"exam_type"        binding:"omitempty,oneof=final midterm retake quiz"`
}

// PlanRequest 贪心排考请求
type PlanRequest struct {
	TimeWindow
	ExamType   string `json:"exam_type"   binding:"omitempty,oneof=final midterm retake quiz"`
	MaxCommits int    `json:"max_commits" binding:"omitempty,min=1"`
}

// UpdateExamStatusRequest 生命周期变更请求
type UpdateExamStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed cancelled completed"`
}

// ExamListRequest 考试安排列表查询参数
type ExamListRequest struct {
	Status       string     `form:"status"        binding:"omitempty,oneof=planned confirmed cancelled completed"`
	CourseID     string     `form:"course_id"     binding:"omitempty,uuid"`
	RoomID       string     `form:"room_id"       binding:"omitempty,uuid"`
	ProfessorID  string     `form:"professor_id"  binding:"omitempty,uuid"`
	StudentID    string     `form:"student_id"    binding:"omitempty,uuid"`
	DepartmentID string     `form:"department_id" binding:"omitempty,uuid"`
	From         *time.Time `form:"from"          time_format:"2006-01-02T15:04:05Z07:00"`
	To           *time.Time `form:"to"            time_format:"2006-01-02T15:04:05Z07:00"`
	PaginationRequest
}

// ConflictRequest 冲突扫描查询参数
type ConflictRequest struct {
	// 只保留涉及该系课程的冲突
	DepartmentID string `form:"department_id" binding:"omitempty,uuid"`
}

// ExportRequest 导出查询参数
type ExportRequest struct {
	From *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   *time.Time `form:"to"   time_format:"2006-01-02T15:04:05Z07:00"`
}

// ── 响应 ──

// ExamResponse 考试安排响应（附带课程、考场、教师名称）
type ExamResponse struct {
	ID               string `json:"id"`
	CourseID         string `json:"course_id"`
	CourseCode       string `json:"course_code,omitempty"`
	CourseName       string `json:"course_name,omitempty"`
	ProfessorID      string `json:"professor_id"`
	ProfessorName    string `json:"professor_name,omitempty"`
	RoomID           string `json:"room_id"`
	RoomName         string `json:"room_name,omitempty"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	DurationMinutes  int    `json:"duration_minutes"`
	ExamType         string `json:"exam_type"`
	Status           string `json:"status"`
	EnrolledAtCommit int    `json:"enrolled_at_commit"`
	Version          int    `json:"version"`
	UpdatedAt        string `json:"updated_at"`
}

// CandidateListResponse 候选生成响应
type CandidateListResponse struct {
	SnapshotVersion uint64                `json:"snapshot_version"`
	Candidates      []scheduler.Candidate `json:"candidates"`
}

// ValidateResponse 试校验响应
type ValidateResponse struct {
	Valid      bool                  `json:"valid"`
	Violations []scheduler.Violation `json:"violations"`
	Advisories []scheduler.Advisory  `json:"advisories,omitempty"`
}

// CommitResponse 提交成功响应
type CommitResponse struct {
	Assignment ExamResponse         `json:"assignment"`
	Advisories []scheduler.Advisory `json:"advisories,omitempty"`
}

// PlanResponse 贪心排考响应
type PlanResponse struct {
	Committed []CommitResponse     `json:"committed"`
	Skipped   []scheduler.PlanSkip `json:"skipped"`
	Rounds    int                  `json:"rounds"`
}

// ConflictResponse 冲突扫描响应
type ConflictResponse struct {
	SnapshotVersion uint64                     `json:"snapshot_version"`
	Total           int                        `json:"total"`
	BySeverity      map[scheduler.Severity]int `json:"by_severity"`
	Reports         []scheduler.ConflictReport `json:"reports"`
}
