package model

import "time"

// 考试安排状态
const (
	ExamStatusPlanned   = "planned"
	ExamStatusConfirmed = "confirmed"
	ExamStatusCancelled = "cancelled"
	ExamStatusCompleted = "completed"
)

// 考试类型
const (
	ExamTypeFinal   = "final"
	ExamTypeMidterm = "midterm"
	ExamTypeRetake  = "retake"
	ExamTypeQuiz    = "quiz"
)

// 考试时长范围（分钟）
const (
	MinExamMinutes = 60
	MaxExamMinutes = 240
)

// ExamAssignment 考试安排表 — 对应 exam_assignments
type ExamAssignment struct {
	AssignmentID     string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"assignment_id"`
	CourseID         string    `gorm:"type:uuid;not null;index"                       json:"course_id"`
	ProfessorID      string    `gorm:"type:uuid;not null;index"                       json:"professor_id"`
	RoomID           string    `gorm:"type:uuid;not null;index"                       json:"room_id"`
	StartTime        time.Time `gorm:"not null;index"                                 json:"start_time"`
	DurationMinutes  int       `gorm:"type:smallint;not null"                         json:"duration_minutes"` // 60 ~ 240
	ExamType         string    `gorm:"type:varchar(20);not null"                      json:"exam_type"`        // final | midterm | retake | quiz
	Status           string    `gorm:"type:varchar(20);not null;default:'planned'"    json:"status"`           // planned | confirmed | cancelled | completed
	EnrolledAtCommit int       `gorm:"not null;default:0"                             json:"enrolled_at_commit"`
	Version          int       `gorm:"not null;default:1"                             json:"version"`
	BaseModel
}

func (ExamAssignment) TableName() string { return "exam_assignments" }

// EndTime 考试结束时间（不含）
func (a *ExamAssignment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// IsActive planned / confirmed 视为占用资源
func (a *ExamAssignment) IsActive() bool {
	return a.Status == ExamStatusPlanned || a.Status == ExamStatusConfirmed
}

// Overlaps 判断两个半开区间 [start, end) 是否相交
func (a *ExamAssignment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime())
}
