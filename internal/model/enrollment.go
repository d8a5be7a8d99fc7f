package model

// 选课状态
const (
	EnrollmentRegistered = "registered"
	EnrollmentValidated  = "validated"
	EnrollmentFailed     = "failed"
	EnrollmentWithdrawn  = "withdrawn"
)

// Enrollment 选课表 — 对应 enrollments
// (student_id, course_id, academic_year, session) 唯一；仅 registered 计入容量与冲突检测
type Enrollment struct {
	EnrollmentID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"            json:"enrollment_id"`
	StudentID    string `gorm:"type:uuid;not null;uniqueIndex:uq_enrollment"              json:"student_id"`
	CourseID     string `gorm:"type:uuid;not null;uniqueIndex:uq_enrollment;index"        json:"course_id"`
	AcademicYear string `gorm:"type:varchar(9);not null;uniqueIndex:uq_enrollment"        json:"academic_year"` // 2024-2025
	Session      string `gorm:"type:varchar(20);not null;uniqueIndex:uq_enrollment"       json:"session"`       // normal | rattrapage
	Status       string `gorm:"type:varchar(20);not null;default:'registered'"            json:"status"`        // registered | validated | failed | withdrawn
	BaseModel
}

func (Enrollment) TableName() string { return "enrollments" }
