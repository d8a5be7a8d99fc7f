package model

// Professor 教师表 — 对应 professors
type Professor struct {
	ProfessorID    string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"professor_id"`
	Name           string `gorm:"type:varchar(100);not null"                     json:"name"`
	DepartmentID   string `gorm:"type:uuid;not null"                             json:"department_id"`
	IsActive       bool   `gorm:"not null;default:true"                          json:"is_active"`
	MinWeeklyHours int    `gorm:"type:smallint;not null;default:0"               json:"min_weekly_hours"`
	MaxWeeklyHours int    `gorm:"type:smallint;not null;default:0"               json:"max_weekly_hours"`
	BaseModel
}

func (Professor) TableName() string { return "professors" }
