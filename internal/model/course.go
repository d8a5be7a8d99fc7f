package model

// Program 培养方案表 — 对应 programs（由学籍系统维护，排考只读）
type Program struct {
	ProgramID    string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"program_id"`
	Name         string `gorm:"type:varchar(150);not null"                     json:"name"`
	DepartmentID string `gorm:"type:uuid;not null"                             json:"department_id"`
	BaseModel
}

func (Program) TableName() string { return "programs" }

// Course 课程（模块）表 — 对应 courses
// 选课人数不落库，由 enrollments 中 registered 记录实时统计
type Course struct {
	CourseID       string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"course_id"`
	Code           string  `gorm:"type:varchar(30);not null;uniqueIndex"          json:"code"`
	Name           string  `gorm:"type:varchar(150);not null"                     json:"name"`
	Credits        int     `gorm:"type:smallint;not null;default:0"               json:"credits"`
	ProgramID      string  `gorm:"type:uuid;not null"                             json:"program_id"`
	Semester       int     `gorm:"type:smallint;not null"                         json:"semester"`
	PrerequisiteID *string `gorm:"type:uuid"                                      json:"prerequisite_id,omitempty"` // 先修课程，须无环
	BaseModel

	// 关联
	Program *Program `gorm:"foreignKey:ProgramID;references:ProgramID" json:"program,omitempty"`
}

func (Course) TableName() string { return "courses" }

// DepartmentID 课程所属系（经培养方案）；未预加载时返回空串
func (c *Course) DepartmentID() string {
	if c.Program == nil {
		return ""
	}
	return c.Program.DepartmentID
}
