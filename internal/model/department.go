package model

// Department 系 — 对应 departments（由学籍系统维护，排考只读）
type Department struct {
	DepartmentID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"department_id"`
	Name         string `gorm:"type:varchar(100);not null"                     json:"name"`
	BaseModel
}

// TableName 指定表名
func (Department) TableName() string { return "departments" }
