package dto

// ── 课程模块 DTO ──

// SetPrerequisiteRequest 设置先修课程请求；prerequisite_id 为空表示清除
type SetPrerequisiteRequest struct {
	PrerequisiteID *string `json:"prerequisite_id" binding:"omitempty,uuid"`
}

// CourseResponse 课程响应
type CourseResponse struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Credits        int     `json:"credits"`
	Semester       int     `json:"semester"`
	DepartmentID   string  `json:"department_id,omitempty"`
	PrerequisiteID *string `json:"prerequisite_id,omitempty"`
}
