package dto

import "time"

// ── 教师模块 DTO ──

// CreateUnavailabilityRequest 登记不可监考时段
type CreateUnavailabilityRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time"   binding:"required,gtfield=StartTime"`
	Reason    string    `json:"reason"     binding:"required,oneof=leave meeting mission training sickness research other"`
	Details   string    `json:"details"    binding:"max=500"`
}

// UnavailabilityListRequest 不可监考时段查询参数；缺省时返回全部
type UnavailabilityListRequest struct {
	From *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   *time.Time `form:"to"   time_format:"2006-01-02T15:04:05Z07:00"`
}

// UnavailabilityResponse 不可监考时段响应
type UnavailabilityResponse struct {
	ID          string `json:"id"`
	ProfessorID string `json:"professor_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Reason      string `json:"reason"`
	Details     string `json:"details,omitempty"`
}
