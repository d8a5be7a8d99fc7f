package model

import (
	"time"

	"gorm.io/gorm"
)

// 不可监考原因
const (
	UnavailabilityLeave    = "leave"
	UnavailabilityMeeting  = "meeting"
	UnavailabilityMission  = "mission"
	UnavailabilityTraining = "training"
	UnavailabilitySickness = "sickness"
	UnavailabilityResearch = "research"
	UnavailabilityOther    = "other"
)

// ProfessorUnavailability 教师不可监考时段表 — 对应 professor_unavailabilities
type ProfessorUnavailability struct {
	UnavailabilityID string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"unavailability_id"`
	ProfessorID      string         `gorm:"type:uuid;not null;index"                       json:"professor_id"`
	StartTime        time.Time      `gorm:"not null"                                       json:"start_time"`
	EndTime          time.Time      `gorm:"not null"                                       json:"end_time"`
	Reason           string         `gorm:"type:varchar(20);not null"                      json:"reason"` // leave | meeting | mission | training | sickness | research | other
	Details          string         `gorm:"type:text"                                      json:"details,omitempty"`
	DeletedAt        gorm.DeletedAt `gorm:"index"                                          json:"-"`
	DeletedBy        *string        `gorm:"type:uuid"                                      json:"-"`
	BaseModel
}

func (ProfessorUnavailability) TableName() string { return "professor_unavailabilities" }

// Overlaps 判断 [start, end) 是否与不可监考时段相交
func (u *ProfessorUnavailability) Overlaps(start, end time.Time) bool {
	return u.StartTime.Before(end) && start.Before(u.EndTime)
}
