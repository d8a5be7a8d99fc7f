package model

// 考场类型
const (
	RoomAmphitheatre = "amphitheatre"
	RoomLectureRoom  = "lecture_room"
	RoomLab          = "lab"
	RoomSpecialized  = "specialized"
)

// Room 考场表 — 对应 rooms
type Room struct {
	RoomID      string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"room_id"`
	Name        string `gorm:"type:varchar(100);not null"                     json:"name"`
	Building    string `gorm:"type:varchar(100)"                              json:"building,omitempty"`
	Capacity    int    `gorm:"not null;check:capacity > 0"                    json:"capacity"`
	Kind        string `gorm:"type:varchar(20);not null"                      json:"kind"` // amphitheatre | lecture_room | lab | specialized
	IsAvailable bool   `gorm:"not null;default:true"                          json:"is_available"`
	BaseModel
}

func (Room) TableName() string { return "rooms" }
