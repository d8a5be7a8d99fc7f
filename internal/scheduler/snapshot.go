package scheduler

import (
	"sort"
	"time"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// Snapshot 排考表某一时刻的只读视图：全部考试安排 + 维度数据
// 构建完成后不再修改，可被任意多个 goroutine 并发读取
type Snapshot struct {
	version uint64
	loc     *time.Location
	catalog *Catalog

	all    map[string]model.ExamAssignment
	active []model.ExamAssignment // 按 (StartTime, AssignmentID) 排序

	byRoom      map[string][]model.ExamAssignment
	byProfessor map[string][]model.ExamAssignment
	byDay       map[string][]model.ExamAssignment
	byCourse    map[string][]model.ExamAssignment
}

// NewSnapshot 构建视图；loc 为空时按 UTC 判定日期
func NewSnapshot(version uint64, catalog *Catalog, assignments []model.ExamAssignment, loc *time.Location) *Snapshot {
	if loc == nil {
		loc = time.UTC
	}
	if catalog == nil {
		catalog = NewCatalog(nil, nil, nil, nil, nil)
	}
	s := &Snapshot{
		version:     version,
		loc:         loc,
		catalog:     catalog,
		all:         make(map[string]model.ExamAssignment, len(assignments)),
		byRoom:      make(map[string][]model.ExamAssignment),
		byProfessor: make(map[string][]model.ExamAssignment),
		byDay:       make(map[string][]model.ExamAssignment),
		byCourse:    make(map[string][]model.ExamAssignment),
	}
	for _, a := range assignments {
		s.all[a.AssignmentID] = a
		if a.IsActive() {
			s.active = append(s.active, a)
		}
	}
	sort.Slice(s.active, func(i, j int) bool {
		return lessByStart(&s.active[i], &s.active[j])
	})
	for _, a := range s.active {
		s.byRoom[a.RoomID] = append(s.byRoom[a.RoomID], a)
		s.byProfessor[a.ProfessorID] = append(s.byProfessor[a.ProfessorID], a)
		day := s.DayOf(a.StartTime)
		s.byDay[day] = append(s.byDay[day], a)
		s.byCourse[a.CourseID] = append(s.byCourse[a.CourseID], a)
	}
	return s
}

func lessByStart(a, b *model.ExamAssignment) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	return a.AssignmentID < b.AssignmentID
}

// Version 存储版本号，每次成功写入递增
func (s *Snapshot) Version() uint64 { return s.version }

// Catalog 维度数据
func (s *Snapshot) Catalog() *Catalog { return s.catalog }

// Location 判定日期所用时区
func (s *Snapshot) Location() *time.Location { return s.loc }

// Assignment 按 ID 查询（含非活跃状态）
func (s *Snapshot) Assignment(id string) (model.ExamAssignment, bool) {
	a, ok := s.all[id]
	return a, ok
}

// All 全部考试安排，按开始时间排序
func (s *Snapshot) All() []model.ExamAssignment {
	out := make([]model.ExamAssignment, 0, len(s.all))
	for _, a := range s.all {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return lessByStart(&out[i], &out[j]) })
	return out
}

// Active 活跃（planned / confirmed）考试安排，调用方不得修改
func (s *Snapshot) Active() []model.ExamAssignment { return s.active }

// ActiveForRoom 考场的活跃安排
func (s *Snapshot) ActiveForRoom(roomID string) []model.ExamAssignment { return s.byRoom[roomID] }

// ActiveForProfessor 教师的活跃安排
func (s *Snapshot) ActiveForProfessor(professorID string) []model.ExamAssignment {
	return s.byProfessor[professorID]
}

// ActiveOnDay 某日（DayOf 格式）的活跃安排
func (s *Snapshot) ActiveOnDay(day string) []model.ExamAssignment { return s.byDay[day] }

// ActiveForCourse 课程的活跃安排
func (s *Snapshot) ActiveForCourse(courseID string) []model.ExamAssignment { return s.byCourse[courseID] }

// RegisteredCount 课程当前已注册人数
func (s *Snapshot) RegisteredCount(courseID string) int {
	return s.catalog.RegisteredCount(courseID)
}

// DayOf 将时间换算为排考时区下的日历日 YYYY-MM-DD
func (s *Snapshot) DayOf(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}

// ProfessorDayCount 教师某日的活跃安排数，excludeID 对应的记录不计入
func (s *Snapshot) ProfessorDayCount(professorID, day, excludeID string) int {
	n := 0
	for _, a := range s.byProfessor[professorID] {
		if a.AssignmentID == excludeID {
			continue
		}
		if s.DayOf(a.StartTime) == day {
			n++
		}
	}
	return n
}
