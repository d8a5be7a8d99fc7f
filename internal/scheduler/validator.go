package scheduler

import (
	"fmt"
	"time"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// 违规类型
const (
	ViolationRoomOverlap          = "room_overlap"
	ViolationProfessorOverload    = "professor_overload"
	ViolationCapacityExceeded     = "capacity_exceeded"
	ViolationStudentSameDay       = "student_same_day"
	ViolationInvalidDuration      = "invalid_duration"
	ViolationRoomUnavailable      = "room_unavailable"
	ViolationProfessorInactive    = "professor_inactive"
	ViolationProfessorUnavailable = "professor_unavailable"
)

// Violation 一条硬约束违规
type Violation struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func (v Violation) String() string {
	return v.Kind + ": " + v.Detail
}

// Rules 硬约束参数
type Rules struct {
	MaxDailyPerProfessor int     // 教师单日活跃安排上限
	CapacityMargin       float64 // 注册人数 ≤ margin × 容量
}

// DefaultRules 默认参数：单日 3 场，容量 90%
func DefaultRules() Rules {
	return Rules{MaxDailyPerProfessor: 3, CapacityMargin: 0.9}
}

// Validate 按默认参数校验
func Validate(proposed *model.ExamAssignment, view *Snapshot) []Violation {
	return DefaultRules().Validate(proposed, view)
}

// Validate 校验待提交的考试安排，返回全部违规项（不短路）
//
// proposed 须已填充课程/教师/考场/时间；若 AssignmentID 已存在于快照中，
// 视为对该记录的重新校验，该记录自身不参与冲突统计。
// 引用不存在的课程/考场/教师时跳过对应检查，由调用方先行报 NotFound。
func (r Rules) Validate(proposed *model.ExamAssignment, view *Snapshot) []Violation {
	var violations []Violation
	catalog := view.Catalog()
	start, end := proposed.StartTime, proposed.EndTime()

	// 时长
	if proposed.DurationMinutes < model.MinExamMinutes || proposed.DurationMinutes > model.MaxExamMinutes {
		violations = append(violations, Violation{
			Kind:   ViolationInvalidDuration,
			Detail: fmt.Sprintf("考试时长 %d 分钟，须在 %d-%d 分钟之间", proposed.DurationMinutes, model.MinExamMinutes, model.MaxExamMinutes),
		})
	}

	// 考场：可用性、时间重叠、容量
	if room, ok := catalog.Rooms[proposed.RoomID]; ok {
		if !room.IsAvailable {
			violations = append(violations, Violation{
				Kind:   ViolationRoomUnavailable,
				Detail: fmt.Sprintf("考场 %s 当前不可用", room.Name),
			})
		}
		for _, other := range view.ActiveForRoom(room.RoomID) {
			if other.AssignmentID == proposed.AssignmentID {
				continue
			}
			if other.Overlaps(start, end) {
				violations = append(violations, Violation{
					Kind: ViolationRoomOverlap,
					Detail: fmt.Sprintf("考场 %s 在 %s-%s 已安排考试 %s",
						room.Name, formatClock(other.StartTime, view), formatClock(other.EndTime(), view), other.AssignmentID),
				})
			}
		}
		enrolled := view.RegisteredCount(proposed.CourseID)
		if float64(enrolled) > r.CapacityMargin*float64(room.Capacity) {
			violations = append(violations, Violation{
				Kind: ViolationCapacityExceeded,
				Detail: fmt.Sprintf("注册人数 %d 超过考场 %s 容量 %d 的 %.0f%%",
					enrolled, room.Name, room.Capacity, r.CapacityMargin*100),
			})
		}
	}

	// 教师：在岗、不可监考时段、单日上限
	if prof, ok := catalog.Professors[proposed.ProfessorID]; ok {
		if !prof.IsActive {
			violations = append(violations, Violation{
				Kind:   ViolationProfessorInactive,
				Detail: fmt.Sprintf("教师 %s 非在岗状态", prof.Name),
			})
		}
		if u, busy := catalog.ProfessorUnavailable(prof.ProfessorID, start, end); busy {
			violations = append(violations, Violation{
				Kind: ViolationProfessorUnavailable,
				Detail: fmt.Sprintf("教师 %s 在 %s 至 %s 不可监考（%s）",
					prof.Name, formatStamp(u.StartTime, view), formatStamp(u.EndTime, view), u.Reason),
			})
		}
		day := view.DayOf(start)
		if n := view.ProfessorDayCount(prof.ProfessorID, day, proposed.AssignmentID); n >= r.MaxDailyPerProfessor {
			violations = append(violations, Violation{
				Kind:   ViolationProfessorOverload,
				Detail: fmt.Sprintf("教师 %s 在 %s 已有 %d 场监考，达到上限 %d", prof.Name, day, n, r.MaxDailyPerProfessor),
			})
		}
	}

	// 学生同日：仅比较不同课程的活跃安排，按注册名单求交集
	students := catalog.Registered(proposed.CourseID)
	if len(students) > 0 {
		for _, other := range view.ActiveOnDay(view.DayOf(start)) {
			if other.AssignmentID == proposed.AssignmentID || other.CourseID == proposed.CourseID {
				continue
			}
			if n := sharedStudents(students, catalog.Registered(other.CourseID)); n > 0 {
				violations = append(violations, Violation{
					Kind: ViolationStudentSameDay,
					Detail: fmt.Sprintf("%d 名学生同日已有课程 %s 的考试 %s（%s 开考）",
						n, courseLabel(catalog, other.CourseID), other.AssignmentID, formatClock(other.StartTime, view)),
				})
			}
		}
	}

	return violations
}

func formatClock(t time.Time, view *Snapshot) string {
	return t.In(view.Location()).Format("15:04")
}

func formatStamp(t time.Time, view *Snapshot) string {
	return t.In(view.Location()).Format("2006-01-02 15:04")
}

func courseLabel(catalog *Catalog, courseID string) string {
	if c, ok := catalog.Courses[courseID]; ok && c.Code != "" {
		return c.Code
	}
	return courseID
}
