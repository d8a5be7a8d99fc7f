package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// Severity 冲突严重程度
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// 冲突类型
const (
	ConflictRoomDoubleBooking = "room_double_booking"
	ConflictProfessorOverload = "professor_overload"
	ConflictStudentProximity  = "student_proximity"
)

// ConflictReport 对已提交排考表的诊断结果
type ConflictReport struct {
	Kind          string   `json:"kind"`
	Severity      Severity `json:"severity"`
	Detail        string   `json:"detail"`
	AssignmentIDs []string `json:"assignment_ids"`
	Count         int      `json:"count"` // 教师超载时为当日场数，学生冲突时为涉及人数
}

// ScanOptions 冲突扫描参数
type ScanOptions struct {
	MaxDailyPerProfessor int
	ProximityWindow      time.Duration
}

// DefaultScanOptions 默认：单日 3 场、2 小时间隔
func DefaultScanOptions() ScanOptions {
	return ScanOptions{MaxDailyPerProfessor: 3, ProximityWindow: 2 * time.Hour}
}

// ════════════════════════════════════════════════════════════
// Scan — 冲突扫描（只读，容忍快照中已存在的违规）
// ════════════════════════════════════════════════════════════

func Scan(ctx context.Context, view *Snapshot, opts ScanOptions) ([]ConflictReport, error) {
	def := DefaultScanOptions()
	if opts.MaxDailyPerProfessor <= 0 {
		opts.MaxDailyPerProfessor = def.MaxDailyPerProfessor
	}
	if opts.ProximityWindow <= 0 {
		opts.ProximityWindow = def.ProximityWindow
	}

	var rooms, profs, students []ConflictReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rooms, err = scanRoomDoubleBooking(gctx, view)
		return err
	})
	g.Go(func() error {
		var err error
		profs, err = scanProfessorOverload(gctx, view, opts.MaxDailyPerProfessor)
		return err
	})
	g.Go(func() error {
		var err error
		students, err = scanStudentProximity(gctx, view, opts.ProximityWindow)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	reports := make([]ConflictReport, 0, len(rooms)+len(profs)+len(students))
	reports = append(reports, rooms...)
	reports = append(reports, profs...)
	reports = append(reports, students...)
	sort.Slice(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() < b.Severity.rank()
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return strings.Join(a.AssignmentIDs, ",") < strings.Join(b.AssignmentIDs, ",")
	})
	return reports, nil
}

// scanRoomDoubleBooking 同考场时间重叠的每一对安排
func scanRoomDoubleBooking(ctx context.Context, view *Snapshot) ([]ConflictReport, error) {
	var out []ConflictReport
	for roomID, list := range view.byRoom {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := roomID
		if r, ok := view.Catalog().Rooms[roomID]; ok {
			name = r.Name
		}
		// list 已按开始时间排序：j 的开始不早于 i 的结束后，后续都不会再与 i 重叠
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				if !list[j].StartTime.Before(list[i].EndTime()) {
					break
				}
				out = append(out, ConflictReport{
					Kind:     ConflictRoomDoubleBooking,
					Severity: SeverityCritical,
					Detail: fmt.Sprintf("考场 %s 重复占用: %s 与 %s",
						name, describe(view, &list[i]), describe(view, &list[j])),
					AssignmentIDs: pairIDs(&list[i], &list[j]),
					Count:         2,
				})
			}
		}
	}
	return out, nil
}

// scanProfessorOverload 每个 (教师, 日) 超过上限时报告一次
func scanProfessorOverload(ctx context.Context, view *Snapshot, maxDaily int) ([]ConflictReport, error) {
	var out []ConflictReport
	for profID, list := range view.byProfessor {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		byDay := make(map[string][]string)
		for _, a := range list {
			day := view.DayOf(a.StartTime)
			byDay[day] = append(byDay[day], a.AssignmentID)
		}
		name := profID
		if p, ok := view.Catalog().Professors[profID]; ok {
			name = p.Name
		}
		for day, ids := range byDay {
			if len(ids) <= maxDaily {
				continue
			}
			sort.Strings(ids)
			out = append(out, ConflictReport{
				Kind:          ConflictProfessorOverload,
				Severity:      SeverityMedium,
				Detail:        fmt.Sprintf("教师 %s 在 %s 有 %d 场监考（上限 %d）", name, day, len(ids), maxDaily),
				AssignmentIDs: ids,
				Count:         len(ids),
			})
		}
	}
	return out, nil
}

// scanStudentProximity 不同课程、共享注册学生、开考时间相差不超过 window 的每一对安排
func scanStudentProximity(ctx context.Context, view *Snapshot, window time.Duration) ([]ConflictReport, error) {
	var out []ConflictReport
	active := view.Active()
	catalog := view.Catalog()
	for i := 0; i < len(active); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := &active[i]
		studentsA := catalog.Registered(a.CourseID)
		if len(studentsA) == 0 {
			continue
		}
		for j := i + 1; j < len(active); j++ {
			b := &active[j]
			if b.StartTime.Sub(a.StartTime) > window {
				break
			}
			if a.CourseID == b.CourseID {
				continue
			}
			n := sharedStudents(studentsA, catalog.Registered(b.CourseID))
			if n == 0 {
				continue
			}
			out = append(out, ConflictReport{
				Kind:     ConflictStudentProximity,
				Severity: SeverityHigh,
				Detail: fmt.Sprintf("%d 名学生的两场考试间隔不足 %s: %s 与 %s",
					n, window, describe(view, a), describe(view, b)),
				AssignmentIDs: pairIDs(a, b),
				Count:         n,
			})
		}
	}
	return out, nil
}

func pairIDs(a, b *model.ExamAssignment) []string {
	if a.AssignmentID < b.AssignmentID {
		return []string{a.AssignmentID, b.AssignmentID}
	}
	return []string{b.AssignmentID, a.AssignmentID}
}

func describe(view *Snapshot, a *model.ExamAssignment) string {
	return fmt.Sprintf("%s[%s %s-%s]", courseLabel(view.Catalog(), a.CourseID),
		view.DayOf(a.StartTime), formatClock(a.StartTime, view), formatClock(a.EndTime(), view))
}
