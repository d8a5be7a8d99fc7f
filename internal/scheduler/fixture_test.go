package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// ═══════════════════════════════════════════════════════════
// 测试夹具
// ═══════════════════════════════════════════════════════════

var day0 = time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day0.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// catalogBuilder 以链式调用构建维度数据
type catalogBuilder struct {
	courses     []model.Course
	rooms       []model.Room
	professors  []model.Professor
	enrollments []model.Enrollment
	unavailable []model.ProfessorUnavailability
}

func newCatalogBuilder() *catalogBuilder { return &catalogBuilder{} }

func (b *catalogBuilder) course(id, dept string) *catalogBuilder {
	b.courses = append(b.courses, model.Course{
		CourseID: id, Code: "CODE-" + id, Name: "课程" + id, ProgramID: "prog-" + dept,
		Program: &model.Program{ProgramID: "prog-" + dept, DepartmentID: dept},
	})
	return b
}

func (b *catalogBuilder) room(id string, capacity int, kind string) *catalogBuilder {
	b.rooms = append(b.rooms, model.Room{RoomID: id, Name: "考场" + id, Capacity: capacity, Kind: kind, IsAvailable: true})
	return b
}

func (b *catalogBuilder) professor(id, dept string) *catalogBuilder {
	b.professors = append(b.professors, model.Professor{ProfessorID: id, Name: "教师" + id, DepartmentID: dept, IsActive: true})
	return b
}

// students 为课程注册 [from, to) 号学生
func (b *catalogBuilder) students(courseID string, from, to int) *catalogBuilder {
	for i := from; i < to; i++ {
		b.enrollments = append(b.enrollments, model.Enrollment{
			StudentID: fmt.Sprintf("s%04d", i), CourseID: courseID, Status: model.EnrollmentRegistered,
		})
	}
	return b
}

// unavailableAt 教师在 [start, end) 不可监考
func (b *catalogBuilder) unavailableAt(profID string, start, end time.Time) *catalogBuilder {
	b.unavailable = append(b.unavailable, model.ProfessorUnavailability{
		UnavailabilityID: fmt.Sprintf("u%d", len(b.unavailable)+1),
		ProfessorID:      profID, StartTime: start, EndTime: end, Reason: model.UnavailabilityMeeting,
	})
	return b
}

func (b *catalogBuilder) build() *Catalog {
	return NewCatalog(b.courses, b.rooms, b.professors, b.enrollments, b.unavailable)
}

func exam(id, course, room, prof string, start time.Time, minutes int) model.ExamAssignment {
	return model.ExamAssignment{
		AssignmentID:    id,
		CourseID:        course,
		RoomID:          room,
		ProfessorID:     prof,
		StartTime:       start,
		DurationMinutes: minutes,
		ExamType:        model.ExamTypeFinal,
		Status:          model.ExamStatusPlanned,
		Version:         1,
	}
}

// ── CatalogSource ──

type staticSource struct {
	mu    sync.Mutex
	cat   *Catalog
	err   error
	calls atomic.Int32
}

func (s *staticSource) LoadCatalog(_ context.Context) (*Catalog, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cat, s.err
}

func (s *staticSource) set(cat *Catalog) {
	s.mu.Lock()
	s.cat = cat
	s.mu.Unlock()
}

// ── AssignmentWriter / Lister ──

type memWriter struct {
	mu        sync.Mutex
	rows      map[string]model.ExamAssignment
	createErr error
	updateErr error
}

func newMemWriter() *memWriter {
	return &memWriter{rows: make(map[string]model.ExamAssignment)}
}

func (w *memWriter) Create(_ context.Context, a *model.ExamAssignment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.createErr != nil {
		return w.createErr
	}
	w.rows[a.AssignmentID] = *a
	return nil
}

func (w *memWriter) Update(_ context.Context, a *model.ExamAssignment) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.updateErr != nil {
		return w.updateErr
	}
	a.Version++
	w.rows[a.AssignmentID] = *a
	return nil
}

type staticLister []model.ExamAssignment

func (l staticLister) ListAll(_ context.Context) ([]model.ExamAssignment, error) {
	return l, nil
}

// ── Notifier ──

type recordingNotifier struct {
	mu     sync.Mutex
	events []ChangeEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) all() []ChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ChangeEvent(nil), n.events...)
}

// newTestCoordinator 内存 Store + 固定时钟
func newTestCoordinator(cat *Catalog, notifier Notifier, now time.Time, preload ...model.ExamAssignment) (*Coordinator, *staticSource) {
	src := &staticSource{cat: cat}
	clock := func() time.Time { return now }
	store := NewStore(src, nil, StoreOptions{Location: time.UTC, Now: clock}, zap.NewNop())
	if len(preload) > 0 {
		store.Load(context.Background(), staticLister(preload))
	}
	coord := NewCoordinator(store, notifier, CoordinatorOptions{
		Rules:       DefaultRules(),
		LockTimeout: time.Second,
		MaxRetries:  5,
		Now:         clock,
	}, zap.NewNop())
	return coord, src
}
