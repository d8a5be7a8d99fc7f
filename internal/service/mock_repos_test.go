package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aya-cs/bdaprojet2/internal/model"
	"github.com/aya-cs/bdaprojet2/internal/repository"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
	pkgerrors "github.com/aya-cs/bdaprojet2/pkg/errors"
)

// ── Mock DepartmentRepository ──

type mockDeptRepo struct {
	depts map[string]*model.Department
}

func newMockDeptRepo() *mockDeptRepo {
	return &mockDeptRepo{depts: make(map[string]*model.Department)}
}

func (m *mockDeptRepo) GetByID(_ context.Context, id string) (*model.Department, error) {
	if d, ok := m.depts[id]; ok {
		return d, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockDeptRepo) ListAll(_ context.Context) ([]model.Department, error) {
	var result []model.Department
	for _, d := range m.depts {
		result = append(result, *d)
	}
	return result, nil
}

// ── Mock CourseRepository ──

type mockCourseRepo struct {
	mu      sync.Mutex
	courses map[string]*model.Course
	locks   int
	// beforeUpdate 在写入前调用（不持有 mu），用于放大并发窗口
	beforeUpdate func(courseID string)
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{courses: make(map[string]*model.Course)}
}

func (m *mockCourseRepo) GetByID(_ context.Context, id string) (*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.courses[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCourseRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Course, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCourseRepo) ListAll(_ context.Context) ([]model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Course
	for _, c := range m.courses {
		result = append(result, *c)
	}
	return result, nil
}

func (m *mockCourseRepo) LockPrerequisites(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks++
	return nil
}

func (m *mockCourseRepo) UpdatePrerequisite(_ context.Context, courseID string, prerequisiteID *string, _ *string) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate(courseID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[courseID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.PrerequisiteID = prerequisiteID
	return nil
}

// prerequisiteOf 读取存储中的先修课程
func (m *mockCourseRepo) prerequisiteOf(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.courses[id]; ok && c.PrerequisiteID != nil {
		return *c.PrerequisiteID
	}
	return ""
}

// ── Mock EnrollmentRepository ──

type mockEnrollmentRepo struct {
	list []model.Enrollment
}

func (m *mockEnrollmentRepo) ListRegistered(_ context.Context) ([]model.Enrollment, error) {
	var result []model.Enrollment
	for _, e := range m.list {
		if e.Status == model.EnrollmentRegistered {
			result = append(result, e)
		}
	}
	return result, nil
}

// ── Mock RoomRepository / ProfessorRepository ──

type mockRoomRepo struct {
	rooms []model.Room
}

func (m *mockRoomRepo) ListAll(_ context.Context) ([]model.Room, error) {
	return m.rooms, nil
}

type mockProfessorRepo struct {
	profs []model.Professor
}

func (m *mockProfessorRepo) GetByID(_ context.Context, id string) (*model.Professor, error) {
	for _, p := range m.profs {
		if p.ProfessorID == id {
			p := p
			return &p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockProfessorRepo) ListAll(_ context.Context) ([]model.Professor, error) {
	return m.profs, nil
}

// ── Mock ProfessorUnavailabilityRepository ──

type mockUnavailabilityRepo struct {
	mu   sync.Mutex
	rows map[string]model.ProfessorUnavailability
}

func newMockUnavailabilityRepo() *mockUnavailabilityRepo {
	return &mockUnavailabilityRepo{rows: make(map[string]model.ProfessorUnavailability)}
}

func (m *mockUnavailabilityRepo) ListAll(_ context.Context) ([]model.ProfessorUnavailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.ProfessorUnavailability
	for _, u := range m.rows {
		result = append(result, u)
	}
	return result, nil
}

func (m *mockUnavailabilityRepo) ListByProfessor(_ context.Context, professorID string, from, to time.Time) ([]model.ProfessorUnavailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.ProfessorUnavailability
	for _, u := range m.rows {
		if u.ProfessorID == professorID && u.Overlaps(from, to) {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *mockUnavailabilityRepo) GetByID(_ context.Context, id string) (*model.ProfessorUnavailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.rows[id]; ok {
		return &u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUnavailabilityRepo) Create(_ context.Context, u *model.ProfessorUnavailability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.UnavailabilityID == "" {
		u.UnavailabilityID = uuid.NewString()
	}
	m.rows[u.UnavailabilityID] = *u
	return nil
}

func (m *mockUnavailabilityRepo) Delete(_ context.Context, id string, _ *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.rows, id)
	return nil
}

// ── Mock ExamAssignmentRepository ──

type mockExamRepo struct {
	mu   sync.Mutex
	rows map[string]model.ExamAssignment
}

func newMockExamRepo() *mockExamRepo {
	return &mockExamRepo{rows: make(map[string]model.ExamAssignment)}
}

func (m *mockExamRepo) Create(_ context.Context, a *model.ExamAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.AssignmentID] = *a
	return nil
}

func (m *mockExamRepo) Update(_ context.Context, a *model.ExamAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[a.AssignmentID]
	if !ok || cur.Version != a.Version {
		return pkgerrors.StaleVersion("exam_assignments", a.AssignmentID, a.Version)
	}
	a.Version++
	m.rows[a.AssignmentID] = *a
	return nil
}

func (m *mockExamRepo) GetByID(_ context.Context, id string) (*model.ExamAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rows[id]; ok {
		return &a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockExamRepo) ListAll(_ context.Context) ([]model.ExamAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.ExamAssignment
	for _, a := range m.rows {
		result = append(result, a)
	}
	return result, nil
}

// ── 测试夹具 ──

const (
	testDept     = "00000000-0000-0000-0000-0000000000d1"
	testProgram  = "00000000-0000-0000-0000-0000000000a1"
	testCourseA  = "00000000-0000-0000-0000-0000000000c1"
	testCourseB  = "00000000-0000-0000-0000-0000000000c2"
	testRoom     = "00000000-0000-0000-0000-0000000000e1"
	testProfID   = "00000000-0000-0000-0000-0000000000f1"
	testCallerID = "00000000-0000-0000-0000-000000000099"
)

type testEnv struct {
	repo  *repository.Repository
	exams *mockExamRepo
	coord *scheduler.Coordinator
}

// newTestEnv 两门课程（A 40 人，B 10 人，共享 5 名学生）、一间 60 人教室、一名教师
func newTestEnv(now time.Time) *testEnv {
	depts := newMockDeptRepo()
	depts.depts[testDept] = &model.Department{DepartmentID: testDept, Name: "计算机系"}

	program := &model.Program{ProgramID: testProgram, Name: "软件工程", DepartmentID: testDept}
	courses := newMockCourseRepo()
	courses.courses[testCourseA] = &model.Course{CourseID: testCourseA, Code: "INF101", Name: "算法", ProgramID: testProgram, Program: program}
	courses.courses[testCourseB] = &model.Course{CourseID: testCourseB, Code: "INF102", Name: "数据库", ProgramID: testProgram, Program: program}

	enrollments := &mockEnrollmentRepo{}
	for i := 0; i < 40; i++ {
		enrollments.list = append(enrollments.list, model.Enrollment{
			StudentID: studentID(i), CourseID: testCourseA, Status: model.EnrollmentRegistered,
		})
	}
	for i := 35; i < 45; i++ {
		enrollments.list = append(enrollments.list, model.Enrollment{
			StudentID: studentID(i), CourseID: testCourseB, Status: model.EnrollmentRegistered,
		})
	}

	exams := newMockExamRepo()
	repo := &repository.Repository{
		Department:     depts,
		Course:         courses,
		Enrollment:     enrollments,
		Room:           &mockRoomRepo{rooms: []model.Room{{RoomID: testRoom, Name: "A101", Capacity: 60, Kind: model.RoomLectureRoom, IsAvailable: true}}},
		Professor:      &mockProfessorRepo{profs: []model.Professor{{ProfessorID: testProfID, Name: "王老师", DepartmentID: testDept, IsActive: true}}},
		Unavailability: newMockUnavailabilityRepo(),
		ExamAssignment: exams,
	}

	logger := zap.NewNop()
	clock := func() time.Time { return now }
	store := scheduler.NewStore(NewCatalogSource(repo, logger), exams, scheduler.StoreOptions{Location: time.UTC, Now: clock}, logger)
	coord := scheduler.NewCoordinator(store, nil, scheduler.CoordinatorOptions{
		Rules:       scheduler.DefaultRules(),
		LockTimeout: time.Second,
		MaxRetries:  3,
		Now:         clock,
	}, logger)
	return &testEnv{repo: repo, exams: exams, coord: coord}
}

func studentID(i int) string {
	return fmt.Sprintf("00000000-0000-0000-0001-%012d", i)
}
