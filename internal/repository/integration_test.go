//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	pkgerrors "github.com/aya-cs/bdaprojet2/pkg/errors"

	"github.com/aya-cs/bdaprojet2/internal/model"
	"github.com/aya-cs/bdaprojet2/internal/repository"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=postgres password=postgres dbname=exam_platform_test sslmode=disable TimeZone=Africa/Algiers"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	err = testDB.AutoMigrate(
		&model.Department{},
		&model.Program{},
		&model.Course{},
		&model.Enrollment{},
		&model.Room{},
		&model.Professor{},
		&model.ProfessorUnavailability{},
		&model.ExamAssignment{},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "AutoMigrate 失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Exit(code)
}

type fixture struct {
	dept      *model.Department
	program   *model.Program
	course    *model.Course
	room      *model.Room
	professor *model.Professor
}

// setupTestData 创建基础测试数据并返回清理函数
func setupTestData(t *testing.T) (*fixture, func()) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	f := &fixture{}
	f.dept = &model.Department{Name: fmt.Sprintf("测试系-%d", suffix)}
	if err := testDB.WithContext(ctx).Create(f.dept).Error; err != nil {
		t.Fatalf("创建系失败: %v", err)
	}
	f.program = &model.Program{Name: "测试培养方案", DepartmentID: f.dept.DepartmentID}
	if err := testDB.WithContext(ctx).Create(f.program).Error; err != nil {
		t.Fatalf("创建培养方案失败: %v", err)
	}
	f.course = &model.Course{
		Code:      fmt.Sprintf("C%d", suffix),
		Name:      "测试课程",
		ProgramID: f.program.ProgramID,
		Semester:  1,
	}
	if err := testDB.WithContext(ctx).Create(f.course).Error; err != nil {
		t.Fatalf("创建课程失败: %v", err)
	}
	f.room = &model.Room{Name: "A101", Capacity: 60, Kind: model.RoomLectureRoom, IsAvailable: true}
	if err := testDB.WithContext(ctx).Create(f.room).Error; err != nil {
		t.Fatalf("创建考场失败: %v", err)
	}
	f.professor = &model.Professor{Name: "测试教师", DepartmentID: f.dept.DepartmentID, IsActive: true}
	if err := testDB.WithContext(ctx).Create(f.professor).Error; err != nil {
		t.Fatalf("创建教师失败: %v", err)
	}

	cleanup := func() {
		testDB.Where("course_id = ?", f.course.CourseID).Delete(&model.ExamAssignment{})
		testDB.Where("course_id = ?", f.course.CourseID).Delete(&model.Enrollment{})
		testDB.Unscoped().Where("professor_id = ?", f.professor.ProfessorID).Delete(&model.ProfessorUnavailability{})
		testDB.Where("professor_id = ?", f.professor.ProfessorID).Delete(&model.Professor{})
		testDB.Where("room_id = ?", f.room.RoomID).Delete(&model.Room{})
		testDB.Where("course_id = ?", f.course.CourseID).Delete(&model.Course{})
		testDB.Where("program_id = ?", f.program.ProgramID).Delete(&model.Program{})
		testDB.Where("department_id = ?", f.dept.DepartmentID).Delete(&model.Department{})
	}
	return f, cleanup
}

func newAssignment(f *fixture) *model.ExamAssignment {
	return &model.ExamAssignment{
		CourseID:        f.course.CourseID,
		ProfessorID:     f.professor.ProfessorID,
		RoomID:          f.room.RoomID,
		StartTime:       time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 90,
		ExamType:        model.ExamTypeFinal,
		Status:          model.ExamStatusPlanned,
		Version:         1,
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Transaction Rollback
// ═══════════════════════════════════════════════════════════

func TestTransaction_Rollback(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	tx, err := repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx 失败: %v", err)
	}
	txRepo := repo.WithTx(tx)

	a := newAssignment(f)
	if err := txRepo.ExamAssignment.Create(ctx, a); err != nil {
		tx.Rollback()
		t.Fatalf("事务内创建考试安排失败: %v", err)
	}
	tx.Rollback()

	if _, err := repo.ExamAssignment.GetByID(ctx, a.AssignmentID); err == nil {
		t.Fatal("期望回滚后查不到考试安排，但实际查到了")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Optimistic Lock
// ═══════════════════════════════════════════════════════════

func TestOptimisticLock_ExamAssignment_ConflictDetected(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	a := newAssignment(f)
	if err := repo.ExamAssignment.Create(ctx, a); err != nil {
		t.Fatalf("创建考试安排失败: %v", err)
	}

	// 模拟并发：获取两份副本
	copy1, _ := repo.ExamAssignment.GetByID(ctx, a.AssignmentID)
	copy2, _ := repo.ExamAssignment.GetByID(ctx, a.AssignmentID)

	copy1.Status = model.ExamStatusConfirmed
	if err := repo.ExamAssignment.Update(ctx, copy1); err != nil {
		t.Fatalf("第一次更新应成功: %v", err)
	}
	if copy1.Version != 2 {
		t.Errorf("更新后 version 应为 2，得到: %d", copy1.Version)
	}

	copy2.Status = model.ExamStatusCancelled
	if err := repo.ExamAssignment.Update(ctx, copy2); !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望 ErrOptimisticLock，得到: %v", err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Catalog queries
// ═══════════════════════════════════════════════════════════

func TestEnrollment_ListRegisteredOnly(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewRepository(testDB)

	rows := []model.Enrollment{
		{StudentID: "00000000-0000-0000-0000-000000000001", CourseID: f.course.CourseID, AcademicYear: "2024-2025", Session: "normal", Status: model.EnrollmentRegistered},
		{StudentID: "00000000-0000-0000-0000-000000000002", CourseID: f.course.CourseID, AcademicYear: "2024-2025", Session: "normal", Status: model.EnrollmentWithdrawn},
	}
	if err := testDB.WithContext(ctx).Create(&rows).Error; err != nil {
		t.Fatalf("创建选课失败: %v", err)
	}

	list, err := repo.Enrollment.ListRegistered(ctx)
	if err != nil {
		t.Fatalf("ListRegistered 失败: %v", err)
	}
	n := 0
	for _, e := range list {
		if e.Status != model.EnrollmentRegistered {
			t.Errorf("ListRegistered 返回了非 registered 记录: %+v", e)
		}
		if e.CourseID == f.course.CourseID {
			n++
		}
	}
	if n != 1 {
		t.Errorf("期望 1 条 registered，实际 %d", n)
	}
}

func TestCourse_UpdatePrerequisite(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewRepository(testDB)

	other := &model.Course{Code: fmt.Sprintf("P%d", time.Now().UnixNano()), Name: "先修课", ProgramID: f.program.ProgramID, Semester: 1}
	if err := testDB.WithContext(ctx).Create(other).Error; err != nil {
		t.Fatalf("创建课程失败: %v", err)
	}
	defer testDB.Where("course_id = ?", other.CourseID).Delete(&model.Course{})

	if err := repo.Course.UpdatePrerequisite(ctx, f.course.CourseID, &other.CourseID, nil); err != nil {
		t.Fatalf("UpdatePrerequisite 失败: %v", err)
	}
	got, err := repo.Course.GetByID(ctx, f.course.CourseID)
	if err != nil {
		t.Fatalf("GetByID 失败: %v", err)
	}
	if got.PrerequisiteID == nil || *got.PrerequisiteID != other.CourseID {
		t.Errorf("先修课程未更新: %v", got.PrerequisiteID)
	}
	if got.DepartmentID() != f.dept.DepartmentID {
		t.Errorf("期望预加载培养方案得到系 %s，实际 %s", f.dept.DepartmentID, got.DepartmentID())
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Professor unavailability
// ═══════════════════════════════════════════════════════════

func TestUnavailability_ListAndSoftDelete(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewRepository(testDB)

	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	u := &model.ProfessorUnavailability{
		ProfessorID: f.professor.ProfessorID,
		StartTime:   day.Add(8 * time.Hour),
		EndTime:     day.Add(12 * time.Hour),
		Reason:      model.UnavailabilityMeeting,
	}
	if err := repo.Unavailability.Create(ctx, u); err != nil {
		t.Fatalf("Create 失败: %v", err)
	}

	got, err := repo.Unavailability.ListByProfessor(ctx, f.professor.ProfessorID, day.Add(11*time.Hour), day.Add(14*time.Hour))
	if err != nil || len(got) != 1 {
		t.Fatalf("期望与 11:00-14:00 相交的 1 条，实际 %d (%v)", len(got), err)
	}
	got, _ = repo.Unavailability.ListByProfessor(ctx, f.professor.ProfessorID, day.Add(12*time.Hour), day.Add(14*time.Hour))
	if len(got) != 0 {
		t.Errorf("12:00 起不应相交，实际 %d", len(got))
	}

	if err := repo.Unavailability.Delete(ctx, u.UnavailabilityID, nil); err != nil {
		t.Fatalf("Delete 失败: %v", err)
	}
	all, err := repo.Unavailability.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll 失败: %v", err)
	}
	for _, x := range all {
		if x.UnavailabilityID == u.UnavailabilityID {
			t.Error("软删除后仍被查询到")
		}
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Prerequisite graph lock
// ═══════════════════════════════════════════════════════════

func TestCourse_PrerequisiteLockSerializesTransactions(t *testing.T) {
	f, cleanup := setupTestData(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewRepository(testDB)

	var released atomic.Bool
	holding := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- repo.Transaction(ctx, func(tx *repository.Repository) error {
			if err := tx.Course.LockPrerequisites(ctx); err != nil {
				return err
			}
			close(holding)
			time.Sleep(200 * time.Millisecond)
			released.Store(true)
			return nil
		})
	}()

	<-holding
	err := repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Course.LockPrerequisites(ctx); err != nil {
			return err
		}
		if !released.Load() {
			t.Error("第二个事务在第一个事务提交前获得了先修关系锁")
		}
		_, err := tx.Course.GetByIDForUpdate(ctx, f.course.CourseID)
		return err
	})
	if err != nil {
		t.Fatalf("第二个事务失败: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("第一个事务失败: %v", err)
	}
}
