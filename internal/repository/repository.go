package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	Department     DepartmentRepository
	Course         CourseRepository
	Enrollment     EnrollmentRepository
	Room           RoomRepository
	Professor      ProfessorRepository
	Unavailability ProfessorUnavailabilityRepository
	ExamAssignment ExamAssignmentRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:             db,
		Department:     NewDepartmentRepo(db),
		Course:         NewCourseRepo(db),
		Enrollment:     NewEnrollmentRepo(db),
		Room:           NewRoomRepo(db),
		Professor:      NewProfessorRepo(db),
		Unavailability: NewProfessorUnavailabilityRepo(db),
		ExamAssignment: NewExamAssignmentRepo(db),
	}
}

// BeginTx 开启事务
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到事务的 Repository 聚合
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return NewRepository(tx)
}

// Transaction 在同一事务中执行 fn，fn 返回错误或 panic 时回滚
// 未绑定数据库连接的聚合（单元测试注入的 mock）直接在自身上执行 fn
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}
