package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// ── 排考维度数据（只读）──

// EnrollmentRepository 选课数据访问接口
type EnrollmentRepository interface {
	ListRegistered(ctx context.Context) ([]model.Enrollment, error)
}

// RoomRepository 考场数据访问接口
type RoomRepository interface {
	ListAll(ctx context.Context) ([]model.Room, error)
}

// ProfessorRepository 教师数据访问接口
type ProfessorRepository interface {
	GetByID(ctx context.Context, id string) (*model.Professor, error)
	ListAll(ctx context.Context) ([]model.Professor, error)
}

// ── Enrollment Repository 实现 ──

type enrollmentRepo struct {
	db *gorm.DB
}

func NewEnrollmentRepo(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepo{db: db}
}

// ListRegistered 仅返回 registered 状态的选课，只取排考需要的列
func (r *enrollmentRepo) ListRegistered(ctx context.Context) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.db.WithContext(ctx).
		Select("enrollment_id", "student_id", "course_id", "status").
		Where("status = ?", model.EnrollmentRegistered).
		Order("course_id ASC, student_id ASC").
		Find(&list).Error
	return list, err
}

// ── Room Repository 实现 ──

type roomRepo struct {
	db *gorm.DB
}

func NewRoomRepo(db *gorm.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) ListAll(ctx context.Context) ([]model.Room, error) {
	var rooms []model.Room
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&rooms).Error
	return rooms, err
}

// ── Professor Repository 实现 ──

type professorRepo struct {
	db *gorm.DB
}

func NewProfessorRepo(db *gorm.DB) ProfessorRepository {
	return &professorRepo{db: db}
}

func (r *professorRepo) ListAll(ctx context.Context) ([]model.Professor, error) {
	var profs []model.Professor
	err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&profs).Error
	return profs, err
}

func (r *professorRepo) GetByID(ctx context.Context, id string) (*model.Professor, error) {
	var prof model.Professor
	err := r.db.WithContext(ctx).Where("professor_id = ?", id).First(&prof).Error
	if err != nil {
		return nil, err
	}
	return &prof, nil
}
