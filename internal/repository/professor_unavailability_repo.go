package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// ProfessorUnavailabilityRepository 教师不可监考时段数据访问接口
type ProfessorUnavailabilityRepository interface {
	ListAll(ctx context.Context) ([]model.ProfessorUnavailability, error)
	ListByProfessor(ctx context.Context, professorID string, from, to time.Time) ([]model.ProfessorUnavailability, error)
	GetByID(ctx context.Context, id string) (*model.ProfessorUnavailability, error)
	Create(ctx context.Context, u *model.ProfessorUnavailability) error
	Delete(ctx context.Context, id string, deletedBy *string) error
}

type professorUnavailabilityRepo struct {
	db *gorm.DB
}

// NewProfessorUnavailabilityRepo 创建 ProfessorUnavailabilityRepository 实例
func NewProfessorUnavailabilityRepo(db *gorm.DB) ProfessorUnavailabilityRepository {
	return &professorUnavailabilityRepo{db: db}
}

// ListAll 全部未删除的时段（构建排考维度数据用）
func (r *professorUnavailabilityRepo) ListAll(ctx context.Context) ([]model.ProfessorUnavailability, error) {
	var list []model.ProfessorUnavailability
	err := r.db.WithContext(ctx).
		Order("professor_id ASC, start_time ASC").
		Find(&list).Error
	return list, err
}

// ListByProfessor 与 [from, to) 相交的时段
func (r *professorUnavailabilityRepo) ListByProfessor(ctx context.Context, professorID string, from, to time.Time) ([]model.ProfessorUnavailability, error) {
	var list []model.ProfessorUnavailability
	err := r.db.WithContext(ctx).
		Where("professor_id = ? AND start_time < ? AND end_time > ?", professorID, to, from).
		Order("start_time ASC").
		Find(&list).Error
	return list, err
}

func (r *professorUnavailabilityRepo) GetByID(ctx context.Context, id string) (*model.ProfessorUnavailability, error) {
	var u model.ProfessorUnavailability
	err := r.db.WithContext(ctx).Where("unavailability_id = ?", id).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *professorUnavailabilityRepo) Create(ctx context.Context, u *model.ProfessorUnavailability) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *professorUnavailabilityRepo) Delete(ctx context.Context, id string, deletedBy *string) error {
	result := r.db.WithContext(ctx).
		Model(&model.ProfessorUnavailability{}).
		Where("unavailability_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
