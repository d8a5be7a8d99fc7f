package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aya-cs/bdaprojet2/internal/model"
	pkgerrors "github.com/aya-cs/bdaprojet2/pkg/errors"
)

// ExamAssignmentRepository 考试安排数据访问接口
// 写入只经由排考引擎的 Store（写穿），其余调用方只读
type ExamAssignmentRepository interface {
	Create(ctx context.Context, a *model.ExamAssignment) error
	Update(ctx context.Context, a *model.ExamAssignment) error
	GetByID(ctx context.Context, id string) (*model.ExamAssignment, error)
	ListAll(ctx context.Context) ([]model.ExamAssignment, error)
}

type examAssignmentRepo struct {
	db *gorm.DB
}

func NewExamAssignmentRepo(db *gorm.DB) ExamAssignmentRepository {
	return &examAssignmentRepo{db: db}
}

func (r *examAssignmentRepo) Create(ctx context.Context, a *model.ExamAssignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// Update 乐观锁更新：version 不匹配时返回 StaleVersionError（errors.Is 匹配 ErrOptimisticLock），成功后 a.Version 递增
func (r *examAssignmentRepo) Update(ctx context.Context, a *model.ExamAssignment) error {
	oldVersion := a.Version
	result := r.db.WithContext(ctx).
		Model(&model.ExamAssignment{}).
		Where("assignment_id = ? AND version = ?", a.AssignmentID, oldVersion).
		Updates(map[string]interface{}{
			"course_id":          a.CourseID,
			"professor_id":       a.ProfessorID,
			"room_id":            a.RoomID,
			"start_time":         a.StartTime,
			"duration_minutes":   a.DurationMinutes,
			"exam_type":          a.ExamType,
			"status":             a.Status,
			"enrolled_at_commit": a.EnrolledAtCommit,
			"updated_by":         a.UpdatedBy,
			"updated_at":         a.UpdatedAt,
			"version":            oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.StaleVersion(model.ExamAssignment{}.TableName(), a.AssignmentID, oldVersion)
	}
	a.Version = oldVersion + 1
	return nil
}

func (r *examAssignmentRepo) GetByID(ctx context.Context, id string) (*model.ExamAssignment, error) {
	var a model.ExamAssignment
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAll 全部考试安排（含终态，Store 启动时加载）
func (r *examAssignmentRepo) ListAll(ctx context.Context) ([]model.ExamAssignment, error) {
	var list []model.ExamAssignment
	err := r.db.WithContext(ctx).
		Order("start_time ASC, assignment_id ASC").
		Find(&list).Error
	return list, err
}
