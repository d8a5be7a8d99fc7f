package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aya-cs/bdaprojet2/internal/model"
)

// CourseRepository 课程数据访问接口
// 课程本身由学籍系统维护，排考服务只修改先修关系
type CourseRepository interface {
	GetByID(ctx context.Context, id string) (*model.Course, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.Course, error)
	ListAll(ctx context.Context) ([]model.Course, error)
	LockPrerequisites(ctx context.Context) error
	UpdatePrerequisite(ctx context.Context, courseID string, prerequisiteID *string, updatedBy *string) error
}

// prerequisiteLockKey 先修关系图的事务级咨询锁
const prerequisiteLockKey int64 = 0x70726571 // "preq"

type courseRepo struct {
	db *gorm.DB
}

// NewCourseRepo 创建 CourseRepository 实例
func NewCourseRepo(db *gorm.DB) CourseRepository {
	return &courseRepo{db: db}
}

func (r *courseRepo) GetByID(ctx context.Context, id string) (*model.Course, error) {
	var course model.Course
	err := r.db.WithContext(ctx).
		Preload("Program").
		Where("course_id = ?", id).
		First(&course).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// GetByIDForUpdate 行锁读取，必须在事务内调用
func (r *courseRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Course, error) {
	var course model.Course
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("course_id = ?", id).
		First(&course).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// LockPrerequisites 串行化先修关系的"检查 + 写入"，锁随事务结束释放
// 必须在事务内调用
func (r *courseRepo) LockPrerequisites(ctx context.Context) error {
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", prerequisiteLockKey).Error
}

// ListAll 全部课程，预加载培养方案（用于判定开课系）
func (r *courseRepo) ListAll(ctx context.Context) ([]model.Course, error) {
	var courses []model.Course
	err := r.db.WithContext(ctx).
		Preload("Program").
		Order("code ASC").
		Find(&courses).Error
	return courses, err
}

func (r *courseRepo) UpdatePrerequisite(ctx context.Context, courseID string, prerequisiteID *string, updatedBy *string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Course{}).
		Where("course_id = ?", courseID).
		Updates(map[string]interface{}{
			"prerequisite_id": prerequisiteID,
			"updated_by":      updatedBy,
			"updated_at":      gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
