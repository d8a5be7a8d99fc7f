package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aya-cs/bdaprojet2/internal/dto"
	"github.com/aya-cs/bdaprojet2/internal/model"
	"github.com/aya-cs/bdaprojet2/internal/repository"
)

// ── 课程模块业务错误 ──

var (
	ErrCourseNotFound           = errors.New("课程不存在")
	ErrPrerequisiteNotFound     = errors.New("先修课程不存在")
	ErrPrerequisiteCycle        = errors.New("先修关系不能形成环")
	ErrPrerequisiteChainTooLong = errors.New("先修链过长")
)

const maxPrerequisiteDepth = 64

// CourseService 课程业务接口（排考服务只维护先修关系）
type CourseService interface {
	SetPrerequisite(ctx context.Context, courseID string, req *dto.SetPrerequisiteRequest, callerID string) (*dto.CourseResponse, error)
}

type courseService struct {
	repo   *repository.Repository
	logger *zap.Logger

	// 同进程内串行化；跨实例由事务内的数据库咨询锁保证
	prerequisiteMu sync.Mutex
}

// NewCourseService 创建 CourseService 实例
func NewCourseService(repo *repository.Repository, logger *zap.Logger) CourseService {
	return &courseService{repo: repo, logger: logger}
}

// ════════════════════════════════════════════════════════════
// SetPrerequisite — 设置 / 清除先修课程
// ════════════════════════════════════════════════════════════
//
// 先修关系构成森林：从新的先修课程出发沿 prerequisite_id 向上走，
// 若回到本课程则拒绝。检查与写入在同一事务内、持有先修关系锁完成，
// 并发的 A→B 与 B→A 请求只有一个能成功。

func (s *courseService) SetPrerequisite(ctx context.Context, courseID string, req *dto.SetPrerequisiteRequest, callerID string) (*dto.CourseResponse, error) {
	var updatedBy *string
	if _, err := uuid.Parse(callerID); err == nil {
		updatedBy = &callerID
	}

	s.prerequisiteMu.Lock()
	defer s.prerequisiteMu.Unlock()

	var course *model.Course
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Course.LockPrerequisites(ctx); err != nil {
			s.logger.Error("获取先修关系锁失败", zap.Error(err))
			return err
		}
		if _, err := s.getCourse(ctx, tx.Course.GetByIDForUpdate, courseID, ErrCourseNotFound); err != nil {
			return err
		}
		c, err := s.getCourse(ctx, tx.Course.GetByID, courseID, ErrCourseNotFound)
		if err != nil {
			return err
		}
		if req.PrerequisiteID != nil {
			if err := s.checkAcyclic(ctx, tx, courseID, *req.PrerequisiteID); err != nil {
				return err
			}
		}
		if err := tx.Course.UpdatePrerequisite(ctx, courseID, req.PrerequisiteID, updatedBy); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCourseNotFound
			}
			s.logger.Error("更新先修课程失败", zap.String("course_id", courseID), zap.Error(err))
			return err
		}
		course = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	course.PrerequisiteID = req.PrerequisiteID
	s.logger.Info("先修课程已更新",
		zap.String("course_id", courseID),
		zap.Stringp("prerequisite_id", req.PrerequisiteID),
		zap.String("operator", callerID))
	return toCourseResponse(course), nil
}

func (s *courseService) checkAcyclic(ctx context.Context, tx *repository.Repository, courseID, prerequisiteID string) error {
	if prerequisiteID == courseID {
		return ErrPrerequisiteCycle
	}
	next := &prerequisiteID
	for depth := 0; next != nil; depth++ {
		if depth >= maxPrerequisiteDepth {
			return ErrPrerequisiteChainTooLong
		}
		notFound := ErrPrerequisiteNotFound
		if depth > 0 {
			// 链上中间节点缺失视为链在此终止
			notFound = nil
		}
		c, err := s.getCourse(ctx, tx.Course.GetByID, *next, notFound)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		if c.PrerequisiteID != nil && *c.PrerequisiteID == courseID {
			return ErrPrerequisiteCycle
		}
		next = c.PrerequisiteID
	}
	return nil
}

// getCourse 查询课程；不存在时返回 notFound（为 nil 时返回 nil, nil）
func (s *courseService) getCourse(ctx context.Context, get func(context.Context, string) (*model.Course, error), id string, notFound error) (*model.Course, error) {
	c, err := get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound
		}
		s.logger.Error("查询课程失败", zap.String("course_id", id), zap.Error(err))
		return nil, err
	}
	return c, nil
}

func toCourseResponse(c *model.Course) *dto.CourseResponse {
	return &dto.CourseResponse{
		ID:             c.CourseID,
		Code:           c.Code,
		Name:           c.Name,
		Credits:        c.Credits,
		Semester:       c.Semester,
		DepartmentID:   c.DepartmentID(),
		PrerequisiteID: c.PrerequisiteID,
	}
}
