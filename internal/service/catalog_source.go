package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aya-cs/bdaprojet2/internal/model"
	"github.com/aya-cs/bdaprojet2/internal/repository"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
)

// catalogSource 从数据库加载排考维度数据，实现 scheduler.CatalogSource
type catalogSource struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewCatalogSource 创建维度数据来源
func NewCatalogSource(repo *repository.Repository, logger *zap.Logger) scheduler.CatalogSource {
	return &catalogSource{repo: repo, logger: logger}
}

// LoadCatalog 并发读取五张维度表，任一失败即整体失败
func (s *catalogSource) LoadCatalog(ctx context.Context) (*scheduler.Catalog, error) {
	var (
		courses     []model.Course
		rooms       []model.Room
		professors  []model.Professor
		enrollments []model.Enrollment
		unavailable []model.ProfessorUnavailability
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if courses, err = s.repo.Course.ListAll(gctx); err != nil {
			return fmt.Errorf("查询课程失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if rooms, err = s.repo.Room.ListAll(gctx); err != nil {
			return fmt.Errorf("查询考场失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if professors, err = s.repo.Professor.ListAll(gctx); err != nil {
			return fmt.Errorf("查询教师失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if enrollments, err = s.repo.Enrollment.ListRegistered(gctx); err != nil {
			return fmt.Errorf("查询选课失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if unavailable, err = s.repo.Unavailability.ListAll(gctx); err != nil {
			return fmt.Errorf("查询教师不可监考时段失败: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("加载排考维度数据失败", zap.Error(err))
		return nil, err
	}

	s.logger.Debug("排考维度数据已加载",
		zap.Int("courses", len(courses)),
		zap.Int("rooms", len(rooms)),
		zap.Int("professors", len(professors)),
		zap.Int("enrollments", len(enrollments)),
		zap.Int("unavailabilities", len(unavailable)),
	)
	return scheduler.NewCatalog(courses, rooms, professors, enrollments, unavailable), nil
}
