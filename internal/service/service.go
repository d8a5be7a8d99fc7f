package service

import (
	"go.uber.org/zap"

	"github.com/aya-cs/bdaprojet2/config"
	"github.com/aya-cs/bdaprojet2/internal/repository"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Exam      ExamService
	Course    CourseService
	Professor ProfessorService
	Export    ExportService
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	coord *scheduler.Coordinator,
	logger *zap.Logger,
) *Service {
	return &Service{
		Exam:      NewExamService(&cfg.Scheduler, coord, repo.Department, logger),
		Course:    NewCourseService(repo, logger),
		Professor: NewProfessorService(repo, coord.Store(), logger),
		Export:    NewExportService(coord.Store(), repo, logger),
	}
}
