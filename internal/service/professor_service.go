package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aya-cs/bdaprojet2/internal/dto"
	"github.com/aya-cs/bdaprojet2/internal/model"
	"github.com/aya-cs/bdaprojet2/internal/repository"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
)

// ── 教师模块业务错误 ──

var (
	ErrProfessorNotFound      = errors.New("教师不存在")
	ErrUnavailabilityNotFound = errors.New("不可监考时段不存在")
	ErrUnavailabilityRange    = errors.New("结束时间必须晚于开始时间")
)

// 未指定查询范围时的上下界
var (
	unavailabilityFloor   = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	unavailabilityCeiling = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// ProfessorService 教师不可监考时段维护
type ProfessorService interface {
	ListUnavailability(ctx context.Context, professorID string, req *dto.UnavailabilityListRequest) ([]dto.UnavailabilityResponse, error)
	AddUnavailability(ctx context.Context, professorID string, req *dto.CreateUnavailabilityRequest, callerID string) (*dto.UnavailabilityResponse, error)
	DeleteUnavailability(ctx context.Context, professorID, unavailabilityID, callerID string) error
}

type professorService struct {
	repo   *repository.Repository
	store  *scheduler.Store
	logger *zap.Logger
}

// NewProfessorService 创建 ProfessorService 实例；写入后丢弃 store 缓存的维度数据
func NewProfessorService(repo *repository.Repository, store *scheduler.Store, logger *zap.Logger) ProfessorService {
	return &professorService{repo: repo, store: store, logger: logger}
}

func (s *professorService) ListUnavailability(ctx context.Context, professorID string, req *dto.UnavailabilityListRequest) ([]dto.UnavailabilityResponse, error) {
	if err := s.checkProfessor(ctx, professorID); err != nil {
		return nil, err
	}
	from, to := unavailabilityFloor, unavailabilityCeiling
	if req.From != nil {
		from = *req.From
	}
	if req.To != nil {
		to = *req.To
	}
	if !to.After(from) {
		return nil, ErrUnavailabilityRange
	}

	list, err := s.repo.Unavailability.ListByProfessor(ctx, professorID, from, to)
	if err != nil {
		s.logger.Error("查询不可监考时段失败", zap.String("professor_id", professorID), zap.Error(err))
		return nil, err
	}
	result := make([]dto.UnavailabilityResponse, 0, len(list))
	for i := range list {
		result = append(result, toUnavailabilityResponse(&list[i]))
	}
	return result, nil
}

func (s *professorService) AddUnavailability(ctx context.Context, professorID string, req *dto.CreateUnavailabilityRequest, callerID string) (*dto.UnavailabilityResponse, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, ErrUnavailabilityRange
	}
	if err := s.checkProfessor(ctx, professorID); err != nil {
		return nil, err
	}

	u := &model.ProfessorUnavailability{
		ProfessorID: professorID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Reason:      req.Reason,
		Details:     req.Details,
	}
	if _, err := uuid.Parse(callerID); err == nil {
		u.CreatedBy = &callerID
		u.UpdatedBy = &callerID
	}
	if err := s.repo.Unavailability.Create(ctx, u); err != nil {
		s.logger.Error("登记不可监考时段失败", zap.String("professor_id", professorID), zap.Error(err))
		return nil, err
	}
	s.store.InvalidateCatalog()

	s.logger.Info("不可监考时段已登记",
		zap.String("professor_id", professorID),
		zap.String("unavailability_id", u.UnavailabilityID),
		zap.Time("start", u.StartTime),
		zap.Time("end", u.EndTime),
		zap.String("operator", callerID))
	resp := toUnavailabilityResponse(u)
	return &resp, nil
}

func (s *professorService) DeleteUnavailability(ctx context.Context, professorID, unavailabilityID, callerID string) error {
	u, err := s.repo.Unavailability.GetByID(ctx, unavailabilityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnavailabilityNotFound
		}
		s.logger.Error("查询不可监考时段失败", zap.String("unavailability_id", unavailabilityID), zap.Error(err))
		return err
	}
	// 路径中的教师与记录不符时按不存在处理
	if u.ProfessorID != professorID {
		return ErrUnavailabilityNotFound
	}

	var deletedBy *string
	if _, err := uuid.Parse(callerID); err == nil {
		deletedBy = &callerID
	}
	if err := s.repo.Unavailability.Delete(ctx, unavailabilityID, deletedBy); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnavailabilityNotFound
		}
		s.logger.Error("删除不可监考时段失败", zap.String("unavailability_id", unavailabilityID), zap.Error(err))
		return err
	}
	s.store.InvalidateCatalog()

	s.logger.Info("不可监考时段已删除",
		zap.String("professor_id", professorID),
		zap.String("unavailability_id", unavailabilityID),
		zap.String("operator", callerID))
	return nil
}

func (s *professorService) checkProfessor(ctx context.Context, professorID string) error {
	if _, err := s.repo.Professor.GetByID(ctx, professorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProfessorNotFound
		}
		s.logger.Error("查询教师失败", zap.String("professor_id", professorID), zap.Error(err))
		return err
	}
	return nil
}

func toUnavailabilityResponse(u *model.ProfessorUnavailability) dto.UnavailabilityResponse {
	return dto.UnavailabilityResponse{
		ID:          u.UnavailabilityID,
		ProfessorID: u.ProfessorID,
		StartTime:   u.StartTime.Format(time.RFC3339),
		EndTime:     u.EndTime.Format(time.RFC3339),
		Reason:      u.Reason,
		Details:     u.Details,
	}
}
