package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aya-cs/bdaprojet2/internal/dto"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
	"github.com/aya-cs/bdaprojet2/internal/service"
	"github.com/aya-cs/bdaprojet2/pkg/response"
)

// statusClientClosedRequest 调用方已断开（nginx 约定）
const statusClientClosedRequest = 499

// ExamHandler 排考模块 HTTP 处理器
type ExamHandler struct {
	examSvc service.ExamService
}

// NewExamHandler 创建 ExamHandler
func NewExamHandler(examSvc service.ExamService) *ExamHandler {
	return &ExamHandler{examSvc: examSvc}
}

// Candidates 生成候选安排
// POST /api/v1/exams/candidates
func (h *ExamHandler) Candidates(c *gin.Context) {
	var req dto.CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	result, err := h.examSvc.Candidates(c.Request.Context(), &req)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, result)
}

// Validate 试校验（不写入）
// POST /api/v1/exams/validate
func (h *ExamHandler) Validate(c *gin.Context) {
	var req dto.ExamProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	result, err := h.examSvc.Validate(c.Request.Context(), &req)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, result)
}

// Commit 提交考试安排（新增或调整）
// POST /api/v1/exams
func (h *ExamHandler) Commit(c *gin.Context) {
	var req dto.ExamProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.examSvc.Commit(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	if req.AssignmentID == "" {
		response.Created(c, result)
		return
	}
	response.OK(c, result)
}

// Plan 贪心排考
// POST /api/v1/exams/plan
func (h *ExamHandler) Plan(c *gin.Context) {
	var req dto.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.examSvc.Plan(c.Request.Context(), &req, callerID)
	if err != nil {
		// 部分已提交时仍返回已完成的部分
		if result != nil && len(result.Committed) > 0 {
			response.ErrorWithData(c, http.StatusConflict, 20110, "排考中途终止，已提交部分保留", result)
			return
		}
		h.handleExamError(c, err)
		return
	}

	response.OK(c, result)
}

// Conflicts 冲突扫描
// GET /api/v1/exams/conflicts
func (h *ExamHandler) Conflicts(c *gin.Context) {
	var req dto.ConflictRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	result, err := h.examSvc.Conflicts(c.Request.Context(), &req)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, result)
}

// List 考试安排列表
// GET /api/v1/exams
func (h *ExamHandler) List(c *gin.Context) {
	var req dto.ExamListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	list, total, err := h.examSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// UpdateStatus 确认 / 取消 / 完成
// PUT /api/v1/exams/:id/status
func (h *ExamHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 20001, "考试安排ID不能为空")
		return
	}

	var req dto.UpdateExamStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.examSvc.UpdateStatus(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, result)
}

// handleExamError 统一处理排考模块业务错误
func (h *ExamHandler) handleExamError(c *gin.Context, err error) {
	if ve, ok := scheduler.AsValidationError(err); ok {
		response.ErrorWithData(c, http.StatusUnprocessableEntity, 20101, "考试安排未通过校验", gin.H{"violations": ve.Violations})
		return
	}
	switch {
	case errors.Is(err, scheduler.ErrResourceConflict):
		response.Conflict(c, 20102, "资源繁忙，请稍后重试")
	case errors.Is(err, scheduler.ErrNotFound):
		response.ErrorWithDetails(c, http.StatusNotFound, 20103, "引用的数据不存在", err.Error())
	case errors.Is(err, scheduler.ErrInvalidTransition):
		response.BadRequest(c, 20104, "考试状态不允许此变更")
	case errors.Is(err, scheduler.ErrExamNotFinished):
		response.BadRequest(c, 20105, "考试尚未结束，不能标记为已完成")
	case errors.Is(err, scheduler.ErrInvalidWindow):
		response.BadRequest(c, 20106, "时间窗口无效")
	case errors.Is(err, service.ErrExamWindowTooLarge):
		response.BadRequest(c, 20107, "时间窗口不能超过 62 天")
	case errors.Is(err, service.ErrExamProposalIncomplete):
		response.BadRequest(c, 20108, "新增考试安排须提供课程、教师、考场、开考时间与时长")
	case errors.Is(err, service.ErrExamInvalidStatus):
		response.BadRequest(c, 20109, "不支持的目标状态")
	case errors.Is(err, service.ErrDepartmentNotFound):
		response.NotFound(c, 20112, "系不存在")
	case errors.Is(err, scheduler.ErrCancelled):
		response.Error(c, statusClientClosedRequest, 20111, "请求已取消")
	default:
		response.InternalError(c)
	}
}
