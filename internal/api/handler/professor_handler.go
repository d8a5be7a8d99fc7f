package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aya-cs/bdaprojet2/internal/dto"
	"github.com/aya-cs/bdaprojet2/internal/service"
	"github.com/aya-cs/bdaprojet2/pkg/jwt"
	"github.com/aya-cs/bdaprojet2/pkg/response"
)

// ProfessorHandler 教师模块 HTTP 处理器
type ProfessorHandler struct {
	professorSvc service.ProfessorService
}

// NewProfessorHandler 创建 ProfessorHandler
func NewProfessorHandler(professorSvc service.ProfessorService) *ProfessorHandler {
	return &ProfessorHandler{professorSvc: professorSvc}
}

// ListUnavailability 不可监考时段列表
// GET /api/v1/professors/:id/unavailability
func (h *ProfessorHandler) ListUnavailability(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.UnavailabilityListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 23001, "参数校验失败")
		return
	}

	list, err := h.professorSvc.ListUnavailability(c.Request.Context(), id, &req)
	if err != nil {
		h.handleProfessorError(c, err)
		return
	}

	response.OK(c, list)
}

// AddUnavailability 登记不可监考时段
// POST /api/v1/professors/:id/unavailability
func (h *ProfessorHandler) AddUnavailability(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.CreateUnavailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 23001, "参数校验失败")
		return
	}

	callerID, ok := mustManageProfessor(c, id)
	if !ok {
		return
	}

	result, err := h.professorSvc.AddUnavailability(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleProfessorError(c, err)
		return
	}

	response.Created(c, result)
}

// DeleteUnavailability 删除不可监考时段
// DELETE /api/v1/professors/:id/unavailability/:uid
func (h *ProfessorHandler) DeleteUnavailability(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	uid, ok := uuidParam(c, "uid")
	if !ok {
		return
	}
	callerID, ok := mustManageProfessor(c, id)
	if !ok {
		return
	}

	if err := h.professorSvc.DeleteUnavailability(c.Request.Context(), id, uid, callerID); err != nil {
		h.handleProfessorError(c, err)
		return
	}

	response.OK(c, nil)
}

func uuidParam(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if _, err := uuid.Parse(v); err != nil {
		response.BadRequest(c, 23001, "路径参数无效")
		return "", false
	}
	return v, true
}

// mustManageProfessor 管理员与排考员可维护任意教师，其余用户只能维护本人
func mustManageProfessor(c *gin.Context, professorID string) (string, bool) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return "", false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return "", false
	}
	if role != jwt.RoleAdmin && role != jwt.RolePlanner && callerID != professorID {
		response.Forbidden(c, 10003, "只能维护本人的不可监考时段")
		return "", false
	}
	return callerID, true
}

// handleProfessorError 统一处理教师模块业务错误
func (h *ProfessorHandler) handleProfessorError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrProfessorNotFound):
		response.NotFound(c, 23101, "教师不存在")
	case errors.Is(err, service.ErrUnavailabilityNotFound):
		response.NotFound(c, 23102, "不可监考时段不存在")
	case errors.Is(err, service.ErrUnavailabilityRange):
		response.BadRequest(c, 23103, "结束时间必须晚于开始时间")
	default:
		response.InternalError(c)
	}
}
