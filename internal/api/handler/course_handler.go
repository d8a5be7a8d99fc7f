package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/aya-cs/bdaprojet2/internal/dto"
	"github.com/aya-cs/bdaprojet2/internal/service"
	"github.com/aya-cs/bdaprojet2/pkg/response"
)

// CourseHandler 课程模块 HTTP 处理器
type CourseHandler struct {
	courseSvc service.CourseService
}

// NewCourseHandler 创建 CourseHandler
func NewCourseHandler(courseSvc service.CourseService) *CourseHandler {
	return &CourseHandler{courseSvc: courseSvc}
}

// SetPrerequisite 设置 / 清除先修课程
// PUT /api/v1/courses/:id/prerequisite
func (h *CourseHandler) SetPrerequisite(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 21001, "课程ID不能为空")
		return
	}

	var req dto.SetPrerequisiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 21001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.courseSvc.SetPrerequisite(c.Request.Context(), id, &req, callerID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCourseNotFound):
			response.NotFound(c, 21101, "课程不存在")
		case errors.Is(err, service.ErrPrerequisiteNotFound):
			response.NotFound(c, 21102, "先修课程不存在")
		case errors.Is(err, service.ErrPrerequisiteCycle):
			response.BadRequest(c, 21103, "先修关系不能形成环")
		case errors.Is(err, service.ErrPrerequisiteChainTooLong):
			response.BadRequest(c, 21104, "先修链过长")
		default:
			response.InternalError(c)
		}
		return
	}

	response.OK(c, result)
}
