package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aya-cs/bdaprojet2/internal/dto"
	"github.com/aya-cs/bdaprojet2/internal/service"
	"github.com/aya-cs/bdaprojet2/pkg/response"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeICS  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportXLSX 导出考试安排 Excel
// GET /api/v1/exams/export/xlsx?from=...&to=...
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	h.export(c, h.exportSvc.ExportXLSX, contentTypeXLSX)
}

// ExportICS 导出考试安排日历
// GET /api/v1/exams/export/ics?from=...&to=...
func (h *ExportHandler) ExportICS(c *gin.Context) {
	h.export(c, h.exportSvc.ExportICS, contentTypeICS)
}

// ExportExamICS 导出单场考试日历
// GET /api/v1/exams/:id/ics
func (h *ExportHandler) ExportExamICS(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.BadRequest(c, 22001, "考试安排ID无效")
		return
	}

	buf, filename, err := h.exportSvc.ExportExamICS(c.Request.Context(), id)
	if err != nil {
		h.handleExportError(c, err)
		return
	}
	writeAttachment(c, filename, contentTypeICS, buf)
}

type exportFunc func(ctx context.Context, req *dto.ExportRequest) (*bytes.Buffer, string, error)

func (h *ExportHandler) export(c *gin.Context, fn exportFunc, contentType string) {
	var req dto.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 22001, "参数校验失败")
		return
	}
	if req.From != nil && req.To != nil && !req.To.After(*req.From) {
		response.BadRequest(c, 22001, "结束时间须晚于开始时间")
		return
	}

	buf, filename, err := fn(c.Request.Context(), &req)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	writeAttachment(c, filename, contentType, buf)
}

// writeAttachment 设置下载响应头并写入文件内容
func writeAttachment(c *gin.Context, filename, contentType string, buf *bytes.Buffer) {
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportNoExams):
		response.NotFound(c, 22101, "所选时间范围内没有考试安排")
	case errors.Is(err, service.ErrExportExamNotFound):
		response.NotFound(c, 22102, "考试安排不存在")
	default:
		response.InternalError(c)
	}
}
