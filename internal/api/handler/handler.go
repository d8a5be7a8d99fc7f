package handler

import "github.com/aya-cs/bdaprojet2/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Exam      *ExamHandler
	Course    *CourseHandler
	Professor *ProfessorHandler
	Export    *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Exam:      NewExamHandler(svc.Exam),
		Course:    NewCourseHandler(svc.Course),
		Professor: NewProfessorHandler(svc.Professor),
		Export:    NewExportHandler(svc.Export),
	}
}
