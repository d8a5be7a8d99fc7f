package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aya-cs/bdaprojet2/internal/dto"
	"github.com/aya-cs/bdaprojet2/internal/model"
	"github.com/aya-cs/bdaprojet2/internal/repository"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoExams      = errors.New("所选时间范围内没有考试安排")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
	ErrExportExamNotFound = errors.New("考试安排不存在")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出内容为已提交的考试安排（不含 cancelled），可按时间范围过滤
//   - .xlsx 供教务打印，.ics 供师生导入日历
//   - 单场 .ics 读取数据库中的持久化记录，已取消的考试以 CANCELLED 事件导出，便于日历同步撤销
//   - 以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	ExportXLSX(ctx context.Context, req *dto.ExportRequest) (*bytes.Buffer, string, error)
	ExportICS(ctx context.Context, req *dto.ExportRequest) (*bytes.Buffer, string, error)
	ExportExamICS(ctx context.Context, assignmentID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	store  *scheduler.Store
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(store *scheduler.Store, repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{store: store, repo: repo, logger: logger}
}

var examTypeNames = map[string]string{
	model.ExamTypeFinal:   "期末",
	model.ExamTypeMidterm: "期中",
	model.ExamTypeRetake:  "补考",
	model.ExamTypeQuiz:    "测验",
}

var examStatusNames = map[string]string{
	model.ExamStatusPlanned:   "已排定",
	model.ExamStatusConfirmed: "已确认",
	model.ExamStatusCompleted: "已完成",
}

// ═══════════════════════════════════════════════════════════
// ExportXLSX — 导出考试安排为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "考试安排"：每场考试一行，按开考时间排序
//   - Sheet "按日汇总"：每日场次与应考人数

func (s *exportService) ExportXLSX(ctx context.Context, req *dto.ExportRequest) (*bytes.Buffer, string, error) {
	snap, exams, err := s.selectExams(ctx, req)
	if err != nil {
		return nil, "", err
	}
	catalog := snap.Catalog()
	loc := snap.Location()
	deptNames := s.departmentNames(ctx)

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "考试安排"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"日期", "开考", "结束", "课程代码", "课程名称", "开课系", "考场", "监考教师", "类型", "状态", "应考人数"}
	widths := []float64{12, 8, 8, 12, 28, 18, 14, 16, 8, 10, 10}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(sheetName, col, col, w)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 1), h)
	}
	f.SetCellStyle(sheetName, "A1", cell(colName(len(headers)-1), 1), headerStyle)
	f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	type daySummary struct {
		exams    int
		students int
	}
	summary := make(map[string]*daySummary)
	var days []string

	row := 2
	for i := range exams {
		a := &exams[i]
		start := a.StartTime.In(loc)
		course := catalog.Courses[a.CourseID]
		dept := course.DepartmentID()
		if name, ok := deptNames[dept]; ok {
			dept = name
		}
		enrolled := a.EnrolledAtCommit
		if enrolled == 0 {
			enrolled = snap.RegisteredCount(a.CourseID)
		}

		values := []interface{}{
			start.Format("2006-01-02"),
			start.Format("15:04"),
			a.EndTime().In(loc).Format("15:04"),
			course.Code,
			course.Name,
			dept,
			catalog.Rooms[a.RoomID].Name,
			catalog.Professors[a.ProfessorID].Name,
			examTypeNames[a.ExamType],
			examStatusNames[a.Status],
			enrolled,
		}
		for col, v := range values {
			f.SetCellValue(sheetName, cell(colName(col), row), v)
		}
		row++

		day := snap.DayOf(a.StartTime)
		if summary[day] == nil {
			summary[day] = &daySummary{}
			days = append(days, day)
		}
		summary[day].exams++
		summary[day].students += enrolled
	}

	// 按日汇总
	sumSheet := "按日汇总"
	f.NewSheet(sumSheet)
	f.SetColWidth(sumSheet, "A", "C", 14)
	f.SetCellValue(sumSheet, "A1", "日期")
	f.SetCellValue(sumSheet, "B1", "场次")
	f.SetCellValue(sumSheet, "C1", "应考人次")
	f.SetCellStyle(sumSheet, "A1", "C1", headerStyle)
	sort.Strings(days)
	for i, day := range days {
		r := i + 2
		f.SetCellValue(sumSheet, cell("A", r), day)
		f.SetCellValue(sumSheet, cell("B", r), summary[day].exams)
		f.SetCellValue(sumSheet, cell("C", r), summary[day].students)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	return buf, exportFilename(req, snap, "xlsx"), nil
}

// ═══════════════════════════════════════════════════════════
// ExportICS — 导出考试安排为 iCalendar
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportICS(ctx context.Context, req *dto.ExportRequest) (*bytes.Buffer, string, error) {
	snap, exams, err := s.selectExams(ctx, req)
	if err != nil {
		return nil, "", err
	}
	catalog := snap.Catalog()

	cal := newCalendar(snap)
	for i := range exams {
		addExamEvent(cal, catalog, &exams[i])
	}

	buf := bytes.NewBufferString(cal.Serialize())
	return buf, exportFilename(req, snap, "ics"), nil
}

// ExportExamICS 单场考试日历
func (s *exportService) ExportExamICS(ctx context.Context, assignmentID string) (*bytes.Buffer, string, error) {
	a, err := s.repo.ExamAssignment.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrExportExamNotFound
		}
		s.logger.Error("查询考试安排失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		return nil, "", err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	catalog := snap.Catalog()

	cal := newCalendar(snap)
	addExamEvent(cal, catalog, a)

	code := catalog.Courses[a.CourseID].Code
	if code == "" {
		code = a.AssignmentID
	}
	filename := fmt.Sprintf("考试_%s_%s.ics", code, snap.DayOf(a.StartTime))
	return bytes.NewBufferString(cal.Serialize()), filename, nil
}

// ── 辅助函数 ──

func newCalendar(snap *scheduler.Snapshot) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//exam-scheduler//timetable//ZH")
	cal.SetXWRCalName("考试安排")
	cal.SetXWRTimezone(snap.Location().String())
	return cal
}

// addExamEvent UID 取考试安排 ID，SEQUENCE 取乐观锁版本，日历客户端据此覆盖旧事件
func addExamEvent(cal *ics.Calendar, catalog *scheduler.Catalog, a *model.ExamAssignment) {
	course := catalog.Courses[a.CourseID]
	room := catalog.Rooms[a.RoomID]
	prof := catalog.Professors[a.ProfessorID]

	evt := cal.AddEvent(a.AssignmentID + "@exam-scheduler")
	evt.SetDtStampTime(a.UpdatedAt.UTC())
	evt.SetStartAt(a.StartTime.UTC())
	evt.SetEndAt(a.EndTime().UTC())
	evt.SetSummary(fmt.Sprintf("%s %s（%s）", course.Code, course.Name, examTypeNames[a.ExamType]))
	evt.SetLocation(room.Name)
	evt.SetDescription(fmt.Sprintf("监考教师：%s\n应考人数：%d", prof.Name, a.EnrolledAtCommit))
	switch a.Status {
	case model.ExamStatusPlanned:
		evt.SetStatus(ics.ObjectStatusTentative)
	case model.ExamStatusCancelled:
		evt.SetStatus(ics.ObjectStatusCancelled)
	default:
		evt.SetStatus(ics.ObjectStatusConfirmed)
	}
	evt.SetSequence(a.Version)
}

// selectExams 按时间范围选出未取消的考试安排，按开考时间排序
func (s *exportService) selectExams(ctx context.Context, req *dto.ExportRequest) (*scheduler.Snapshot, []model.ExamAssignment, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	var exams []model.ExamAssignment
	for _, a := range snap.All() {
		if a.Status == model.ExamStatusCancelled {
			continue
		}
		if req.From != nil && a.EndTime().Before(*req.From) {
			continue
		}
		if req.To != nil && !a.StartTime.Before(*req.To) {
			continue
		}
		exams = append(exams, a)
	}
	if len(exams) == 0 {
		return nil, nil, ErrExportNoExams
	}
	sort.Slice(exams, func(i, j int) bool {
		if !exams[i].StartTime.Equal(exams[j].StartTime) {
			return exams[i].StartTime.Before(exams[j].StartTime)
		}
		return exams[i].AssignmentID < exams[j].AssignmentID
	})
	return snap, exams, nil
}

// departmentNames 系名称索引；查询失败时退化为显示 ID
func (s *exportService) departmentNames(ctx context.Context) map[string]string {
	names := make(map[string]string)
	depts, err := s.repo.Department.ListAll(ctx)
	if err != nil {
		s.logger.Warn("查询系名称失败", zap.Error(err))
		return names
	}
	for _, d := range depts {
		names[d.DepartmentID] = d.Name
	}
	return names
}

func exportFilename(req *dto.ExportRequest, snap *scheduler.Snapshot, ext string) string {
	if req.From != nil && req.To != nil {
		return fmt.Sprintf("考试安排_%s_%s.%s", snap.DayOf(*req.From), snap.DayOf(req.To.Add(-time.Nanosecond)), ext)
	}
	return fmt.Sprintf("考试安排_v%d.%s", snap.Version(), ext)
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
