package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/aya-cs/bdaprojet2/internal/dto"
	"github.com/aya-cs/bdaprojet2/internal/scheduler"
)

var exportNow = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

func seedExams(t *testing.T, env *testEnv) {
	t.Helper()
	proposals := []scheduler.Proposal{
		{CourseID: testCourseA, ProfessorID: testProfID, RoomID: testRoom, StartTime: time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC), DurationMinutes: 120},
		{CourseID: testCourseB, ProfessorID: testProfID, RoomID: testRoom, StartTime: time.Date(2025, 1, 21, 9, 0, 0, 0, time.UTC), DurationMinutes: 90},
	}
	for _, p := range proposals {
		if _, err := env.coord.Commit(context.Background(), p); err != nil {
			t.Fatalf("Commit 失败: %v", err)
		}
	}
}

func TestExportXLSX_NoExams(t *testing.T) {
	env := newTestEnv(exportNow)
	svc := NewExportService(env.coord.Store(), env.repo, zap.NewNop())

	_, _, err := svc.ExportXLSX(context.Background(), &dto.ExportRequest{})
	if !errors.Is(err, ErrExportNoExams) {
		t.Fatalf("期望 ErrExportNoExams，实际 %v", err)
	}
}

func TestExportXLSX_Content(t *testing.T) {
	env := newTestEnv(exportNow)
	seedExams(t, env)
	svc := NewExportService(env.coord.Store(), env.repo, zap.NewNop())

	buf, filename, err := svc.ExportXLSX(context.Background(), &dto.ExportRequest{})
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if !strings.HasSuffix(filename, ".xlsx") {
		t.Errorf("文件名 = %q", filename)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("打开 Excel 失败: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("考试安排")
	if err != nil {
		t.Fatalf("读取工作表失败: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("期望 1 行表头 + 2 行数据，实际 %d 行", len(rows))
	}
	if rows[0][0] != "日期" || rows[0][4] != "课程名称" {
		t.Errorf("表头不符: %v", rows[0])
	}
	if rows[1][0] != "2025-01-20" || rows[1][3] != "INF101" || rows[1][5] != "计算机系" {
		t.Errorf("第一行数据不符: %v", rows[1])
	}
	if rows[1][10] != "40" {
		t.Errorf("应考人数 = %s, want 40", rows[1][10])
	}

	summary, err := f.GetRows("按日汇总")
	if err != nil {
		t.Fatalf("读取汇总表失败: %v", err)
	}
	if len(summary) != 3 {
		t.Errorf("汇总表期望 3 行，实际 %d", len(summary))
	}
}

func TestExportXLSX_WindowFilter(t *testing.T) {
	env := newTestEnv(exportNow)
	seedExams(t, env)
	svc := NewExportService(env.coord.Store(), env.repo, zap.NewNop())

	from := time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC)
	buf, filename, err := svc.ExportXLSX(context.Background(), &dto.ExportRequest{From: &from, To: &to})
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if filename != "考试安排_2025-01-21_2025-01-21.xlsx" {
		t.Errorf("文件名 = %q", filename)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("打开 Excel 失败: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("考试安排")
	if len(rows) != 2 || rows[1][3] != "INF102" {
		t.Errorf("窗口过滤结果不符: %v", rows)
	}
}

func TestExportICS_SkipsCancelled(t *testing.T) {
	env := newTestEnv(exportNow)
	seedExams(t, env)
	snap, _ := env.coord.Store().Snapshot(context.Background())
	var cancelID string
	for _, a := range snap.All() {
		if a.CourseID == testCourseB {
			cancelID = a.AssignmentID
		}
	}
	if _, err := env.coord.Transition(context.Background(), cancelID, scheduler.EventCancel, testCallerID); err != nil {
		t.Fatalf("取消失败: %v", err)
	}

	svc := NewExportService(env.coord.Store(), env.repo, zap.NewNop())
	buf, filename, err := svc.ExportICS(context.Background(), &dto.ExportRequest{})
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if !strings.HasSuffix(filename, ".ics") {
		t.Errorf("文件名 = %q", filename)
	}

	cal, err := ics.ParseCalendar(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("解析 ICS 失败: %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("期望 1 个事件，实际 %d", len(events))
	}
	summary := events[0].GetProperty(ics.ComponentPropertySummary)
	if summary == nil || !strings.Contains(summary.Value, "INF101") {
		t.Errorf("事件标题不符: %v", summary)
	}
	start, err := events[0].GetStartAt()
	if err != nil || !start.Equal(time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("开考时间 = %v (%v)", start, err)
	}
}

func TestExportExamICS_SingleCancelledExam(t *testing.T) {
	env := newTestEnv(exportNow)
	seedExams(t, env)
	snap, _ := env.coord.Store().Snapshot(context.Background())
	var cancelID string
	for _, a := range snap.All() {
		if a.CourseID == testCourseB {
			cancelID = a.AssignmentID
		}
	}
	if _, err := env.coord.Transition(context.Background(), cancelID, scheduler.EventCancel, testCallerID); err != nil {
		t.Fatalf("取消失败: %v", err)
	}

	svc := NewExportService(env.coord.Store(), env.repo, zap.NewNop())
	buf, filename, err := svc.ExportExamICS(context.Background(), cancelID)
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if filename != "考试_INF102_2025-01-21.ics" {
		t.Errorf("文件名 = %q", filename)
	}

	cal, err := ics.ParseCalendar(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("解析 ICS 失败: %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("期望 1 个事件，实际 %d", len(events))
	}
	if events[0].Id() != cancelID+"@exam-scheduler" {
		t.Errorf("UID = %q", events[0].Id())
	}
	status := events[0].GetProperty(ics.ComponentPropertyStatus)
	if status == nil || status.Value != string(ics.ObjectStatusCancelled) {
		t.Errorf("STATUS = %v", status)
	}

	_, _, err = svc.ExportExamICS(context.Background(), "00000000-0000-0000-0000-00000000ffff")
	if !errors.Is(err, ErrExportExamNotFound) {
		t.Errorf("err = %v, want ErrExportExamNotFound", err)
	}
}
