package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"almond/backend/internal/service"
	"almond/backend/pkg/response"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeICS  = "text/calendar; charset=utf-8"
)

// ReportHandler 周期进度导出 HTTP 处理器
type ReportHandler struct {
	reportSvc service.ReportService
}

// NewReportHandler 创建 ReportHandler
func NewReportHandler(reportSvc service.ReportService) *ReportHandler {
	return &ReportHandler{reportSvc: reportSvc}
}

// ExportProgress 导出周目标与周会进度
// GET /api/v1/tasks/:id/report.xlsx
func (h *ReportHandler) ExportProgress(c *gin.Context) {
	h.export(c, h.reportSvc.ExportProgress, contentTypeXLSX)
}

// ExportMeetingsICS 导出周会日程
// GET /api/v1/tasks/:id/meetings.ics
func (h *ReportHandler) ExportMeetingsICS(c *gin.Context) {
	h.export(c, h.reportSvc.ExportMeetingsICS, contentTypeICS)
}

// Snapshot 任务周期总览
// GET /api/v1/admin/tasks/:id/snapshot
func (h *ReportHandler) Snapshot(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}

	snap, err := h.reportSvc.Snapshot(c.Request.Context(), taskID)
	if err != nil {
		writeCoreError(c, err, codeReport)
		return
	}
	response.OK(c, snap)
}

func (h *ReportHandler) export(
	c *gin.Context,
	build func(ctx context.Context, userID, taskID string) (*bytes.Buffer, string, error),
	contentType string,
) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	buf, filename, err := build(c.Request.Context(), userID, taskID)
	if err != nil {
		writeCoreError(c, err, codeReport)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
