package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"almond/backend/internal/dto"
	"almond/backend/internal/service"
	"almond/backend/pkg/response"
)

// TaskHandler 任务分工与周期确认 HTTP 处理器
type TaskHandler struct {
	cycleSvc service.CycleService
}

// NewTaskHandler 创建 TaskHandler
func NewTaskHandler(cycleSvc service.CycleService) *TaskHandler {
	return &TaskHandler{cycleSvc: cycleSvc}
}

// SubmitAssignments 提交分工
// POST /api/v1/tasks/:id/assignments
func (h *TaskHandler) SubmitAssignments(c *gin.Context) {
	h.saveAssignments(c, h.cycleSvc.SubmitAssignments, true)
}

// UpdateAssignments 整体替换分工（确认前）
// PUT /api/v1/tasks/:id/assignments
func (h *TaskHandler) UpdateAssignments(c *gin.Context) {
	h.saveAssignments(c, h.cycleSvc.UpdateAssignments, false)
}

func (h *TaskHandler) saveAssignments(
	c *gin.Context,
	save func(ctx context.Context, userID, taskID string, req *dto.SubmitAssignmentsRequest) (*dto.AssignmentStatusResponse, error),
	created bool,
) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	var req dto.SubmitAssignmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := save(c.Request.Context(), userID, taskID, &req)
	if err != nil {
		writeCoreError(c, err, codeTask)
		return
	}
	if created {
		response.Created(c, result)
		return
	}
	response.OK(c, result)
}

// GetAssignmentStatus 分工状态
// GET /api/v1/tasks/:id/assignments/status
func (h *TaskHandler) GetAssignmentStatus(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.cycleSvc.GetAssignmentStatus(c.Request.Context(), userID, taskID)
	if err != nil {
		writeCoreError(c, err, codeTask)
		return
	}
	response.OK(c, result)
}

// GetFinalizedAssignments 已定稿分工
// GET /api/v1/tasks/:id/assignments
func (h *TaskHandler) GetFinalizedAssignments(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.cycleSvc.GetFinalizedAssignments(c.Request.Context(), userID, taskID)
	if err != nil {
		writeCoreError(c, err, codeTask)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// Confirm 确认分工并设定周期
// POST /api/v1/tasks/:id/assignments/confirm
func (h *TaskHandler) Confirm(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	var req dto.ConfirmCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.cycleSvc.Confirm(c.Request.Context(), taskID, userID, req.Cycle)
	if err != nil {
		writeCoreError(c, err, codeTask)
		return
	}
	response.OK(c, result)
}

// InitialAdvice 分工前的初始建议
// POST /api/v1/tasks/:id/advice/initial
func (h *TaskHandler) InitialAdvice(c *gin.Context) {
	h.advice(c, h.cycleSvc.RequestInitialAdvice)
}

// ConfirmationAdvice 针对已提交分工的建议
// POST /api/v1/tasks/:id/advice/confirmation
func (h *TaskHandler) ConfirmationAdvice(c *gin.Context) {
	h.advice(c, h.cycleSvc.RequestConfirmationAdvice)
}

func (h *TaskHandler) advice(c *gin.Context, request func(ctx context.Context, userID, taskID string) (*dto.AdviceResponse, error)) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := request(c.Request.Context(), userID, taskID)
	if err != nil {
		writeCoreError(c, err, codeTask)
		return
	}
	response.OK(c, result)
}
