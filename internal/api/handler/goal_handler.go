package handler

import (
	"github.com/gin-gonic/gin"

	"almond/backend/internal/dto"
	"almond/backend/internal/service"
	"almond/backend/pkg/response"
)

// GoalHandler 周目标 HTTP 处理器
type GoalHandler struct {
	goalSvc service.WeeklyGoalService
}

// NewGoalHandler 创建 GoalHandler
func NewGoalHandler(goalSvc service.WeeklyGoalService) *GoalHandler {
	return &GoalHandler{goalSvc: goalSvc}
}

// UpdateGoal 填写本人周目标
// PUT /api/v1/goals/:id
func (h *GoalHandler) UpdateGoal(c *gin.Context) {
	goalID, ok := mustParamID(c, "id", "周目标ID")
	if !ok {
		return
	}
	var req dto.UpdateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	goal, err := h.goalSvc.SetGoalText(c.Request.Context(), userID, goalID, req.Goal)
	if err != nil {
		writeCoreError(c, err, codeGoal)
		return
	}
	response.OK(c, goal)
}

// ListMyGoals 本人在任务中的全部周目标
// GET /api/v1/tasks/:id/goals/me
func (h *GoalHandler) ListMyGoals(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.goalSvc.ListMyGoals(c.Request.Context(), userID, taskID)
	if err != nil {
		writeCoreError(c, err, codeGoal)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// CheckWeeklyGoals 小组某周目标就绪情况
// GET /api/v1/tasks/:id/goals/check?week=N
func (h *GoalHandler) CheckWeeklyGoals(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	var q dto.GoalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "week 必须为正整数")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	report, err := h.goalSvc.CheckWeeklyGoals(c.Request.Context(), userID, taskID, q.WeekNo)
	if err != nil {
		writeCoreError(c, err, codeGoal)
		return
	}
	response.OK(c, report)
}

// GenerateGoal 为本人生成周目标
// POST /api/v1/tasks/:id/goals/generate
func (h *GoalHandler) GenerateGoal(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	var req dto.GenerateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	goal, err := h.goalSvc.GenerateWeeklyGoal(c.Request.Context(), userID, taskID, req.WeekNo)
	if err != nil {
		writeCoreError(c, err, codeGoal)
		return
	}
	response.OK(c, goal)
}

// GenerateWeekForGroup 为全组生成某周目标，部分失败时仍返回 200
// POST /api/v1/tasks/:id/goals/generate-all
func (h *GoalHandler) GenerateWeekForGroup(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	var req dto.GenerateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.goalSvc.GenerateWeekForGroup(c.Request.Context(), userID, taskID, req.WeekNo)
	if err != nil {
		writeCoreError(c, err, codeGoal)
		return
	}
	response.OK(c, result)
}
