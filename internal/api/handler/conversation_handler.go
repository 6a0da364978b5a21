package handler

import (
	"github.com/gin-gonic/gin"

	"almond/backend/internal/dto"
	"almond/backend/internal/service"
	"almond/backend/pkg/response"
)

// ConversationHandler 小组对话 HTTP 处理器
type ConversationHandler struct {
	conversationSvc service.ConversationService
}

// NewConversationHandler 创建 ConversationHandler
func NewConversationHandler(conversationSvc service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationSvc: conversationSvc}
}

// History 对话记录（按时间升序）
// GET /api/v1/tasks/:id/conversation
func (h *ConversationHandler) History(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.conversationSvc.GetHistory(c.Request.Context(), userID, taskID)
	if err != nil {
		writeCoreError(c, err, codeConversation)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// Send 发送消息；建议服务不可用时 degraded=true
// POST /api/v1/tasks/:id/conversation
func (h *ConversationHandler) Send(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.conversationSvc.SendMessage(c.Request.Context(), userID, taskID, req.Content)
	if err != nil {
		writeCoreError(c, err, codeConversation)
		return
	}
	response.OK(c, result)
}

// Summary 对话统计
// GET /api/v1/tasks/:id/conversation/summary
func (h *ConversationHandler) Summary(c *gin.Context) {
	taskID, ok := mustParamID(c, "id", "任务ID")
	if !ok {
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.conversationSvc.Summary(c.Request.Context(), userID, taskID)
	if err != nil {
		writeCoreError(c, err, codeConversation)
		return
	}
	response.OK(c, result)
}
