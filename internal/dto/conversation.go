package dto

import "encoding/json"

// ── 对话 DTO ──

// SendMessageRequest 发送对话消息
type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=4000"`
}

// ── 响应 ──

// ConversationResponse 对话记录
type ConversationResponse struct {
	ID         string          `json:"id"`
	TaskID     string          `json:"task_id"`
	GroupID    string          `json:"group_id"`
	SenderID   *string         `json:"sender_id"`
	SenderType string          `json:"sender_type"`
	Content    string          `json:"content"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// ChatResponse 对话结果；Reply 为空表示建议服务不可用
type ChatResponse struct {
	Message  ConversationResponse  `json:"message"`
	Reply    *ConversationResponse `json:"reply,omitempty"`
	Degraded bool                  `json:"degraded"`
	Notice   string                `json:"notice,omitempty"`
}

// ConversationSummaryResponse 对话统计
type ConversationSummaryResponse struct {
	TaskID        string  `json:"task_id"`
	GroupID       string  `json:"group_id"`
	TotalMessages int     `json:"total_messages"`
	UserMessages  int     `json:"user_messages"`
	AgentMessages int     `json:"agent_messages"`
	LastActivity  *string `json:"last_activity"`
}
