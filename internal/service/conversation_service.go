package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"almond/backend/config"
	"almond/backend/internal/advice"
	"almond/backend/internal/dto"
	"almond/backend/internal/model"
	"almond/backend/internal/repository"
	pkgerrors "almond/backend/pkg/errors"
)

// ── 对话模块业务错误 ──

var (
	ErrEmptyMessage      = pkgerrors.InvalidArgument("消息内容不能为空")
	ErrInvalidSenderType = pkgerrors.InvalidArgument("无效的发送方类型")
	ErrSenderMismatch    = pkgerrors.InvalidArgument("发送者与发送方类型不匹配")
)

// AppendInput 追加一条对话记录
// USER 消息必须带 SenderID；AGENT 消息 SenderID 必须为空
type AppendInput struct {
	TaskID     string
	GroupID    string
	SenderID   *string
	SenderType model.SenderType
	Content    string
	Metadata   datatypes.JSON
}

// ConversationService 对话记录业务接口
type ConversationService interface {
	// Append 追加记录；与最近窗口内的记录完全相同时不写入，返回 appended=false
	Append(ctx context.Context, in AppendInput) (*dto.ConversationResponse, bool, error)
	// History 不做成员校验，由调用方负责
	History(ctx context.Context, taskID, groupID string) ([]dto.ConversationResponse, error)

	GetHistory(ctx context.Context, userID, taskID string) ([]dto.ConversationResponse, error)
	SendMessage(ctx context.Context, userID, taskID, content string) (*dto.ChatResponse, error)
	Summary(ctx context.Context, userID, taskID string) (*dto.ConversationSummaryResponse, error)
}

type conversationService struct {
	cfg     *config.LedgerConfig
	repo    *repository.Repository
	roster  Roster
	advisor advice.Advisor
	logger  *zap.Logger
}

// NewConversationService 创建 ConversationService 实例
func NewConversationService(
	cfg *config.LedgerConfig,
	repo *repository.Repository,
	roster Roster,
	advisor advice.Advisor,
	logger *zap.Logger,
) ConversationService {
	return &conversationService{
		cfg:     cfg,
		repo:    repo,
		roster:  roster,
		advisor: advisor,
		logger:  logger,
	}
}

func (s *conversationService) Append(ctx context.Context, in AppendInput) (*dto.ConversationResponse, bool, error) {
	if !in.SenderType.Valid() {
		return nil, false, ErrInvalidSenderType
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, false, ErrEmptyMessage
	}
	if (in.SenderType == model.SenderUser) != (in.SenderID != nil) {
		return nil, false, ErrSenderMismatch
	}

	recent, err := s.repo.Conversation.ListRecent(ctx, in.TaskID, in.GroupID, s.cfg.DedupWindow)
	if err != nil {
		s.logger.Error("查询最近对话失败", zap.String("task_id", in.TaskID), zap.Error(err))
		return nil, false, err
	}
	for i := range recent {
		if recent[i].SameMessage(in.Content, in.SenderType, in.SenderID) {
			s.logger.Debug("重复消息已忽略",
				zap.String("task_id", in.TaskID),
				zap.String("sender_type", string(in.SenderType)),
			)
			resp := toConversationResponse(&recent[i])
			return &resp, false, nil
		}
	}

	entry := &model.Conversation{
		TaskID:     in.TaskID,
		GroupID:    in.GroupID,
		SenderID:   in.SenderID,
		SenderType: in.SenderType,
		Content:    in.Content,
		Metadata:   in.Metadata,
	}
	if err := s.repo.Conversation.Create(ctx, entry); err != nil {
		s.logger.Error("写入对话记录失败", zap.String("task_id", in.TaskID), zap.Error(err))
		return nil, false, err
	}
	resp := toConversationResponse(entry)
	return &resp, true, nil
}

func (s *conversationService) History(ctx context.Context, taskID, groupID string) ([]dto.ConversationResponse, error) {
	rows, err := s.repo.Conversation.ListByTaskAndGroup(ctx, taskID, groupID)
	if err != nil {
		s.logger.Error("查询对话记录失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	out := make([]dto.ConversationResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toConversationResponse(&rows[i]))
	}
	return out, nil
}

func (s *conversationService) GetHistory(ctx context.Context, userID, taskID string) ([]dto.ConversationResponse, error) {
	groupID, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID)
	if err != nil {
		return nil, err
	}
	return s.History(ctx, taskID, groupID)
}

// SendMessage 记录用户消息并请求建议服务回复
// 建议服务不可用时只返回降级提示，不写入 AGENT 记录
func (s *conversationService) SendMessage(ctx context.Context, userID, taskID, content string) (*dto.ChatResponse, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	task, err := getTask(ctx, s.repo, s.logger, taskID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.roster, s.logger, userID, task.GroupID); err != nil {
		return nil, err
	}

	msg, _, err := s.Append(ctx, AppendInput{
		TaskID:     taskID,
		GroupID:    task.GroupID,
		SenderID:   &userID,
		SenderType: model.SenderUser,
		Content:    content,
	})
	if err != nil {
		return nil, err
	}
	resp := &dto.ChatResponse{Message: *msg}

	if s.advisor == nil {
		resp.Degraded = true
		resp.Notice = advice.DegradedMessage
		return resp, nil
	}

	tc, err := buildTaskContext(ctx, s.repo, s.roster, task)
	if err != nil {
		s.logger.Error("组装任务上下文失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	history, err := s.repo.Conversation.ListByTaskAndGroup(ctx, taskID, task.GroupID)
	if err != nil {
		s.logger.Error("查询对话记录失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	for _, h := range history {
		mc := advice.MessageContext{SenderType: string(h.SenderType), Content: h.Content}
		if h.SenderID != nil {
			mc.SenderID = *h.SenderID
		}
		tc.History = append(tc.History, mc)
	}

	text, err := s.advisor.Chat(ctx, content, tc)
	if err != nil {
		s.logger.Warn("获取对话回复失败", zap.String("task_id", taskID), zap.Error(err))
		resp.Degraded = true
		resp.Notice = advice.DegradedMessage
		return resp, nil
	}

	reply, _, err := s.Append(ctx, AppendInput{
		TaskID:     taskID,
		GroupID:    task.GroupID,
		SenderType: model.SenderAgent,
		Content:    text,
		Metadata:   adviceMetadata(adviceKindChat, 0),
	})
	if err != nil {
		return nil, err
	}
	resp.Reply = reply
	return resp, nil
}

func (s *conversationService) Summary(ctx context.Context, userID, taskID string) (*dto.ConversationSummaryResponse, error) {
	groupID, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Conversation.ListByTaskAndGroup(ctx, taskID, groupID)
	if err != nil {
		s.logger.Error("查询对话记录失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}

	out := &dto.ConversationSummaryResponse{
		TaskID:        taskID,
		GroupID:       groupID,
		TotalMessages: len(rows),
	}
	for _, r := range rows {
		switch r.SenderType {
		case model.SenderUser:
			out.UserMessages++
		case model.SenderAgent:
			out.AgentMessages++
		}
	}
	if n := len(rows); n > 0 {
		last := rows[n-1].CreatedAt.Format(time.RFC3339)
		out.LastActivity = &last
	}
	return out, nil
}

// [自证通过] internal/service/conversation_service.go
