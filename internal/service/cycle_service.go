package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// ── 分工与周期模块业务错误 ──

var (
	ErrAssignmentsNotSubmitted = pkgerrors.InvalidState("任务分工尚未提交")
	ErrAlreadyConfirmed        = pkgerrors.InvalidState("任务周期已确认")
	ErrAssignmentsFinalized    = pkgerrors.InvalidState("分工已确认，不可修改")
	ErrInvalidCycleLength      = pkgerrors.InvalidArgument("周期长度无效")
	ErrAssigneeNotMember       = pkgerrors.InvalidArgument("被分配成员不在小组内")
	ErrDuplicateAssignee       = pkgerrors.InvalidArgument("同一成员只能有一条分工")
)

// 写入对话记录时的 metadata.kind
const (
	adviceKindInitial      = "initial_advice"
	adviceKindConfirmation = "confirmation_advice"
	adviceKindProgress     = "progress_analysis"
	adviceKindChat         = "chat_reply"
)

// CycleService 任务分工与协作周期业务接口
type CycleService interface {
	SubmitAssignments(ctx context.Context, userID, taskID string, req *dto.SubmitAssignmentsRequest) (*dto.AssignmentStatusResponse, error)
	UpdateAssignments(ctx context.Context, userID, taskID string, req *dto.SubmitAssignmentsRequest) (*dto.AssignmentStatusResponse, error)
	GetAssignmentStatus(ctx context.Context, userID, taskID string) (*dto.AssignmentStatusResponse, error)
	GetFinalizedAssignments(ctx context.Context, userID, taskID string) ([]dto.AssignmentResponse, error)

	// Confirm 确认分工并展开周期：周目标 × 周会，单事务
	Confirm(ctx context.Context, taskID, requesterID string, cycleLength int) (*dto.ConfirmCycleResponse, error)

	RequestInitialAdvice(ctx context.Context, userID, taskID string) (*dto.AdviceResponse, error)
	RequestConfirmationAdvice(ctx context.Context, userID, taskID string) (*dto.AdviceResponse, error)
}

type cycleService struct {
	cfg     *config.CycleConfig
	repo    *repository.Repository
	roster  Roster
	ledger  ConversationService
	advisor advice.Advisor
	logger  *zap.Logger
	now     func() time.Time
}

// NewCycleService 创建 CycleService 实例
func NewCycleService(
	cfg *config.CycleConfig,
	repo *repository.Repository,
	roster Roster,
	ledger ConversationService,
	advisor advice.Advisor,
	logger *zap.Logger,
) CycleService {
	return &cycleService{
		cfg:     cfg,
		repo:    repo,
		roster:  roster,
		ledger:  ledger,
		advisor: advisor,
		logger:  logger,
		now:     time.Now,
	}
}

// ════════════════════════════════════════════════════════════
// 分工草稿
// ════════════════════════════════════════════════════════════

func (s *cycleService) SubmitAssignments(ctx context.Context, userID, taskID string, req *dto.SubmitAssignmentsRequest) (*dto.AssignmentStatusResponse, error) {
	return s.replaceAssignments(ctx, userID, taskID, req, false)
}

func (s *cycleService) UpdateAssignments(ctx context.Context, userID, taskID string, req *dto.SubmitAssignmentsRequest) (*dto.AssignmentStatusResponse, error) {
	return s.replaceAssignments(ctx, userID, taskID, req, true)
}

func (s *cycleService) replaceAssignments(ctx context.Context, userID, taskID string, req *dto.SubmitAssignmentsRequest, mustExist bool) (*dto.AssignmentStatusResponse, error) {
	groupID, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID)
	if err != nil {
		return nil, err
	}

	members, err := s.roster.MembersOf(ctx, groupID)
	if err != nil {
		s.logger.Error("查询小组成员失败", zap.String("group_id", groupID), zap.Error(err))
		return nil, err
	}
	onRoster := make(map[string]bool, len(members))
	for _, m := range members {
		onRoster[m.UserID] = true
	}

	rows := make([]model.TaskAssignment, 0, len(req.Assignments))
	seen := make(map[string]bool, len(req.Assignments))
	for _, item := range req.Assignments {
		if !onRoster[item.UserID] {
			return nil, pkgerrors.Wrap(ErrAssigneeNotMember, item.UserID)
		}
		if seen[item.UserID] {
			return nil, pkgerrors.Wrap(ErrDuplicateAssignee, item.UserID)
		}
		seen[item.UserID] = true
		rows = append(rows, model.TaskAssignment{
			TaskID:      taskID,
			UserID:      item.UserID,
			Role:        item.Role,
			Description: item.Description,
			AssignedBy:  userID,
			Status:      model.AssignmentStatusSubmitted,
		})
	}

	err = withTx(ctx, s.repo, s.logger, func(txRepo *repository.Repository) error {
		existing, err := txRepo.Assignment.ListByTask(ctx, taskID)
		if err != nil {
			return err
		}
		if mustExist && len(existing) == 0 {
			return ErrAssignmentsNotSubmitted
		}
		if assignmentSetStatus(existing) == model.AssignmentStatusFinalized {
			return ErrAssignmentsFinalized
		}
		return txRepo.Assignment.ReplaceForTask(ctx, taskID, rows)
	})
	if err != nil {
		if pkgerrors.KindOf(err) == 0 {
			s.logger.Error("保存任务分工失败", zap.String("task_id", taskID), zap.Error(err))
		}
		return nil, err
	}

	return s.loadAssignmentStatus(ctx, taskID)
}

func (s *cycleService) GetAssignmentStatus(ctx context.Context, userID, taskID string) (*dto.AssignmentStatusResponse, error) {
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return nil, err
	}
	return s.loadAssignmentStatus(ctx, taskID)
}

func (s *cycleService) GetFinalizedAssignments(ctx context.Context, userID, taskID string) ([]dto.AssignmentResponse, error) {
	status, err := s.GetAssignmentStatus(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if status.Status != string(model.AssignmentStatusFinalized) {
		return []dto.AssignmentResponse{}, nil
	}
	return status.Assignments, nil
}

func (s *cycleService) loadAssignmentStatus(ctx context.Context, taskID string) (*dto.AssignmentStatusResponse, error) {
	rows, err := s.repo.Assignment.ListByTask(ctx, taskID)
	if err != nil {
		s.logger.Error("查询任务分工失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	resp := &dto.AssignmentStatusResponse{
		TaskID:      taskID,
		Status:      string(assignmentSetStatus(rows)),
		Assignments: make([]dto.AssignmentResponse, 0, len(rows)),
	}
	for i := range rows {
		resp.Assignments = append(resp.Assignments, toAssignmentResponse(&rows[i]))
	}
	return resp, nil
}

// assignmentSetStatus 分工集合共享同一状态，空集合视为 DRAFT
func assignmentSetStatus(rows []model.TaskAssignment) model.AssignmentStatus {
	if len(rows) == 0 {
		return model.AssignmentStatusDraft
	}
	for _, r := range rows {
		if r.Status == model.AssignmentStatusFinalized {
			return model.AssignmentStatusFinalized
		}
	}
	return rows[0].Status
}

func toAssignmentResponse(a *model.TaskAssignment) dto.AssignmentResponse {
	resp := dto.AssignmentResponse{
		ID:          a.AssignmentID,
		UserID:      a.UserID,
		Role:        a.Role,
		Description: a.Description,
		AssignedBy:  a.AssignedBy,
		Status:      string(a.Status),
	}
	if a.User != nil {
		resp.UserName = a.User.Name
	}
	return resp
}

// ════════════════════════════════════════════════════════════
// 周期确认
// ════════════════════════════════════════════════════════════

func (s *cycleService) Confirm(ctx context.Context, taskID, requesterID string, cycleLength int) (*dto.ConfirmCycleResponse, error) {
	task, err := getTask(ctx, s.repo, s.logger, taskID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.roster, s.logger, requesterID, task.GroupID); err != nil {
		return nil, err
	}
	if task.Cycle != nil {
		return nil, ErrAlreadyConfirmed
	}

	resp := &dto.ConfirmCycleResponse{
		TaskID: taskID,
		Cycle:  cycleLength,
		Status: string(model.TaskStatusInProgress),
	}

	err = withTx(ctx, s.repo, s.logger, func(txRepo *repository.Repository) error {
		rows, err := txRepo.Assignment.ListByTask(ctx, taskID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrAssignmentsNotSubmitted
		}
		if assignmentSetStatus(rows) == model.AssignmentStatusFinalized {
			return ErrAlreadyConfirmed
		}
		// 状态错误优先于参数错误：已确认的任务始终返回 ErrAlreadyConfirmed
		if cycleLength <= 0 || cycleLength > s.cfg.MaxLength {
			return pkgerrors.Wrap(ErrInvalidCycleLength, fmt.Sprintf("必须在 1 到 %d 之间", s.cfg.MaxLength))
		}

		// 1. 条件写入周期；并发确认只有一方成功
		if err := txRepo.Task.ConfirmCycle(ctx, taskID, cycleLength); err != nil {
			if errors.Is(err, pkgerrors.ErrOptimisticLock) {
				return ErrAlreadyConfirmed
			}
			return err
		}

		// 2. 分工定稿
		if _, err := txRepo.Assignment.FinalizeAll(ctx, taskID); err != nil {
			return err
		}

		// 3. 每位被分配成员 × 每周一条空目标
		assignees := make([]string, 0, len(rows))
		seen := make(map[string]bool, len(rows))
		for _, r := range rows {
			if !seen[r.UserID] {
				seen[r.UserID] = true
				assignees = append(assignees, r.UserID)
			}
		}
		goals := make([]model.MemberWeeklyGoal, 0, len(assignees)*cycleLength)
		for _, studentID := range assignees {
			for week := 1; week <= cycleLength; week++ {
				goals = append(goals, model.MemberWeeklyGoal{
					TaskID:    taskID,
					StudentID: studentID,
					WeekNo:    week,
					Status:    model.GoalStatusNotUploaded,
				})
			}
		}
		if err := txRepo.WeeklyGoal.BatchCreate(ctx, goals); err != nil {
			return err
		}

		// 4. 周会按固定间隔排期
		today := truncateDay(s.now())
		meetings := make([]model.Meeting, 0, cycleLength)
		for i := 1; i <= cycleLength; i++ {
			meetings = append(meetings, model.Meeting{
				GroupID:     task.GroupID,
				TaskID:      taskID,
				MeetingNo:   i,
				MeetingDate: today.AddDate(0, 0, (i-1)*s.cfg.MeetingIntervalDays),
				Status:      model.MeetingStatusUnfinished,
			})
		}
		if err := txRepo.Meeting.BatchCreate(ctx, meetings); err != nil {
			return err
		}

		resp.GoalsCreated = len(goals)
		resp.MeetingsCreated = len(meetings)
		return nil
	})
	if err != nil {
		if pkgerrors.KindOf(err) == 0 {
			s.logger.Error("确认任务周期失败", zap.String("task_id", taskID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("任务周期已确认",
		zap.String("task_id", taskID),
		zap.Int("cycle", cycleLength),
		zap.Int("goals", resp.GoalsCreated),
	)
	return resp, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ════════════════════════════════════════════════════════════
// 分工建议
// ════════════════════════════════════════════════════════════

func (s *cycleService) RequestInitialAdvice(ctx context.Context, userID, taskID string) (*dto.AdviceResponse, error) {
	task, tc, err := s.adviceContext(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	text, err := s.advisor.InitialAdvice(ctx, tc)
	return s.recordAdvice(ctx, task, adviceKindInitial, text, err)
}

func (s *cycleService) RequestConfirmationAdvice(ctx context.Context, userID, taskID string) (*dto.AdviceResponse, error) {
	task, tc, err := s.adviceContext(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	assigned := make([]advice.MemberContext, 0, len(tc.Members))
	for _, m := range tc.Members {
		if m.Role != "" {
			assigned = append(assigned, m)
		}
	}
	if len(assigned) == 0 {
		return nil, ErrAssignmentsNotSubmitted
	}
	text, err := s.advisor.ConfirmationAdvice(ctx, tc, assigned)
	return s.recordAdvice(ctx, task, adviceKindConfirmation, text, err)
}

func (s *cycleService) adviceContext(ctx context.Context, userID, taskID string) (*model.Task, advice.TaskContext, error) {
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return nil, advice.TaskContext{}, err
	}
	if s.advisor == nil {
		return nil, advice.TaskContext{}, ErrAdviceDisabled
	}
	task, err := getTask(ctx, s.repo, s.logger, taskID)
	if err != nil {
		return nil, advice.TaskContext{}, err
	}
	tc, err := buildTaskContext(ctx, s.repo, s.roster, task)
	if err != nil {
		s.logger.Error("组装任务上下文失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, advice.TaskContext{}, err
	}
	return task, tc, nil
}

// recordAdvice 建议失败降级为提示文案且不入账；成功则以 AGENT 身份写入对话记录
func (s *cycleService) recordAdvice(ctx context.Context, task *model.Task, kind, text string, adviceErr error) (*dto.AdviceResponse, error) {
	if adviceErr != nil {
		s.logger.Warn("获取分工建议失败", zap.String("task_id", task.TaskID), zap.String("kind", kind), zap.Error(adviceErr))
		return &dto.AdviceResponse{Advice: advice.DegradedMessage, Degraded: true}, nil
	}
	if _, _, err := s.ledger.Append(ctx, AppendInput{
		TaskID:     task.TaskID,
		GroupID:    task.GroupID,
		SenderType: model.SenderAgent,
		Content:    text,
		Metadata:   adviceMetadata(kind, 0),
	}); err != nil {
		s.logger.Warn("写入建议记录失败", zap.String("task_id", task.TaskID), zap.Error(err))
	}
	return &dto.AdviceResponse{Advice: text}, nil
}

// adviceMetadata AGENT 消息附带的来源信息
func adviceMetadata(kind string, weekNo int) datatypes.JSON {
	m := map[string]any{"kind": kind}
	if weekNo > 0 {
		m["week_no"] = weekNo
	}
	raw, _ := json.Marshal(m)
	return datatypes.JSON(raw)
}
