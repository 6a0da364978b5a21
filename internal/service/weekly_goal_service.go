package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"almond/backend/internal/advice"
	"almond/backend/internal/dto"
	"almond/backend/internal/model"
	"almond/backend/internal/repository"
	pkgerrors "almond/backend/pkg/errors"
)

// ── 周目标模块业务错误 ──

var (
	ErrGoalNotFound     = pkgerrors.NotFound("周目标不存在")
	ErrGoalRegression   = pkgerrors.InvalidState("周目标状态不可回退")
	ErrGoalNotOwner     = pkgerrors.Forbidden("只能修改自己的周目标")
	ErrEmptyGoalText    = pkgerrors.InvalidArgument("周目标内容不能为空")
	ErrInvalidGoalState = pkgerrors.InvalidArgument("无效的周目标状态")
	ErrGoalFinishOnly   = pkgerrors.InvalidState("周目标只能通过完成周会结束")
)

// 小组批量生成的并发上限
const generateConcurrency = 4

// WeeklyGoalService 成员周目标业务接口
// 状态只能前进：NOTUPLOADED → PROCESSING → FINISHED
type WeeklyGoalService interface {
	// 成员填写周目标，状态置为 PROCESSING
	SetGoalText(ctx context.Context, userID, goalID, text string) (*dto.GoalResponse, error)
	// 按 (任务, 学生, 周次) 更新或插入
	UpsertByWeek(ctx context.Context, taskID, studentID string, weekNo int, text string, status model.GoalStatus) (*dto.GoalResponse, error)
	// 全员已填写（非 NOTUPLOADED）
	AllReady(ctx context.Context, taskID string, weekNo int) (*dto.ReadinessReport, error)
	// 上传门禁检查：全员 PROCESSING
	AllProcessing(ctx context.Context, taskID string, weekNo int) (*dto.ReadinessReport, error)
	// PROCESSING → FINISHED
	FinalizeWeek(ctx context.Context, taskID string, weekNo int) (int64, error)

	CheckWeeklyGoals(ctx context.Context, userID, taskID string, weekNo int) (*dto.ReadinessReport, error)
	ListMyGoals(ctx context.Context, userID, taskID string) ([]dto.GoalResponse, error)
	GenerateWeeklyGoal(ctx context.Context, userID, taskID string, weekNo int) (*dto.GoalResponse, error)
	GenerateWeekForGroup(ctx context.Context, userID, taskID string, weekNo int) (*dto.GenerateWeekResponse, error)
}

type weeklyGoalService struct {
	repo    *repository.Repository
	roster  Roster
	advisor advice.Advisor
	logger  *zap.Logger
}

// NewWeeklyGoalService 创建 WeeklyGoalService 实例
func NewWeeklyGoalService(repo *repository.Repository, roster Roster, advisor advice.Advisor, logger *zap.Logger) WeeklyGoalService {
	return &weeklyGoalService{repo: repo, roster: roster, advisor: advisor, logger: logger}
}

func (s *weeklyGoalService) SetGoalText(ctx context.Context, userID, goalID, text string) (*dto.GoalResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyGoalText
	}

	goal, err := s.repo.WeeklyGoal.GetByID(ctx, goalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGoalNotFound
		}
		s.logger.Error("查询周目标失败", zap.String("goal_id", goalID), zap.Error(err))
		return nil, err
	}
	if goal.StudentID != userID {
		return nil, ErrGoalNotOwner
	}
	if !goal.Status.CanAdvanceTo(model.GoalStatusProcessing) {
		return nil, ErrGoalRegression
	}

	// 条件更新：读取之后被并发置为 FINISHED 时同样拒绝
	if err := s.repo.WeeklyGoal.UpdateContent(ctx, goalID, text, model.GoalStatusProcessing); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrGoalRegression
		}
		s.logger.Error("更新周目标失败", zap.String("goal_id", goalID), zap.Error(err))
		return nil, err
	}

	goal.Goal = text
	goal.Status = model.GoalStatusProcessing
	resp := toGoalResponse(goal)
	return &resp, nil
}

func (s *weeklyGoalService) UpsertByWeek(ctx context.Context, taskID, studentID string, weekNo int, text string, status model.GoalStatus) (*dto.GoalResponse, error) {
	if weekNo < 1 {
		return nil, ErrInvalidWeekNo
	}
	if !status.Valid() {
		return nil, ErrInvalidGoalState
	}
	// FINISHED 只由 FinalizeWeek（完成周会）写入
	if status == model.GoalStatusFinished {
		return nil, ErrGoalFinishOnly
	}

	goal, err := upsertGoal(ctx, s.repo, s.logger, taskID, studentID, weekNo, text, status)
	if repository.IsUniqueViolation(err) {
		// 并发插入冲突：对方已建好记录，按更新重试一次
		goal, err = upsertGoal(ctx, s.repo, s.logger, taskID, studentID, weekNo, text, status)
	}
	if err != nil {
		if !errors.Is(err, ErrGoalRegression) {
			s.logger.Error("写入周目标失败",
				zap.String("task_id", taskID),
				zap.String("student_id", studentID),
				zap.Int("week_no", weekNo),
				zap.Error(err),
			)
		}
		return nil, err
	}

	resp := toGoalResponse(goal)
	return &resp, nil
}

func upsertGoal(ctx context.Context, repo *repository.Repository, logger *zap.Logger, taskID, studentID string, weekNo int, text string, status model.GoalStatus) (*model.MemberWeeklyGoal, error) {
	var out *model.MemberWeeklyGoal
	err := withTx(ctx, repo, logger, func(txRepo *repository.Repository) error {
		existing, err := txRepo.WeeklyGoal.GetByWeek(ctx, taskID, studentID, weekNo)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			goal := &model.MemberWeeklyGoal{
				TaskID:    taskID,
				StudentID: studentID,
				WeekNo:    weekNo,
				Goal:      text,
				Status:    status,
			}
			if err := txRepo.WeeklyGoal.Create(ctx, goal); err != nil {
				return err
			}
			out = goal
			return nil
		}

		if !existing.Status.CanAdvanceTo(status) {
			return ErrGoalRegression
		}
		if err := txRepo.WeeklyGoal.UpdateContent(ctx, existing.GoalID, text, status); err != nil {
			if errors.Is(err, pkgerrors.ErrOptimisticLock) {
				return ErrGoalRegression
			}
			return err
		}
		existing.Goal = text
		existing.Status = status
		out = existing
		return nil
	})
	return out, err
}

// ════════════════════════════════════════════════════════════
// 就绪检查
// ════════════════════════════════════════════════════════════

func (s *weeklyGoalService) AllReady(ctx context.Context, taskID string, weekNo int) (*dto.ReadinessReport, error) {
	return evaluateWeek(ctx, s.repo, s.roster, s.logger, taskID, weekNo, false)
}

func (s *weeklyGoalService) AllProcessing(ctx context.Context, taskID string, weekNo int) (*dto.ReadinessReport, error) {
	return evaluateWeek(ctx, s.repo, s.roster, s.logger, taskID, weekNo, true)
}

// evaluateWeek 以花名册为准比对该周目标记录
//
//	strict=false：无记录或 NOTUPLOADED 视为未就绪
//	strict=true ：必须为 PROCESSING，且花名册之外的目标记录同样参与检查
func evaluateWeek(ctx context.Context, repo *repository.Repository, roster Roster, logger *zap.Logger, taskID string, weekNo int, strict bool) (*dto.ReadinessReport, error) {
	if weekNo < 1 {
		return nil, ErrInvalidWeekNo
	}
	groupID, err := roster.GroupIDOf(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		logger.Error("查询任务所属小组失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	members, err := roster.MembersOf(ctx, groupID)
	if err != nil {
		logger.Error("查询小组成员失败", zap.String("group_id", groupID), zap.Error(err))
		return nil, err
	}
	goals, err := repo.WeeklyGoal.ListByWeek(ctx, taskID, weekNo)
	if err != nil {
		logger.Error("查询周目标失败", zap.String("task_id", taskID), zap.Int("week_no", weekNo), zap.Error(err))
		return nil, err
	}

	accept := func(st model.GoalStatus) bool { return st != model.GoalStatusNotUploaded }
	if strict {
		accept = func(st model.GoalStatus) bool { return st == model.GoalStatusProcessing }
	}

	byStudent := make(map[string]model.MemberWeeklyGoal, len(goals))
	for _, g := range goals {
		byStudent[g.StudentID] = g
	}

	report := &dto.ReadinessReport{TaskID: taskID, WeekNo: weekNo, Blockers: []dto.Blocker{}}
	onRoster := make(map[string]bool, len(members))
	for _, m := range members {
		onRoster[m.UserID] = true
		g, ok := byStudent[m.UserID]
		if !ok {
			report.Blockers = append(report.Blockers, dto.Blocker{StudentID: m.UserID, Name: m.Name, Status: string(model.GoalStatusNotSet)})
			continue
		}
		if !accept(g.Status) {
			report.Blockers = append(report.Blockers, dto.Blocker{StudentID: m.UserID, Name: m.Name, Status: string(g.Status)})
		}
	}

	if strict {
		var extra []dto.Blocker
		for _, g := range goals {
			if !onRoster[g.StudentID] && !accept(g.Status) {
				extra = append(extra, dto.Blocker{StudentID: g.StudentID, Status: string(g.Status)})
			}
		}
		sort.Slice(extra, func(i, j int) bool { return extra[i].StudentID < extra[j].StudentID })
		report.Blockers = append(report.Blockers, extra...)
	}

	report.Ready = len(report.Blockers) == 0
	return report, nil
}

// blockerMessage 面向用户的未就绪说明
func blockerMessage(report *dto.ReadinessReport) string {
	parts := make([]string, 0, len(report.Blockers))
	for _, b := range report.Blockers {
		who := b.Name
		if who == "" {
			who = b.StudentID
		}
		parts = append(parts, fmt.Sprintf("%s（%s）", who, b.Status))
	}
	return fmt.Sprintf("以下成员第 %d 周目标未就绪：%s", report.WeekNo, strings.Join(parts, "、"))
}

func (s *weeklyGoalService) FinalizeWeek(ctx context.Context, taskID string, weekNo int) (int64, error) {
	if weekNo < 1 {
		return 0, ErrInvalidWeekNo
	}
	n, err := s.repo.WeeklyGoal.FinalizeWeek(ctx, taskID, weekNo)
	if err != nil {
		s.logger.Error("结束周目标失败", zap.String("task_id", taskID), zap.Int("week_no", weekNo), zap.Error(err))
		return 0, err
	}
	return n, nil
}

// ════════════════════════════════════════════════════════════
// 成员查询
// ════════════════════════════════════════════════════════════

func (s *weeklyGoalService) CheckWeeklyGoals(ctx context.Context, userID, taskID string, weekNo int) (*dto.ReadinessReport, error) {
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return nil, err
	}
	return s.AllReady(ctx, taskID, weekNo)
}

func (s *weeklyGoalService) ListMyGoals(ctx context.Context, userID, taskID string) ([]dto.GoalResponse, error) {
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return nil, err
	}
	goals, err := s.repo.WeeklyGoal.ListByStudent(ctx, taskID, userID)
	if err != nil {
		s.logger.Error("查询我的周目标失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	out := make([]dto.GoalResponse, 0, len(goals))
	for i := range goals {
		out = append(out, toGoalResponse(&goals[i]))
	}
	return out, nil
}

// ════════════════════════════════════════════════════════════
// 智能生成
// ════════════════════════════════════════════════════════════

func (s *weeklyGoalService) GenerateWeeklyGoal(ctx context.Context, userID, taskID string, weekNo int) (*dto.GoalResponse, error) {
	tc, err := s.prepareGeneration(ctx, userID, taskID, weekNo)
	if err != nil {
		return nil, err
	}
	return s.generateFor(ctx, tc, userID, weekNo)
}

func (s *weeklyGoalService) GenerateWeekForGroup(ctx context.Context, userID, taskID string, weekNo int) (*dto.GenerateWeekResponse, error) {
	tc, err := s.prepareGeneration(ctx, userID, taskID, weekNo)
	if err != nil {
		return nil, err
	}

	out := &dto.GenerateWeekResponse{
		WeekNo:    weekNo,
		Generated: []dto.GoalResponse{},
		Failed:    []dto.GenerationFailure{},
	}
	var mu sync.Mutex

	// 单个成员失败只记录，不中断其他成员
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(generateConcurrency)
	for _, m := range tc.Members {
		g.Go(func() error {
			goal, err := s.generateFor(gctx, tc, m.UserID, weekNo)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Failed = append(out.Failed, dto.GenerationFailure{StudentID: m.UserID, Reason: err.Error()})
				return nil
			}
			out.Generated = append(out.Generated, *goal)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out.Generated, func(i, j int) bool { return out.Generated[i].StudentID < out.Generated[j].StudentID })
	sort.Slice(out.Failed, func(i, j int) bool { return out.Failed[i].StudentID < out.Failed[j].StudentID })
	return out, nil
}

func (s *weeklyGoalService) prepareGeneration(ctx context.Context, userID, taskID string, weekNo int) (advice.TaskContext, error) {
	if weekNo < 1 {
		return advice.TaskContext{}, ErrInvalidWeekNo
	}
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return advice.TaskContext{}, err
	}
	if s.advisor == nil {
		return advice.TaskContext{}, ErrAdviceDisabled
	}
	task, err := getTask(ctx, s.repo, s.logger, taskID)
	if err != nil {
		return advice.TaskContext{}, err
	}
	tc, err := buildTaskContext(ctx, s.repo, s.roster, task)
	if err != nil {
		s.logger.Error("组装任务上下文失败", zap.String("task_id", taskID), zap.Error(err))
		return advice.TaskContext{}, err
	}
	return tc, nil
}

func (s *weeklyGoalService) generateFor(ctx context.Context, tc advice.TaskContext, studentID string, weekNo int) (*dto.GoalResponse, error) {
	resp, err := s.advisor.GenerateWeeklyGoal(ctx, studentID, weekNo, tc)
	if err != nil {
		s.logger.Warn("生成周目标失败",
			zap.String("task_id", tc.TaskID),
			zap.String("student_id", studentID),
			zap.Error(err),
		)
		return nil, pkgerrors.Upstream(advice.DegradedMessage, err)
	}
	return s.UpsertByWeek(ctx, tc.TaskID, studentID, weekNo, strings.TrimSpace(resp.Goal), model.GoalStatusProcessing)
}

// [自证通过] internal/service/weekly_goal_service.go
