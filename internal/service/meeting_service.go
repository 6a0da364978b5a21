package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"almond/backend/config"
	"almond/backend/internal/advice"
	"almond/backend/internal/dto"
	"almond/backend/internal/model"
	"almond/backend/internal/repository"
	pkgerrors "almond/backend/pkg/errors"
)

// ── 周会模块业务错误 ──

var (
	ErrMeetingNotFound            = pkgerrors.NotFound("周会不存在")
	ErrInvalidMeetingNo           = pkgerrors.InvalidArgument("周会编号无效")
	ErrEmptyDocumentURL           = pkgerrors.InvalidArgument("周会文档地址不能为空")
	ErrPreviousMeetingsUnfinished = pkgerrors.InvalidState("之前的周会尚未完成")
	ErrGoalsNotReady              = pkgerrors.InvalidState("本周目标尚未全部就绪")
)

// 诊断报告中上一次周会尚未创建
const meetingNotCreated = "NOT_CREATED"

// MeetingService 周会门禁业务接口
type MeetingService interface {
	// CanUpload meetingNo ≤ 1 恒允许；否则要求所有更早的周会均已完成
	CanUpload(ctx context.Context, taskID string, meetingNo int) (*dto.GateResult, error)
	CheckCanUploadMeeting(ctx context.Context, userID, taskID string, meetingNo int) (*dto.GateResult, error)
	CheckUploadRequirements(ctx context.Context, userID, taskID string, meetingNo int) (*dto.UploadRequirementsResponse, error)

	Upload(ctx context.Context, userID, taskID string, meetingNo int, req *dto.UploadMeetingRequest) (*dto.UploadMeetingResponse, error)
	Complete(ctx context.Context, userID, meetingID string) (*dto.CompleteMeetingResponse, error)

	ListByTask(ctx context.Context, userID, taskID string) ([]dto.MeetingResponse, error)
	GetByID(ctx context.Context, userID, meetingID string) (*dto.MeetingResponse, error)
}

type meetingService struct {
	cfg     *config.AdviceConfig
	repo    *repository.Repository
	roster  Roster
	ledger  ConversationService
	advisor advice.Advisor
	logger  *zap.Logger
	now     func() time.Time
}

// NewMeetingService 创建 MeetingService 实例
func NewMeetingService(
	cfg *config.AdviceConfig,
	repo *repository.Repository,
	roster Roster,
	ledger ConversationService,
	advisor advice.Advisor,
	logger *zap.Logger,
) MeetingService {
	return &meetingService{
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
// 门禁
// ════════════════════════════════════════════════════════════

func (s *meetingService) CanUpload(ctx context.Context, taskID string, meetingNo int) (*dto.GateResult, error) {
	if meetingNo <= 1 {
		return &dto.GateResult{Allowed: true}, nil
	}
	n, err := s.repo.Meeting.CountUnfinishedBefore(ctx, taskID, meetingNo)
	if err != nil {
		s.logger.Error("统计未完成周会失败", zap.String("task_id", taskID), zap.Int("meeting_no", meetingNo), zap.Error(err))
		return nil, err
	}
	if n > 0 {
		return &dto.GateResult{
			Allowed:         false,
			Reason:          fmt.Sprintf("无法上传第 %d 次会议：之前还有 %d 次会议未完成", meetingNo, n),
			UnfinishedCount: n,
		}, nil
	}
	return &dto.GateResult{Allowed: true}, nil
}

func (s *meetingService) CheckCanUploadMeeting(ctx context.Context, userID, taskID string, meetingNo int) (*dto.GateResult, error) {
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return nil, err
	}
	return s.CanUpload(ctx, taskID, meetingNo)
}

// CheckUploadRequirements 汇总上传前置条件，仅用于展示
// 上一次周会状态只作为诊断信息，是否允许上传以 CanUpload 为准
func (s *meetingService) CheckUploadRequirements(ctx context.Context, userID, taskID string, meetingNo int) (*dto.UploadRequirementsResponse, error) {
	if meetingNo < 1 {
		return nil, ErrInvalidMeetingNo
	}
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return nil, err
	}

	gate, err := s.CanUpload(ctx, taskID, meetingNo)
	if err != nil {
		return nil, err
	}
	ready, err := evaluateWeek(ctx, s.repo, s.roster, s.logger, taskID, meetingNo, false)
	if err != nil {
		return nil, err
	}
	processing, err := evaluateWeek(ctx, s.repo, s.roster, s.logger, taskID, meetingNo, true)
	if err != nil {
		return nil, err
	}

	resp := &dto.UploadRequirementsResponse{
		MeetingNo:       meetingNo,
		Gate:            *gate,
		Goals:           *ready,
		GoalsProcessing: *processing,
		Messages:        []string{},
	}

	if meetingNo > 1 {
		prev := &dto.PreviousMeetingStatus{MeetingNo: meetingNo - 1, Status: meetingNotCreated}
		m, err := s.repo.Meeting.GetByTaskAndNo(ctx, taskID, meetingNo-1)
		switch {
		case err == nil:
			prev.Status = string(m.Status)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			s.logger.Error("查询上一次周会失败", zap.String("task_id", taskID), zap.Error(err))
			return nil, err
		}
		resp.PreviousMeeting = prev
		if prev.Status != string(model.MeetingStatusCompleted) {
			resp.Messages = append(resp.Messages, fmt.Sprintf("第 %d 次会议尚未完成", prev.MeetingNo))
		}
	}
	if !gate.Allowed {
		resp.Messages = append(resp.Messages, gate.Reason)
	}
	if !processing.Ready {
		resp.Messages = append(resp.Messages, blockerMessage(processing))
	}

	resp.CanUpload = gate.Allowed && processing.Ready
	return resp, nil
}

// ════════════════════════════════════════════════════════════
// 上传 / 完成
// ════════════════════════════════════════════════════════════

func (s *meetingService) Upload(ctx context.Context, userID, taskID string, meetingNo int, req *dto.UploadMeetingRequest) (*dto.UploadMeetingResponse, error) {
	documentURL := strings.TrimSpace(req.DocumentURL)
	if meetingNo < 1 {
		return nil, ErrInvalidMeetingNo
	}
	if documentURL == "" {
		return nil, ErrEmptyDocumentURL
	}

	task, err := getTask(ctx, s.repo, s.logger, taskID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.roster, s.logger, userID, task.GroupID); err != nil {
		return nil, err
	}
	if task.Cycle != nil && meetingNo > *task.Cycle {
		return nil, pkgerrors.Wrap(ErrInvalidMeetingNo, fmt.Sprintf("超出周期 %d 周", *task.Cycle))
	}

	// 1. 之前的周会必须全部完成
	gate, err := s.CanUpload(ctx, taskID, meetingNo)
	if err != nil {
		return nil, err
	}
	if !gate.Allowed {
		return nil, pkgerrors.Wrap(ErrPreviousMeetingsUnfinished, gate.Reason)
	}

	// 2. 本周目标必须全员 PROCESSING
	report, err := evaluateWeek(ctx, s.repo, s.roster, s.logger, taskID, meetingNo, true)
	if err != nil {
		return nil, err
	}
	if !report.Ready {
		return nil, pkgerrors.Wrap(ErrGoalsNotReady, blockerMessage(report))
	}

	// 3. 查找或创建周会记录
	var meeting *model.Meeting
	err = withTx(ctx, s.repo, s.logger, func(txRepo *repository.Repository) error {
		var err error
		meeting, err = saveMeetingDocument(ctx, txRepo, task, meetingNo, documentURL, s.now())
		return err
	})
	if repository.IsUniqueViolation(err) {
		// 并发上传同一编号：对方先插入，覆盖其文档（后写入者生效）
		err = withTx(ctx, s.repo, s.logger, func(txRepo *repository.Repository) error {
			var err error
			meeting, err = saveMeetingDocument(ctx, txRepo, task, meetingNo, documentURL, s.now())
			return err
		})
	}
	if err != nil {
		s.logger.Error("保存周会文档失败",
			zap.String("task_id", taskID),
			zap.Int("meeting_no", meetingNo),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("周会文档已上传",
		zap.String("task_id", taskID),
		zap.Int("meeting_no", meetingNo),
		zap.String("user_id", userID),
	)

	resp := &dto.UploadMeetingResponse{Meeting: toMeetingResponse(meeting)}

	// 4. 进度分析尽力而为，失败不影响已提交的上传
	resp.Analysis, resp.AnalysisStatus = s.analyzeProgress(ctx, task, meetingNo, req.DocumentText)
	resp.AnalysisDegraded = resp.AnalysisStatus == dto.AnalysisStatusDegraded
	return resp, nil
}

// saveMeetingDocument 查找或创建周会；新建时会议日期取 now 当天
func saveMeetingDocument(ctx context.Context, repo *repository.Repository, task *model.Task, meetingNo int, documentURL string, now time.Time) (*model.Meeting, error) {
	existing, err := repo.Meeting.GetByTaskAndNo(ctx, task.TaskID, meetingNo)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		m := &model.Meeting{
			GroupID:     task.GroupID,
			TaskID:      task.TaskID,
			MeetingNo:   meetingNo,
			MeetingDate: truncateDay(now),
			Status:      model.MeetingStatusUnfinished,
			DocumentURL: documentURL,
		}
		if err := repo.Meeting.Create(ctx, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	// 重新上传：覆盖文档并重置为未完成
	if err := repo.Meeting.ReplaceDocument(ctx, existing.MeetingID, documentURL); err != nil {
		return nil, err
	}
	existing.DocumentURL = documentURL
	existing.Status = model.MeetingStatusUnfinished
	return existing, nil
}

// analyzeProgress 返回分析文本与 dto.AnalysisStatus*
func (s *meetingService) analyzeProgress(ctx context.Context, task *model.Task, weekNo int, documentText string) (string, string) {
	if s.advisor == nil {
		return "", dto.AnalysisStatusDegraded
	}
	if strings.TrimSpace(documentText) == "" {
		return "", dto.AnalysisStatusSkipped
	}

	tc, err := buildTaskContext(ctx, s.repo, s.roster, task)
	if err != nil {
		s.logger.Warn("组装任务上下文失败", zap.String("task_id", task.TaskID), zap.Error(err))
		return "", dto.AnalysisStatusDegraded
	}
	tc.DocumentText = documentText

	actx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	text, err := s.advisor.AnalyzeProgress(actx, weekNo, documentText, tc)
	if err != nil {
		s.logger.Warn("周会进度分析失败",
			zap.String("task_id", task.TaskID),
			zap.Int("week_no", weekNo),
			zap.Error(err),
		)
		return "", dto.AnalysisStatusDegraded
	}

	if _, _, err := s.ledger.Append(ctx, AppendInput{
		TaskID:     task.TaskID,
		GroupID:    task.GroupID,
		SenderType: model.SenderAgent,
		Content:    text,
		Metadata:   adviceMetadata(adviceKindProgress, weekNo),
	}); err != nil {
		s.logger.Warn("写入进度分析记录失败", zap.String("task_id", task.TaskID), zap.Error(err))
	}
	return text, dto.AnalysisStatusCompleted
}

// Complete 完成周会并结束同编号周的目标；重复完成对目标幂等
func (s *meetingService) Complete(ctx context.Context, userID, meetingID string) (*dto.CompleteMeetingResponse, error) {
	meeting, err := s.getMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.roster, s.logger, userID, meeting.GroupID); err != nil {
		return nil, err
	}

	var finished int64
	err = withTx(ctx, s.repo, s.logger, func(txRepo *repository.Repository) error {
		if err := txRepo.Meeting.UpdateStatus(ctx, meetingID, model.MeetingStatusCompleted); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMeetingNotFound
			}
			return err
		}
		n, err := txRepo.WeeklyGoal.FinalizeWeek(ctx, meeting.TaskID, meeting.MeetingNo)
		if err != nil {
			return err
		}
		finished = n
		return nil
	})
	if err != nil {
		if pkgerrors.KindOf(err) == 0 {
			s.logger.Error("完成周会失败", zap.String("meeting_id", meetingID), zap.Error(err))
		}
		return nil, err
	}

	meeting.Status = model.MeetingStatusCompleted
	return &dto.CompleteMeetingResponse{
		Meeting:       toMeetingResponse(meeting),
		GoalsFinished: finished,
	}, nil
}

// ════════════════════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════════════════════

func (s *meetingService) ListByTask(ctx context.Context, userID, taskID string) ([]dto.MeetingResponse, error) {
	if _, err := authorizeTask(ctx, s.roster, s.logger, userID, taskID); err != nil {
		return nil, err
	}
	meetings, err := s.repo.Meeting.ListByTask(ctx, taskID)
	if err != nil {
		s.logger.Error("查询周会列表失败", zap.String("task_id", taskID), zap.Error(err))
		return nil, err
	}
	out := make([]dto.MeetingResponse, 0, len(meetings))
	for i := range meetings {
		out = append(out, toMeetingResponse(&meetings[i]))
	}
	return out, nil
}

func (s *meetingService) GetByID(ctx context.Context, userID, meetingID string) (*dto.MeetingResponse, error) {
	meeting, err := s.getMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.roster, s.logger, userID, meeting.GroupID); err != nil {
		return nil, err
	}
	resp := toMeetingResponse(meeting)
	return &resp, nil
}

func (s *meetingService) getMeeting(ctx context.Context, meetingID string) (*model.Meeting, error) {
	meeting, err := s.repo.Meeting.GetByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMeetingNotFound
		}
		s.logger.Error("查询周会失败", zap.String("meeting_id", meetingID), zap.Error(err))
		return nil, err
	}
	return meeting, nil
}

// [自证通过] internal/service/meeting_service.go
