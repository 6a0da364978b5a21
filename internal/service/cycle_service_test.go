package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"almond/backend/config"
	"almond/backend/internal/advice"
	"almond/backend/internal/dto"
	"almond/backend/internal/model"
	pkgerrors "almond/backend/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

func setupCycleService(advisor *mockAdvisor) (CycleService, *testEnv) {
	env := newTestEnv()
	var a advice.Advisor
	if advisor != nil {
		a = advisor
	}
	ledger := NewConversationService(&config.LedgerConfig{DedupWindow: 5}, env.repo, env.roster, a, zap.NewNop())
	svc := NewCycleService(&config.CycleConfig{MaxLength: 52, MeetingIntervalDays: 7}, env.repo, env.roster, ledger, a, zap.NewNop())
	svc.(*cycleService).now = func() time.Time { return fixedNow }
	return svc, env
}

func assignmentsRequest(userIDs ...string) *dto.SubmitAssignmentsRequest {
	req := &dto.SubmitAssignmentsRequest{}
	for _, id := range userIDs {
		req.Assignments = append(req.Assignments, dto.AssignmentItem{UserID: id, Role: "开发", Description: "负责 " + id})
	}
	return req
}

// ── 分工草稿测试 ──

func TestSubmitAssignments_Success(t *testing.T) {
	svc, _ := setupCycleService(nil)

	resp, err := svc.SubmitAssignments(context.Background(), "alice", "task-1", assignmentsRequest("alice", "bob"))
	if err != nil {
		t.Fatalf("SubmitAssignments 应成功: %v", err)
	}
	if resp.Status != string(model.AssignmentStatusSubmitted) || len(resp.Assignments) != 2 {
		t.Errorf("期望 SUBMITTED 且 2 条分工，实际: %+v", resp)
	}
	if resp.Assignments[0].AssignedBy != "alice" {
		t.Errorf("AssignedBy 应为提交者，实际: %s", resp.Assignments[0].AssignedBy)
	}
}

func TestSubmitAssignments_AssigneeOutsideGroup(t *testing.T) {
	svc, _ := setupCycleService(nil)

	_, err := svc.SubmitAssignments(context.Background(), "alice", "task-1", assignmentsRequest("alice", "mallory"))
	if !errors.Is(err, ErrAssigneeNotMember) {
		t.Errorf("期望 ErrAssigneeNotMember，实际: %v", err)
	}
}

func TestSubmitAssignments_DuplicateAssignee(t *testing.T) {
	svc, _ := setupCycleService(nil)

	_, err := svc.SubmitAssignments(context.Background(), "alice", "task-1", assignmentsRequest("bob", "bob"))
	if !errors.Is(err, ErrDuplicateAssignee) {
		t.Errorf("期望 ErrDuplicateAssignee，实际: %v", err)
	}
}

func TestSubmitAssignments_NonMemberForbidden(t *testing.T) {
	svc, _ := setupCycleService(nil)

	_, err := svc.SubmitAssignments(context.Background(), "mallory", "task-1", assignmentsRequest("alice"))
	if !errors.Is(err, ErrNotGroupMember) {
		t.Errorf("期望 ErrNotGroupMember，实际: %v", err)
	}
}

func TestUpdateAssignments_ReplacesWholesale(t *testing.T) {
	svc, env := setupCycleService(nil)
	ctx := context.Background()

	if _, err := svc.UpdateAssignments(ctx, "alice", "task-1", assignmentsRequest("alice")); !errors.Is(err, ErrAssignmentsNotSubmitted) {
		t.Errorf("未提交时更新期望 ErrAssignmentsNotSubmitted，实际: %v", err)
	}

	env.submitAssignments("task-1", "alice", "bob")
	resp, err := svc.UpdateAssignments(ctx, "bob", "task-1", assignmentsRequest("bob"))
	if err != nil {
		t.Fatalf("UpdateAssignments 应成功: %v", err)
	}
	if len(resp.Assignments) != 1 || resp.Assignments[0].UserID != "bob" {
		t.Errorf("分工应被整体替换，实际: %+v", resp.Assignments)
	}
}

func TestUpdateAssignments_RejectedAfterFinalize(t *testing.T) {
	svc, env := setupCycleService(nil)
	ctx := context.Background()
	env.submitAssignments("task-1", "alice", "bob")
	if _, err := svc.Confirm(ctx, "task-1", "alice", 2); err != nil {
		t.Fatalf("Confirm 失败: %v", err)
	}

	_, err := svc.UpdateAssignments(ctx, "alice", "task-1", assignmentsRequest("alice"))
	if !errors.Is(err, ErrAssignmentsFinalized) {
		t.Errorf("期望 ErrAssignmentsFinalized，实际: %v", err)
	}
}

func TestGetAssignmentStatus_DraftWhenEmpty(t *testing.T) {
	svc, _ := setupCycleService(nil)

	resp, err := svc.GetAssignmentStatus(context.Background(), "bob", "task-1")
	if err != nil {
		t.Fatalf("GetAssignmentStatus 失败: %v", err)
	}
	if resp.Status != string(model.AssignmentStatusDraft) || len(resp.Assignments) != 0 {
		t.Errorf("期望 DRAFT 且无分工，实际: %+v", resp)
	}

	finalized, _ := svc.GetFinalizedAssignments(context.Background(), "bob", "task-1")
	if len(finalized) != 0 {
		t.Errorf("未确认时不应返回定稿分工，实际: %+v", finalized)
	}
}

// ── Confirm 测试 ──

// 两名成员、3 周周期：生成 6 条周目标与 3 次周会
func TestConfirm_ExpandsCycle(t *testing.T) {
	svc, env := setupCycleService(nil)
	ctx := context.Background()
	env.submitAssignments("task-1", "alice", "bob")

	resp, err := svc.Confirm(ctx, "task-1", "alice", 3)
	if err != nil {
		t.Fatalf("Confirm 应成功: %v", err)
	}
	if resp.GoalsCreated != 6 || resp.MeetingsCreated != 3 {
		t.Errorf("期望 6 条目标、3 次周会，实际: %+v", resp)
	}

	task := env.tasks.tasks["task-1"]
	if task.Cycle == nil || *task.Cycle != 3 || task.Status != model.TaskStatusInProgress {
		t.Errorf("任务应为 IN_PROGRESS 且 cycle=3，实际: %+v", task)
	}

	for _, a := range env.assignments.rows["task-1"] {
		if a.Status != model.AssignmentStatusFinalized {
			t.Errorf("分工应全部定稿，实际: %s", a.Status)
		}
	}

	goals, _ := env.goals.ListByTask(ctx, "task-1")
	if len(goals) != 6 {
		t.Fatalf("期望 6 条目标，实际 %d", len(goals))
	}
	for _, g := range goals {
		if g.Status != model.GoalStatusNotUploaded || g.Goal != "" {
			t.Errorf("新目标应为空且 NOTUPLOADED，实际: %+v", g)
		}
	}

	meetings, _ := env.meetings.ListByTask(ctx, "task-1")
	today := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i, m := range meetings {
		if m.MeetingNo != i+1 || m.Status != model.MeetingStatusUnfinished || m.GroupID != "group-1" {
			t.Errorf("第 %d 次周会字段错误: %+v", i+1, m)
		}
		if want := today.AddDate(0, 0, 7*i); !m.MeetingDate.Equal(want) {
			t.Errorf("第 %d 次周会日期期望 %v，实际 %v", i+1, want, m.MeetingDate)
		}
	}
}

func TestConfirm_SecondCallAlreadyConfirmed(t *testing.T) {
	svc, env := setupCycleService(nil)
	ctx := context.Background()
	env.submitAssignments("task-1", "alice", "bob")

	if _, err := svc.Confirm(ctx, "task-1", "alice", 2); err != nil {
		t.Fatalf("首次 Confirm 失败: %v", err)
	}
	_, err := svc.Confirm(ctx, "task-1", "bob", 2)
	if !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("期望 ErrAlreadyConfirmed，实际: %v", err)
	}

	goals, _ := env.goals.ListByTask(ctx, "task-1")
	if len(goals) != 4 {
		t.Errorf("重复确认不应新增目标，实际 %d 条", len(goals))
	}
}

// 已确认的任务即使周期参数非法也报告已确认
func TestConfirm_AlreadyConfirmedBeforeInvalidLength(t *testing.T) {
	svc, env := setupCycleService(nil)
	ctx := context.Background()
	env.submitAssignments("task-1", "alice", "bob")

	if _, err := svc.Confirm(ctx, "task-1", "alice", 2); err != nil {
		t.Fatalf("首次 Confirm 失败: %v", err)
	}
	for _, length := range []int{0, -1, 53} {
		_, err := svc.Confirm(ctx, "task-1", "alice", length)
		if !errors.Is(err, ErrAlreadyConfirmed) {
			t.Errorf("周期 %d: 期望 ErrAlreadyConfirmed，实际: %v", length, err)
		}
		if got := pkgerrors.KindOf(err); got != pkgerrors.KindInvalidState {
			t.Errorf("周期 %d: 错误分类期望 %s，实际: %s", length, pkgerrors.KindInvalidState, got)
		}
	}
}

// 读取任务之后被并发确认：条件更新失败同样视为已确认
func TestConfirm_ConcurrentConfirmLoses(t *testing.T) {
	svc, env := setupCycleService(nil)
	env.submitAssignments("task-1", "alice")

	other := 4
	raced := &racingTaskRepo{mockTaskRepo: env.tasks, cycle: &other}
	env.repo.Task = raced

	_, err := svc.Confirm(context.Background(), "task-1", "alice", 2)
	if !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("期望 ErrAlreadyConfirmed，实际: %v", err)
	}
	goals, _ := env.goals.ListByTask(context.Background(), "task-1")
	if len(goals) != 0 {
		t.Errorf("确认失败不应生成目标，实际 %d 条", len(goals))
	}
}

// racingTaskRepo 在 GetByID 之后、ConfirmCycle 之前模拟另一请求完成确认
type racingTaskRepo struct {
	*mockTaskRepo
	cycle *int
}

func (r *racingTaskRepo) GetByID(ctx context.Context, id string) (*model.Task, error) {
	t, err := r.mockTaskRepo.GetByID(ctx, id)
	if err == nil {
		r.mockTaskRepo.tasks[id].Cycle = r.cycle
	}
	return t, err
}

func TestConfirm_Preconditions(t *testing.T) {
	tests := []struct {
		name      string
		taskID    string
		requester string
		cycle     int
		submit    bool
		wantErr   error
		wantKind  pkgerrors.Kind
	}{
		{"任务不存在", "missing", "alice", 2, true, ErrTaskNotFound, pkgerrors.KindNotFound},
		{"非小组成员", "task-1", "mallory", 2, true, ErrNotGroupMember, pkgerrors.KindForbidden},
		{"周期为 0", "task-1", "alice", 0, true, ErrInvalidCycleLength, pkgerrors.KindInvalidArgument},
		{"周期超过上限", "task-1", "alice", 53, true, ErrInvalidCycleLength, pkgerrors.KindInvalidArgument},
		{"分工未提交", "task-1", "alice", 2, false, ErrAssignmentsNotSubmitted, pkgerrors.KindInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, env := setupCycleService(nil)
			if tt.submit {
				env.submitAssignments("task-1", "alice", "bob")
			}

			_, err := svc.Confirm(context.Background(), tt.taskID, tt.requester, tt.cycle)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("期望 %v，实际: %v", tt.wantErr, err)
			}
			if got := pkgerrors.KindOf(err); got != tt.wantKind {
				t.Errorf("错误分类期望 %s，实际: %s", tt.wantKind, got)
			}
			if env.tasks.tasks["task-1"].Cycle != nil {
				t.Error("前置条件失败时不应写入周期")
			}
		})
	}
}

// ── 分工建议测试 ──

func TestRequestInitialAdvice_AppendsAgentMessage(t *testing.T) {
	advisor := &mockAdvisor{}
	svc, env := setupCycleService(advisor)

	resp, err := svc.RequestInitialAdvice(context.Background(), "alice", "task-1")
	if err != nil {
		t.Fatalf("RequestInitialAdvice 失败: %v", err)
	}
	if resp.Degraded || resp.Advice != "建议先拆分模块" {
		t.Errorf("期望正常建议，实际: %+v", resp)
	}

	entries := env.conversations.entries
	if len(entries) != 1 || entries[0].SenderType != model.SenderAgent || entries[0].SenderID != nil {
		t.Fatalf("应写入一条 AGENT 记录，实际: %+v", entries)
	}
	var meta map[string]any
	_ = json.Unmarshal(entries[0].Metadata, &meta)
	if meta["kind"] != adviceKindInitial {
		t.Errorf("metadata.kind 期望 %s，实际: %v", adviceKindInitial, meta["kind"])
	}
}

func TestRequestConfirmationAdvice_Degraded(t *testing.T) {
	advisor := &mockAdvisor{err: advice.ErrUpstreamUnavailable}
	svc, env := setupCycleService(advisor)
	env.submitAssignments("task-1", "alice", "bob")

	resp, err := svc.RequestConfirmationAdvice(context.Background(), "alice", "task-1")
	if err != nil {
		t.Fatalf("建议服务失败应降级而不是报错: %v", err)
	}
	if !resp.Degraded || resp.Advice != advice.DegradedMessage {
		t.Errorf("期望降级文案，实际: %+v", resp)
	}
	if len(env.conversations.entries) != 0 {
		t.Error("降级文案不应写入对话记录")
	}
}

func TestRequestConfirmationAdvice_RequiresAssignments(t *testing.T) {
	svc, _ := setupCycleService(&mockAdvisor{})

	_, err := svc.RequestConfirmationAdvice(context.Background(), "alice", "task-1")
	if !errors.Is(err, ErrAssignmentsNotSubmitted) {
		t.Errorf("期望 ErrAssignmentsNotSubmitted，实际: %v", err)
	}
}
