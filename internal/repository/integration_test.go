//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"almond/backend/internal/model"
	"almond/backend/internal/repository"
	"almond/backend/pkg/database"
	pkgerrors "almond/backend/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// Test Setup（真实 PostgreSQL，表结构来自迁移文件）
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=almond password=almond_password dbname=almond_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "执行迁移失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	sqlDB.Close()
	os.Exit(code)
}

type fixture struct {
	repo  *repository.Repository
	group *model.Group
	users []model.User
	task  *model.Task
}

// setupFixture 创建一个两人小组与一个未确认任务，测试结束后清理
func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewRepository(testDB)
	suffix := time.Now().UnixNano()

	group := &model.Group{Name: fmt.Sprintf("测试小组-%d", suffix)}
	if err := repo.Roster.CreateGroup(ctx, group); err != nil {
		t.Fatalf("创建小组失败: %v", err)
	}
	users := []model.User{
		{Name: "Alice", Email: fmt.Sprintf("alice%d@example.com", suffix), PasswordHash: "$2a$10$placeholder", Role: model.RoleStudent},
		{Name: "Bob", Email: fmt.Sprintf("bob%d@example.com", suffix), PasswordHash: "$2a$10$placeholder", Role: model.RoleStudent},
	}
	for i := range users {
		if err := repo.User.Create(ctx, &users[i]); err != nil {
			t.Fatalf("创建用户失败: %v", err)
		}
		if err := repo.Roster.AddMember(ctx, group.GroupID, users[i].UserID); err != nil {
			t.Fatalf("添加成员失败: %v", err)
		}
	}
	task := &model.Task{GroupID: group.GroupID, Title: "集成测试任务", Status: model.TaskStatusInitializing}
	if err := repo.Task.Create(ctx, task); err != nil {
		t.Fatalf("创建任务失败: %v", err)
	}

	t.Cleanup(func() {
		testDB.Exec("DELETE FROM conversations WHERE task_id = ?", task.TaskID)
		testDB.Exec("DELETE FROM meetings WHERE task_id = ?", task.TaskID)
		testDB.Exec("DELETE FROM member_weekly_goals WHERE task_id = ?", task.TaskID)
		testDB.Exec("DELETE FROM task_assignments WHERE task_id = ?", task.TaskID)
		testDB.Exec("DELETE FROM tasks WHERE task_id = ?", task.TaskID)
		testDB.Exec("DELETE FROM user_groups WHERE group_id = ?", group.GroupID)
		testDB.Exec("DELETE FROM groups WHERE group_id = ?", group.GroupID)
		for _, u := range users {
			testDB.Exec("DELETE FROM users WHERE user_id = ?", u.UserID)
		}
	})
	return &fixture{repo: repo, group: group, users: users, task: task}
}

func (f *fixture) meeting(no int) model.Meeting {
	return model.Meeting{
		GroupID:     f.group.GroupID,
		TaskID:      f.task.TaskID,
		MeetingNo:   no,
		MeetingDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*(no-1)),
		Status:      model.MeetingStatusUnfinished,
	}
}

// ═══════════════════════════════════════════════════════════
// Test: 唯一约束
// ═══════════════════════════════════════════════════════════

func TestMeeting_UniqueTaskAndNo(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	first := f.meeting(1)
	if err := f.repo.Meeting.Create(ctx, &first); err != nil {
		t.Fatalf("创建周会失败: %v", err)
	}
	dup := f.meeting(1)
	err := f.repo.Meeting.Create(ctx, &dup)
	if !repository.IsUniqueViolation(err) {
		t.Errorf("期望唯一约束冲突，实际: %v", err)
	}
}

func TestWeeklyGoal_UniquePerWeek(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	goal := model.MemberWeeklyGoal{TaskID: f.task.TaskID, StudentID: f.users[0].UserID, WeekNo: 1, Status: model.GoalStatusNotUploaded}
	if err := f.repo.WeeklyGoal.Create(ctx, &goal); err != nil {
		t.Fatalf("创建目标失败: %v", err)
	}
	dup := model.MemberWeeklyGoal{TaskID: f.task.TaskID, StudentID: f.users[0].UserID, WeekNo: 1, Status: model.GoalStatusNotUploaded}
	if err := f.repo.WeeklyGoal.Create(ctx, &dup); !repository.IsUniqueViolation(err) {
		t.Errorf("期望唯一约束冲突，实际: %v", err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: 条件更新
// ═══════════════════════════════════════════════════════════

func TestTask_ConfirmCycle_OnlyOnce(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	if err := f.repo.Task.ConfirmCycle(ctx, f.task.TaskID, 4); err != nil {
		t.Fatalf("首次确认失败: %v", err)
	}
	if err := f.repo.Task.ConfirmCycle(ctx, f.task.TaskID, 6); !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望 ErrOptimisticLock，实际: %v", err)
	}
	stored, _ := f.repo.Task.GetByID(ctx, f.task.TaskID)
	if stored.Cycle == nil || *stored.Cycle != 4 || stored.Status != model.TaskStatusInProgress {
		t.Errorf("周期应保持 4，实际: %+v", stored)
	}
}

func TestWeeklyGoal_UpdateContent_NoRegression(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	goal := model.MemberWeeklyGoal{TaskID: f.task.TaskID, StudentID: f.users[0].UserID, WeekNo: 1, Status: model.GoalStatusNotUploaded}
	if err := f.repo.WeeklyGoal.Create(ctx, &goal); err != nil {
		t.Fatalf("创建目标失败: %v", err)
	}
	if err := f.repo.WeeklyGoal.UpdateContent(ctx, goal.GoalID, "完成接口", model.GoalStatusProcessing); err != nil {
		t.Fatalf("UpdateContent 失败: %v", err)
	}
	if n, err := f.repo.WeeklyGoal.FinalizeWeek(ctx, f.task.TaskID, 1); err != nil || n != 1 {
		t.Fatalf("FinalizeWeek 期望 1 行，实际: %d, %v", n, err)
	}
	err := f.repo.WeeklyGoal.UpdateContent(ctx, goal.GoalID, "回退", model.GoalStatusProcessing)
	if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("FINISHED 不可回退，期望 ErrOptimisticLock，实际: %v", err)
	}
}

func TestMeeting_CountUnfinishedBefore(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	meetings := []model.Meeting{f.meeting(1), f.meeting(2), f.meeting(3)}
	if err := f.repo.Meeting.BatchCreate(ctx, meetings); err != nil {
		t.Fatalf("批量创建周会失败: %v", err)
	}
	first, _ := f.repo.Meeting.GetByTaskAndNo(ctx, f.task.TaskID, 1)
	if err := f.repo.Meeting.UpdateStatus(ctx, first.MeetingID, model.MeetingStatusCompleted); err != nil {
		t.Fatalf("UpdateStatus 失败: %v", err)
	}

	n, err := f.repo.Meeting.CountUnfinishedBefore(ctx, f.task.TaskID, 3)
	if err != nil || n != 1 {
		t.Errorf("期望第 3 次之前有 1 次未完成，实际: %d, %v", n, err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: JSONB 与事务
// ═══════════════════════════════════════════════════════════

func TestConversation_MetadataRoundTrip(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	entry := &model.Conversation{
		TaskID:     f.task.TaskID,
		GroupID:    f.group.GroupID,
		SenderType: model.SenderAgent,
		Content:    "本周建议",
		Metadata:   datatypes.JSON(`{"kind":"progress","week_no":2}`),
	}
	if err := f.repo.Conversation.Create(ctx, entry); err != nil {
		t.Fatalf("写入对话失败: %v", err)
	}

	list, err := f.repo.Conversation.ListByTaskAndGroup(ctx, f.task.TaskID, f.group.GroupID)
	if err != nil || len(list) != 1 {
		t.Fatalf("期望 1 条记录，实际: %d, %v", len(list), err)
	}
	var count int64
	testDB.Model(&model.Conversation{}).
		Where("task_id = ? AND metadata->>'kind' = ?", f.task.TaskID, "progress").
		Count(&count)
	if count != 1 {
		t.Errorf("JSONB 查询应命中 1 条，实际: %d", count)
	}
}

func TestTransaction_Rollback(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	tx, err := f.repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx 失败: %v", err)
	}
	txRepo := f.repo.WithTx(tx)
	if err := txRepo.Task.ConfirmCycle(ctx, f.task.TaskID, 2); err != nil {
		t.Fatalf("事务内确认失败: %v", err)
	}
	if err := txRepo.Meeting.BatchCreate(ctx, []model.Meeting{f.meeting(1), f.meeting(2)}); err != nil {
		t.Fatalf("事务内创建周会失败: %v", err)
	}
	tx.Rollback()

	stored, _ := f.repo.Task.GetByID(ctx, f.task.TaskID)
	if stored.Cycle != nil {
		t.Errorf("回滚后周期应为空，实际: %v", *stored.Cycle)
	}
	meetings, _ := f.repo.Meeting.ListByTask(ctx, f.task.TaskID)
	if len(meetings) != 0 {
		t.Errorf("回滚后不应有周会，实际: %d", len(meetings))
	}
}
