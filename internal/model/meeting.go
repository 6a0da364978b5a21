package model

import (
	"time"

	"gorm.io/gorm"
)

// Meeting 周会记录表 — 对应 meetings
// (task_id, meeting_no) 唯一
type Meeting struct {
	MeetingID   string        `gorm:"type:uuid;primaryKey"                                json:"meeting_id"`
	GroupID     string        `gorm:"type:uuid;not null"                                  json:"group_id"`
	TaskID      string        `gorm:"type:uuid;not null;uniqueIndex:uq_meeting_task_no"   json:"task_id"`
	MeetingNo   int           `gorm:"not null;uniqueIndex:uq_meeting_task_no"             json:"meeting_no"`
	MeetingDate time.Time     `gorm:"type:date;not null"                                  json:"meeting_date"`
	Status      MeetingStatus `gorm:"type:varchar(20);not null;default:'UNFINISHED'"      json:"status"`
	DocumentURL string        `gorm:"type:varchar(500)"                                   json:"document_url,omitempty"`
	BaseModel
}

// TableName 指定表名
func (Meeting) TableName() string { return "meetings" }

func (m *Meeting) BeforeCreate(_ *gorm.DB) error {
	newID(&m.MeetingID)
	return nil
}

// [自证通过] internal/model/meeting.go
