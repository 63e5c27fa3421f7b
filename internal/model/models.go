package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base 公共字段，主键使用 UUID
type Base struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate 未指定主键时自动生成
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// ParseID 解析路径中的 ID，非法格式视为不存在
func ParseID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&User{},
		&Course{},
		&Lecture{},
		&Enrollment{},
		&CourseProgress{},
		&CoursePurchase{},
		&Rating{},
	}
}
