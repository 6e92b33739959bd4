package model

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel 通用审计字段（业务模型嵌入）
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	CreatedBy *string   `gorm:"type:uuid"                          json:"createdBy,omitempty"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
	UpdatedBy *string   `gorm:"type:uuid"                          json:"updatedBy,omitempty"`
}

// newID 主键为空时生成 UUID，由各模型的 BeforeCreate 调用
func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// StringPtr 返回字符串指针，空串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
