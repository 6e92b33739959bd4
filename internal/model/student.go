package model

import (
	"time"

	"gorm.io/gorm"
)

// Student 学生表 — 对应 students
// GuardianUserID 指向监护人账号，用于家长归属校验
type Student struct {
	StudentID      string     `gorm:"type:uuid;primaryKey"                json:"studentId"`
	FullName       string     `gorm:"type:varchar(100);not null"          json:"fullName"`
	StudentCode    string     `gorm:"type:varchar(50);not null;uniqueIndex" json:"studentCode"`
	ClassName      string     `gorm:"type:varchar(50);not null;default:''" json:"className"`
	DateOfBirth    *time.Time `gorm:"type:date"                           json:"dateOfBirth,omitempty"`
	GuardianUserID *string    `gorm:"type:uuid;index"                     json:"guardianUserId,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"  json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"  json:"updatedAt"`

	// 关联
	Guardian *User `gorm:"foreignKey:GuardianUserID;references:UserID" json:"guardian,omitempty"`
}

// TableName 指定表名
func (Student) TableName() string { return "students" }

// BeforeCreate 生成主键
func (s *Student) BeforeCreate(*gorm.DB) error {
	newID(&s.StudentID)
	return nil
}

// IsGuardedBy 学生的监护人是否为指定用户
func (s *Student) IsGuardedBy(userID string) bool {
	return s.GuardianUserID != nil && userID != "" && *s.GuardianUserID == userID
}
