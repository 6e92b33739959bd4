package model

import (
	"time"

	"gorm.io/gorm"
)

// 角色名，随访问令牌下发
const (
	RoleAdmin  = "admin"
	RoleNurse  = "nurse"
	RoleParent = "parent"
)

// User 用户表 — 对应 users
// 用户的增删改由账号服务负责，这里只读取摘要信息
type User struct {
	UserID       string    `gorm:"type:uuid;primaryKey"               json:"userId"`
	Name         string    `gorm:"type:varchar(100);not null"         json:"name"`
	Email        string    `gorm:"type:varchar(255);not null"         json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null"         json:"-"`
	Role         string    `gorm:"type:varchar(20);not null"          json:"role"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// BeforeCreate 生成主键
func (u *User) BeforeCreate(*gorm.DB) error {
	newID(&u.UserID)
	return nil
}

// AuthContext 请求入口解析一次的调用方身份，按值传入服务层
type AuthContext struct {
	UserID   string
	RoleName string
}

// IsAdmin 是否管理员
func (a AuthContext) IsAdmin() bool { return a.RoleName == RoleAdmin }

// IsNurse 是否校医/护士
func (a AuthContext) IsNurse() bool { return a.RoleName == RoleNurse }

// IsParent 是否家长
func (a AuthContext) IsParent() bool { return a.RoleName == RoleParent }
