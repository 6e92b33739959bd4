package repository

import (
	"context"

	"gorm.io/gorm"

	"school-health/backend/internal/model"
)

// StudentRepository 学生数据访问接口（学生档案由其他模块维护，这里只读）
type StudentRepository interface {
	ListByIDs(ctx context.Context, ids []string) ([]model.Student, error)
}

type studentRepo struct {
	db *gorm.DB
}

// NewStudentRepo 创建 StudentRepository 实例
func NewStudentRepo(db *gorm.DB) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Student, error) {
	// 非 uuid 的 ID 视为不存在，由调用方按数量差判定
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("student_id IN ?", valid).
		Find(&students).Error
	return students, err
}
