package repository

import "gorm.io/gorm"

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Campaign      CampaignRepository
	Participation ParticipationRepository
	Student       StudentRepository
	ConsentAudit  ConsentAuditRepository
}

// NewRepository 创建 Repository 聚合
// audit 为 nil 时使用空实现
func NewRepository(db *gorm.DB, audit ConsentAuditRepository) *Repository {
	if audit == nil {
		audit = NewNoopConsentAuditRepo()
	}
	return &Repository{
		Campaign:      NewCampaignRepo(db),
		Participation: NewParticipationRepo(db),
		Student:       NewStudentRepo(db),
		ConsentAudit:  audit,
	}
}
