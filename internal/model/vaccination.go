package model

import (
	"time"

	"gorm.io/gorm"
)

// 活动状态
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

// 家长知情同意状态
const (
	ConsentPending  = "pending"
	ConsentApproved = "approved"
	ConsentDenied   = "denied"
)

// 接种状态
const (
	VaccinationScheduled = "scheduled"
	VaccinationCompleted = "completed"
	VaccinationMissed    = "missed"
	VaccinationCancelled = "cancelled"
)

// IsValidCampaignStatus 活动状态是否合法
func IsValidCampaignStatus(s string) bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusCompleted, CampaignStatusCancelled:
		return true
	}
	return false
}

// IsConsentDecision 家长可提交的决定：approved | denied
func IsConsentDecision(s string) bool {
	return s == ConsentApproved || s == ConsentDenied
}

// IsVaccinationOutcome 护士可录入的结果：completed | missed | cancelled
func IsVaccinationOutcome(s string) bool {
	switch s {
	case VaccinationCompleted, VaccinationMissed, VaccinationCancelled:
		return true
	}
	return false
}

// VaccinationCampaign 接种活动 — 对应 vaccination_campaigns
type VaccinationCampaign struct {
	CampaignID      string    `gorm:"type:uuid;primaryKey"                     json:"campaignId"`
	Name            string    `gorm:"type:varchar(200);not null"               json:"name"`
	VaccineName     string    `gorm:"type:varchar(200);not null"               json:"vaccineName"`
	VaccineType     string    `gorm:"type:varchar(100);not null;default:''"    json:"vaccineType"`
	Description     string    `gorm:"type:text;not null;default:''"            json:"description"`
	ScheduledDate   time.Time `gorm:"not null"                                 json:"scheduledDate"`
	ConsentDeadline time.Time `gorm:"not null"                                 json:"consentDeadline"`
	Status          string    `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"` // draft | active | completed | cancelled
	BaseModel

	// 关联
	Creator *User `gorm:"foreignKey:CreatedBy;references:UserID" json:"creator,omitempty"`
}

// TableName 指定表名
func (VaccinationCampaign) TableName() string { return "vaccination_campaigns" }

// BeforeCreate 生成主键
func (c *VaccinationCampaign) BeforeCreate(*gorm.DB) error {
	newID(&c.CampaignID)
	return nil
}

// VaccinationParticipation 学生参与接种活动的记录 — 对应 vaccination_participations
// 两条独立的状态轴：知情同意 pending → approved|denied，接种 scheduled → completed|missed|cancelled
type VaccinationParticipation struct {
	ParticipationID   string     `gorm:"type:uuid;primaryKey"                                                   json:"participationId"`
	CampaignID        string     `gorm:"type:uuid;not null;uniqueIndex:uq_participation_campaign_student,priority:1;index:idx_participation_campaign_consent,priority:1;index:idx_participation_campaign_status,priority:1" json:"campaignId"`
	StudentID         string     `gorm:"type:uuid;not null;uniqueIndex:uq_participation_campaign_student,priority:2;index:idx_participation_student" json:"studentId"`
	ParentConsent     string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_participation_campaign_consent,priority:2"    json:"parentConsent"`
	ParentConsentDate *time.Time `gorm:""                                                                       json:"parentConsentDate,omitempty"`
	ParentNote        string     `gorm:"type:text;not null;default:''"                                          json:"parentNote,omitempty"`
	VaccinationStatus string     `gorm:"type:varchar(20);not null;default:'scheduled';index:idx_participation_campaign_status,priority:2" json:"vaccinationStatus"`
	VaccinationDate   *time.Time `gorm:""                                                                       json:"vaccinationDate,omitempty"`
	VaccinatedNurseID *string    `gorm:"type:uuid"                                                              json:"vaccinatedNurseId,omitempty"`
	NurseNote         string     `gorm:"type:text;not null;default:''"                                          json:"nurseNote,omitempty"`
	BaseModel

	// 关联
	Campaign        *VaccinationCampaign `gorm:"foreignKey:CampaignID;references:CampaignID"        json:"campaign,omitempty"`
	Student         *Student             `gorm:"foreignKey:StudentID;references:StudentID"          json:"student,omitempty"`
	Creator         *User                `gorm:"foreignKey:CreatedBy;references:UserID"             json:"creator,omitempty"`
	VaccinatedNurse *User                `gorm:"foreignKey:VaccinatedNurseID;references:UserID"     json:"vaccinatedNurse,omitempty"`
}

// TableName 指定表名
func (VaccinationParticipation) TableName() string { return "vaccination_participations" }

// BeforeCreate 生成主键
func (p *VaccinationParticipation) BeforeCreate(*gorm.DB) error {
	newID(&p.ParticipationID)
	return nil
}
