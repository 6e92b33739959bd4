package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"school-health/backend/internal/model"
	"school-health/backend/pkg/querybuilder"
)

// CampaignFilter 活动列表过滤
type CampaignFilter struct {
	Status string
}

// CampaignPatch 活动的部分更新，nil 字段不修改
type CampaignPatch struct {
	Name            *string
	VaccineName     *string
	VaccineType     *string
	Description     *string
	ScheduledDate   *time.Time
	ConsentDeadline *time.Time
	Status          *string
}

// IsEmpty 是否没有任何待更新字段
func (p CampaignPatch) IsEmpty() bool {
	return p.Name == nil && p.VaccineName == nil && p.VaccineType == nil && p.Description == nil &&
		p.ScheduledDate == nil && p.ConsentDeadline == nil && p.Status == nil
}

// CampaignRepository 接种活动数据访问接口
type CampaignRepository interface {
	Create(ctx context.Context, campaign *model.VaccinationCampaign, creatorID string) error
	GetByID(ctx context.Context, id string) (*model.VaccinationCampaign, error)
	Update(ctx context.Context, id string, patch CampaignPatch, updaterID string) (*model.VaccinationCampaign, error)
	ListAll(ctx context.Context, filter CampaignFilter, page Pagination, sort querybuilder.Sort) ([]model.VaccinationCampaign, int64, error)
	Search(ctx context.Context, qb *querybuilder.Builder) ([]model.VaccinationCampaign, int64, error)
}

var campaignFields = fieldSet{
	columns: map[string]string{
		"name":            "name",
		"vaccineName":     "vaccine_name",
		"vaccineType":     "vaccine_type",
		"status":          "status",
		"scheduledDate":   "scheduled_date",
		"consentDeadline": "consent_deadline",
		"createdBy":       "created_by",
		"createdAt":       "created_at",
		"updatedAt":       "updated_at",
	},
	uuids: map[string]bool{"createdBy": true},
}

var campaignKeywordColumns = []string{
	"vaccination_campaigns.name",
	"vaccination_campaigns.vaccine_name",
	"vaccination_campaigns.vaccine_type",
	"vaccination_campaigns.description",
}

type campaignRepo struct {
	db *gorm.DB
}

// NewCampaignRepo 创建 CampaignRepository 实例
func NewCampaignRepo(db *gorm.DB) CampaignRepository {
	return &campaignRepo{db: db}
}

func (r *campaignRepo) Create(ctx context.Context, campaign *model.VaccinationCampaign, creatorID string) error {
	if campaign.Status == "" {
		campaign.Status = model.CampaignStatusDraft
	}
	if !model.IsValidCampaignStatus(campaign.Status) {
		return ErrInvalidCampaignStatus
	}
	campaign.CreatedBy = model.StringPtr(creatorID)
	campaign.UpdatedBy = model.StringPtr(creatorID)
	return r.db.WithContext(ctx).Create(campaign).Error
}

func (r *campaignRepo) GetByID(ctx context.Context, id string) (*model.VaccinationCampaign, error) {
	if !isUUID(id) {
		return nil, ErrCampaignNotFound
	}
	var campaign model.VaccinationCampaign
	err := r.db.WithContext(ctx).
		Preload("Creator", userSummary).
		Where("campaign_id = ?", id).
		First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *campaignRepo) Update(ctx context.Context, id string, patch CampaignPatch, updaterID string) (*model.VaccinationCampaign, error) {
	if !isUUID(id) {
		return nil, ErrCampaignNotFound
	}
	if patch.Status != nil && !model.IsValidCampaignStatus(*patch.Status) {
		return nil, ErrInvalidCampaignStatus
	}
	updates := map[string]interface{}{
		"updated_by": updaterID,
		"updated_at": time.Now(),
	}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.VaccineName != nil {
		updates["vaccine_name"] = *patch.VaccineName
	}
	if patch.VaccineType != nil {
		updates["vaccine_type"] = *patch.VaccineType
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.ScheduledDate != nil {
		updates["scheduled_date"] = *patch.ScheduledDate
	}
	if patch.ConsentDeadline != nil {
		updates["consent_deadline"] = *patch.ConsentDeadline
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}

	res := r.db.WithContext(ctx).
		Model(&model.VaccinationCampaign{}).
		Where("campaign_id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrCampaignNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *campaignRepo) ListAll(ctx context.Context, filter CampaignFilter, page Pagination, sort querybuilder.Sort) ([]model.VaccinationCampaign, int64, error) {
	var campaigns []model.VaccinationCampaign
	var total int64

	db := r.db.WithContext(ctx).Model(&model.VaccinationCampaign{})
	if filter.Status != "" {
		if !model.IsValidCampaignStatus(filter.Status) {
			return nil, 0, ErrInvalidCampaignStatus
		}
		db = db.Where("status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Creator", userSummary).
		Order(campaignFields.orderBy(sort, "")).
		Order("campaign_id").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&campaigns).Error
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// Search 过滤 + 关键字检索，关键字只匹配活动自身字段，无需联表
func (r *campaignRepo) Search(ctx context.Context, qb *querybuilder.Builder) ([]model.VaccinationCampaign, int64, error) {
	var campaigns []model.VaccinationCampaign
	var total int64

	db := r.db.WithContext(ctx).Model(&model.VaccinationCampaign{})
	if clause, args := qb.BuildKeywordMatch(campaignKeywordColumns...); clause != "" {
		db = db.Where(clause, args...)
	}
	db, err := campaignFields.applyConditions(db, qb.BuildFilter(), "vaccination_campaigns.")
	if err != nil {
		return nil, 0, err
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := PaginationOf(qb)
	err = db.Preload("Creator", userSummary).
		Order(campaignFields.orderBy(qb.GetSort(), "vaccination_campaigns.")).
		Order("vaccination_campaigns.campaign_id").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&campaigns).Error
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}
