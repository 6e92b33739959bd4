package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"school-health/backend/internal/model"
	"school-health/backend/pkg/querybuilder"
)

// ParticipationFilter 参与记录列表的可选等值过滤
type ParticipationFilter struct {
	CampaignID        string
	ParentConsent     string
	VaccinationStatus string
}

// EnrollResult 批量加入结果；Skipped 为此前已加入该活动的学生
type EnrollResult struct {
	Enrolled []string `json:"enrolled"`
	Skipped  []string `json:"skipped"`
}

// ConsentResult 知情同意更新结果
type ConsentResult struct {
	Participation   *model.VaccinationParticipation
	PreviousConsent string
}

// ParticipationRepository 接种参与记录数据访问接口
type ParticipationRepository interface {
	BulkEnroll(ctx context.Context, campaignID string, studentIDs []string, adminID string) (*EnrollResult, error)
	GetByID(ctx context.Context, id string) (*model.VaccinationParticipation, error)
	RecordParentConsent(ctx context.Context, id, parentID, consent, note string) (*ConsentResult, error)
	RecordVaccinationOutcome(ctx context.Context, id, nurseID, status string, vaccinationDate *time.Time, note string) (*model.VaccinationParticipation, error)
	ListByCampaign(ctx context.Context, campaignID string, page Pagination, sort querybuilder.Sort, filter ParticipationFilter) ([]model.VaccinationParticipation, int64, error)
	ListByGuardian(ctx context.Context, guardianID string, page Pagination, sort querybuilder.Sort, filter ParticipationFilter) ([]model.VaccinationParticipation, int64, error)
	ListAllByCampaign(ctx context.Context, campaignID string) ([]model.VaccinationParticipation, error)
	Search(ctx context.Context, qb *querybuilder.Builder) ([]model.VaccinationParticipation, int64, error)
	SearchByGuardian(ctx context.Context, guardianID string, qb *querybuilder.Builder) ([]model.VaccinationParticipation, int64, error)
}

const participationTable = "vaccination_participations"

var participationFields = fieldSet{
	columns: map[string]string{
		"campaignId":        "campaign_id",
		"studentId":         "student_id",
		"parentConsent":     "parent_consent",
		"vaccinationStatus": "vaccination_status",
		"vaccinatedNurseId": "vaccinated_nurse_id",
		"createdBy":         "created_by",
		"parentConsentDate": "parent_consent_date",
		"vaccinationDate":   "vaccination_date",
		"createdAt":         "created_at",
		"updatedAt":         "updated_at",
	},
	uuids: map[string]bool{
		"campaignId":        true,
		"studentId":         true,
		"vaccinatedNurseId": true,
		"createdBy":         true,
	},
}

// 联表检索时参与关键字匹配的列
var participationKeywordColumns = []string{
	"c.name", "c.vaccine_name", "c.vaccine_type",
	"s.full_name", "s.student_code", "s.class_name",
	"cu.name", "cu.email",
	"nu.name", "nu.email",
	"p.parent_note", "p.nurse_note",
}

type participationRepo struct {
	db *gorm.DB
}

// NewParticipationRepo 创建 ParticipationRepository 实例
func NewParticipationRepo(db *gorm.DB) ParticipationRepository {
	return &participationRepo{db: db}
}

// preloadSummaries 加载活动、学生、创建人、接种护士的摘要，不含账号凭据
func preloadSummaries(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Campaign", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("campaign_id", "name", "vaccine_name", "vaccine_type",
				"scheduled_date", "consent_deadline", "status")
		}).
		Preload("Student", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("student_id", "full_name", "student_code", "class_name", "guardian_user_id")
		}).
		Preload("Creator", userSummary).
		Preload("VaccinatedNurse", userSummary)
}

// ────── 写操作 ──────

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// BulkEnroll 在一个事务内批量加入学生，已加入的学生跳过
// 唯一索引 (campaign_id, student_id) 兜底并发插入
func (r *participationRepo) BulkEnroll(ctx context.Context, campaignID string, studentIDs []string, adminID string) (*EnrollResult, error) {
	ids := dedupeIDs(studentIDs)
	if len(ids) == 0 {
		return nil, ErrEmptyStudentIDs
	}
	if !isUUID(campaignID) {
		return nil, ErrCampaignNotFound
	}
	for _, id := range ids {
		if !isUUID(id) {
			return nil, ErrInvalidFilterValue
		}
	}

	result := &EnrollResult{Enrolled: []string{}, Skipped: []string{}}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&model.VaccinationParticipation{}).
			Where("campaign_id = ? AND student_id IN ?", campaignID, ids).
			Pluck("student_id", &existing).Error; err != nil {
			return err
		}
		enrolled := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			enrolled[id] = struct{}{}
		}

		rows := make([]model.VaccinationParticipation, 0, len(ids))
		for _, id := range ids {
			if _, ok := enrolled[id]; ok {
				result.Skipped = append(result.Skipped, id)
				continue
			}
			rows = append(rows, model.VaccinationParticipation{
				CampaignID:        campaignID,
				StudentID:         id,
				ParentConsent:     model.ConsentPending,
				VaccinationStatus: model.VaccinationScheduled,
				BaseModel: model.BaseModel{
					CreatedBy: model.StringPtr(adminID),
					UpdatedBy: model.StringPtr(adminID),
				},
			})
			result.Enrolled = append(result.Enrolled, id)
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrConcurrentEnrollment
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordParentConsent 家长提交知情同意
// 拒绝时必须填写原因，拒绝会同时将接种状态置为 cancelled；
// 由拒绝改为同意时，因拒绝而取消的接种恢复为 scheduled
func (r *participationRepo) RecordParentConsent(ctx context.Context, id, parentID, consent, note string) (*ConsentResult, error) {
	if !model.IsConsentDecision(consent) {
		return nil, ErrInvalidConsent
	}
	note = strings.TrimSpace(note)
	if consent == model.ConsentDenied && note == "" {
		return nil, ErrDenialReasonRequired
	}
	if !isUUID(id) {
		return nil, ErrParticipationNotFound
	}

	var current model.VaccinationParticipation
	err := r.db.WithContext(ctx).
		Preload("Student", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("student_id", "guardian_user_id")
		}).
		Where("participation_id = ?", id).
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrParticipationNotFound
	}
	if err != nil {
		return nil, err
	}
	if current.Student == nil || !current.Student.IsGuardedBy(parentID) {
		return nil, ErrNotGuardian
	}

	// 备注只描述本次决定，旧的拒绝原因由审计日志保留
	now := time.Now()
	updates := map[string]interface{}{
		"parent_consent":      consent,
		"parent_consent_date": now,
		"parent_note":         note,
		"updated_by":          parentID,
		"updated_at":          now,
	}
	switch {
	case consent == model.ConsentDenied:
		updates["vaccination_status"] = model.VaccinationCancelled
	case current.ParentConsent == model.ConsentDenied && current.VaccinationStatus == model.VaccinationCancelled:
		updates["vaccination_status"] = model.VaccinationScheduled
	}

	if err := r.db.WithContext(ctx).
		Model(&model.VaccinationParticipation{}).
		Where("participation_id = ?", id).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	updated, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ConsentResult{Participation: updated, PreviousConsent: current.ParentConsent}, nil
}

// RecordVaccinationOutcome 护士录入接种结果，仅 scheduled 状态可录入
// completed 必须带接种日期并记录护士；备注对所有结果都是可选的
func (r *participationRepo) RecordVaccinationOutcome(ctx context.Context, id, nurseID, status string, vaccinationDate *time.Time, note string) (*model.VaccinationParticipation, error) {
	if !model.IsVaccinationOutcome(status) {
		return nil, ErrInvalidOutcome
	}
	if status == model.VaccinationCompleted && (vaccinationDate == nil || vaccinationDate.IsZero()) {
		return nil, ErrVaccinationDateRequired
	}
	if !isUUID(id) {
		return nil, ErrParticipationNotFound
	}

	var current model.VaccinationParticipation
	err := r.db.WithContext(ctx).
		Select("participation_id", "vaccination_status").
		Where("participation_id = ?", id).
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrParticipationNotFound
	}
	if err != nil {
		return nil, err
	}
	if current.VaccinationStatus != model.VaccinationScheduled {
		return nil, ErrOutcomeAlreadyRecorded
	}

	updates := map[string]interface{}{
		"vaccination_status": status,
		"updated_by":         nurseID,
		"updated_at":         time.Now(),
	}
	if status == model.VaccinationCompleted {
		updates["vaccinated_nurse_id"] = nurseID
		updates["vaccination_date"] = *vaccinationDate
	}
	if note = strings.TrimSpace(note); note != "" {
		updates["nurse_note"] = note
	}

	// 条件更新防止并发的重复录入
	res := r.db.WithContext(ctx).
		Model(&model.VaccinationParticipation{}).
		Where("participation_id = ? AND vaccination_status = ?", id, model.VaccinationScheduled).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrOutcomeAlreadyRecorded
	}

	return r.GetByID(ctx, id)
}

// ────── 读操作 ──────

func (r *participationRepo) GetByID(ctx context.Context, id string) (*model.VaccinationParticipation, error) {
	if !isUUID(id) {
		return nil, ErrParticipationNotFound
	}
	var p model.VaccinationParticipation
	err := r.db.WithContext(ctx).
		Scopes(preloadSummaries).
		Where("participation_id = ?", id).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrParticipationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *participationRepo) ListByCampaign(ctx context.Context, campaignID string, page Pagination, sort querybuilder.Sort, filter ParticipationFilter) ([]model.VaccinationParticipation, int64, error) {
	if !isUUID(campaignID) {
		return nil, 0, ErrCampaignNotFound
	}
	filter.CampaignID = campaignID
	db := r.db.WithContext(ctx).Model(&model.VaccinationParticipation{})
	return r.list(db, page, sort, filter)
}

// ListByGuardian 联表学生，限定为监护人自己的孩子
func (r *participationRepo) ListByGuardian(ctx context.Context, guardianID string, page Pagination, sort querybuilder.Sort, filter ParticipationFilter) ([]model.VaccinationParticipation, int64, error) {
	if !isUUID(guardianID) {
		return []model.VaccinationParticipation{}, 0, nil
	}
	db := r.db.WithContext(ctx).Model(&model.VaccinationParticipation{}).
		Scopes(guardianScope(guardianID))
	return r.list(db, page, sort, filter)
}

func guardianScope(guardianID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Joins("JOIN students ON students.student_id = " + participationTable + ".student_id").
			Where("students.guardian_user_id = ?", guardianID)
	}
}

func (r *participationRepo) list(db *gorm.DB, page Pagination, sort querybuilder.Sort, filter ParticipationFilter) ([]model.VaccinationParticipation, int64, error) {
	prefix := participationTable + "."
	if filter.CampaignID != "" {
		if !isUUID(filter.CampaignID) {
			return nil, 0, ErrInvalidFilterValue
		}
		db = db.Where(prefix+"campaign_id = ?", filter.CampaignID)
	}
	if filter.ParentConsent != "" {
		db = db.Where(prefix+"parent_consent = ?", filter.ParentConsent)
	}
	if filter.VaccinationStatus != "" {
		db = db.Where(prefix+"vaccination_status = ?", filter.VaccinationStatus)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.VaccinationParticipation
	err := db.Scopes(preloadSummaries).
		Order(participationFields.orderBy(sort, prefix)).
		Order(prefix + "participation_id").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListAllByCampaign 活动下的全部记录（导出用），按班级、姓名排序
func (r *participationRepo) ListAllByCampaign(ctx context.Context, campaignID string) ([]model.VaccinationParticipation, error) {
	if !isUUID(campaignID) {
		return nil, ErrCampaignNotFound
	}
	var list []model.VaccinationParticipation
	err := r.db.WithContext(ctx).
		Model(&model.VaccinationParticipation{}).
		Joins("Student").
		Preload("VaccinatedNurse", userSummary).
		Where(participationTable+".campaign_id = ?", campaignID).
		Order(`"Student"."class_name", "Student"."full_name"`).
		Find(&list).Error
	return list, err
}

// ────── 检索 ──────

// Search 无关键字走单表过滤，有关键字走联表检索
func (r *participationRepo) Search(ctx context.Context, qb *querybuilder.Builder) ([]model.VaccinationParticipation, int64, error) {
	if qb.HasKeyword() {
		return r.searchWithJoin(ctx, "", qb)
	}
	return r.searchSimple(ctx, "", qb)
}

// SearchByGuardian 同 Search，但先限定为监护人自己的孩子再做任何匹配
func (r *participationRepo) SearchByGuardian(ctx context.Context, guardianID string, qb *querybuilder.Builder) ([]model.VaccinationParticipation, int64, error) {
	if guardianID == "" {
		return nil, 0, ErrNotGuardian
	}
	// 非 uuid 的身份不可能是任何学生的监护人
	if !isUUID(guardianID) {
		return []model.VaccinationParticipation{}, 0, nil
	}
	if qb.HasKeyword() {
		return r.searchWithJoin(ctx, guardianID, qb)
	}
	return r.searchSimple(ctx, guardianID, qb)
}

func (r *participationRepo) searchSimple(ctx context.Context, guardianID string, qb *querybuilder.Builder) ([]model.VaccinationParticipation, int64, error) {
	prefix := participationTable + "."
	db := r.db.WithContext(ctx).Model(&model.VaccinationParticipation{})
	if guardianID != "" {
		db = db.Scopes(guardianScope(guardianID))
	}
	db, err := participationFields.applyConditions(db, qb.BuildFilter(), prefix)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := PaginationOf(qb)
	var list []model.VaccinationParticipation
	err = db.Scopes(preloadSummaries).
		Order(participationFields.orderBy(qb.GetSort(), prefix)).
		Order(prefix + "participation_id").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// participationRow 联表检索的扁平结果，列名与 searchSelect 中的别名对应
type participationRow struct {
	ParticipationID   string
	CampaignID        string
	StudentID         string
	ParentConsent     string
	ParentConsentDate *time.Time
	ParentNote        string
	VaccinationStatus string
	VaccinationDate   *time.Time
	VaccinatedNurseID *string
	NurseNote         string
	CreatedBy         *string
	UpdatedBy         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	CampaignName            string
	CampaignVaccineName     string
	CampaignVaccineType     string
	CampaignScheduledDate   time.Time
	CampaignConsentDeadline time.Time
	CampaignStatus          string

	StudentFullName       string
	StudentCode           string
	StudentClassName      string
	StudentGuardianUserID *string

	CreatorName  *string
	CreatorEmail *string
	CreatorRole  *string
	NurseName    *string
	NurseEmail   *string
	NurseRole    *string
}

// 投影只包含安全字段，用户表不取 password_hash
var searchSelect = []string{
	"p.participation_id", "p.campaign_id", "p.student_id",
	"p.parent_consent", "p.parent_consent_date", "p.parent_note",
	"p.vaccination_status", "p.vaccination_date", "p.vaccinated_nurse_id", "p.nurse_note",
	"p.created_by", "p.updated_by", "p.created_at", "p.updated_at",
	"c.name AS campaign_name", "c.vaccine_name AS campaign_vaccine_name",
	"c.vaccine_type AS campaign_vaccine_type", "c.scheduled_date AS campaign_scheduled_date",
	"c.consent_deadline AS campaign_consent_deadline", "c.status AS campaign_status",
	"s.full_name AS student_full_name", "s.student_code AS student_code",
	"s.class_name AS student_class_name", "s.guardian_user_id AS student_guardian_user_id",
	"cu.name AS creator_name", "cu.email AS creator_email", "cu.role AS creator_role",
	"nu.name AS nurse_name", "nu.email AS nurse_email", "nu.role AS nurse_role",
}

// searchWithJoin 先联表活动、学生、创建人、护士，再依次应用监护人限定、关键字、过滤条件
func (r *participationRepo) searchWithJoin(ctx context.Context, guardianID string, qb *querybuilder.Builder) ([]model.VaccinationParticipation, int64, error) {
	db := r.db.WithContext(ctx).
		Table(participationTable + " AS p").
		Joins("JOIN vaccination_campaigns AS c ON c.campaign_id = p.campaign_id").
		Joins("JOIN students AS s ON s.student_id = p.student_id").
		Joins("LEFT JOIN users AS cu ON cu.user_id = p.created_by").
		Joins("LEFT JOIN users AS nu ON nu.user_id = p.vaccinated_nurse_id")

	if guardianID != "" {
		db = db.Where("s.guardian_user_id = ?", guardianID)
	}
	if clause, args := qb.BuildKeywordMatch(participationKeywordColumns...); clause != "" {
		db = db.Where(clause, args...)
	}
	db, err := participationFields.applyConditions(db, qb.BuildFilter(), "p.")
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := PaginationOf(qb)
	var rows []participationRow
	err = db.Select(searchSelect).
		Order(participationFields.orderBy(qb.GetSort(), "p.")).
		Order("p.participation_id").
		Offset(page.Offset()).Limit(page.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	list := make([]model.VaccinationParticipation, len(rows))
	for i := range rows {
		list[i] = rows[i].toModel()
	}
	return list, total, nil
}

func (row *participationRow) toModel() model.VaccinationParticipation {
	p := model.VaccinationParticipation{
		ParticipationID:   row.ParticipationID,
		CampaignID:        row.CampaignID,
		StudentID:         row.StudentID,
		ParentConsent:     row.ParentConsent,
		ParentConsentDate: row.ParentConsentDate,
		ParentNote:        row.ParentNote,
		VaccinationStatus: row.VaccinationStatus,
		VaccinationDate:   row.VaccinationDate,
		VaccinatedNurseID: row.VaccinatedNurseID,
		NurseNote:         row.NurseNote,
		BaseModel: model.BaseModel{
			CreatedAt: row.CreatedAt,
			CreatedBy: row.CreatedBy,
			UpdatedAt: row.UpdatedAt,
			UpdatedBy: row.UpdatedBy,
		},
		Campaign: &model.VaccinationCampaign{
			CampaignID:      row.CampaignID,
			Name:            row.CampaignName,
			VaccineName:     row.CampaignVaccineName,
			VaccineType:     row.CampaignVaccineType,
			ScheduledDate:   row.CampaignScheduledDate,
			ConsentDeadline: row.CampaignConsentDeadline,
			Status:          row.CampaignStatus,
		},
		Student: &model.Student{
			StudentID:      row.StudentID,
			FullName:       row.StudentFullName,
			StudentCode:    row.StudentCode,
			ClassName:      row.StudentClassName,
			GuardianUserID: row.StudentGuardianUserID,
		},
	}
	if row.CreatedBy != nil && row.CreatorName != nil {
		p.Creator = &model.User{UserID: *row.CreatedBy, Name: *row.CreatorName, Email: deref(row.CreatorEmail), Role: deref(row.CreatorRole)}
	}
	if row.VaccinatedNurseID != nil && row.NurseName != nil {
		p.VaccinatedNurse = &model.User{UserID: *row.VaccinatedNurseID, Name: *row.NurseName, Email: deref(row.NurseEmail), Role: deref(row.NurseRole)}
	}
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
