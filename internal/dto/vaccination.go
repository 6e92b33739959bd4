package dto

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"school-health/backend/internal/model"
)

// ── 接种模块 DTO ──

const dateLayout = "2006-01-02"

// ParseDateTime 解析 RFC3339 或 2006-01-02，后者按 UTC 零点处理
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(dateLayout, s)
}

func isDateTime(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	}
	if s == "" {
		return nil
	}
	if _, err := ParseDateTime(s); err != nil {
		return errors.New("日期格式应为 YYYY-MM-DD 或 RFC3339")
	}
	return nil
}

func notBlank(value interface{}) error {
	if s, _ := value.(string); strings.TrimSpace(s) == "" {
		return errors.New("不能为空")
	}
	return nil
}

// CreateCampaignRequest 创建接种活动请求
type CreateCampaignRequest struct {
	Name            string `json:"name"            binding:"required,max=200"`
	VaccineName     string `json:"vaccineName"     binding:"required,max=200"`
	VaccineType     string `json:"vaccineType"     binding:"omitempty,max=100"`
	Description     string `json:"description"     binding:"omitempty,max=2000"`
	ScheduledDate   string `json:"scheduledDate"   binding:"required"` // "2024-03-01" 或 RFC3339
	ConsentDeadline string `json:"consentDeadline" binding:"required"`
	Status          string `json:"status"          binding:"omitempty,oneof=draft active completed cancelled"`
}

// Validate 跨字段校验：截止日期不得晚于接种日期
func (r *CreateCampaignRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.By(notBlank)),
		validation.Field(&r.VaccineName, validation.Required, validation.By(notBlank)),
		validation.Field(&r.ScheduledDate, validation.Required, validation.By(isDateTime)),
		validation.Field(&r.ConsentDeadline, validation.Required, validation.By(isDateTime),
			validation.By(deadlineNotAfter(&r.ScheduledDate))),
	)
}

func deadlineNotAfter(scheduled *string) validation.RuleFunc {
	return func(value interface{}) error {
		var deadline string
		switch v := value.(type) {
		case string:
			deadline = v
		case *string:
			if v == nil {
				return nil
			}
			deadline = *v
		}
		if deadline == "" || scheduled == nil || *scheduled == "" {
			return nil
		}
		d, err1 := ParseDateTime(deadline)
		s, err2 := ParseDateTime(*scheduled)
		if err1 != nil || err2 != nil {
			return nil // 格式错误由 isDateTime 报告
		}
		if d.After(s) {
			return errors.New("知情同意截止日期不能晚于接种日期")
		}
		return nil
	}
}

// UpdateCampaignRequest 部分更新接种活动
type UpdateCampaignRequest struct {
	Name            *string `json:"name"            binding:"omitempty,max=200"`
	VaccineName     *string `json:"vaccineName"     binding:"omitempty,max=200"`
	VaccineType     *string `json:"vaccineType"     binding:"omitempty,max=100"`
	Description     *string `json:"description"     binding:"omitempty,max=2000"`
	ScheduledDate   *string `json:"scheduledDate"`
	ConsentDeadline *string `json:"consentDeadline"`
	Status          *string `json:"status"          binding:"omitempty,oneof=draft active completed cancelled"`
}

// Validate 仅校验提供了的字段；两个日期同时提供时校验先后顺序，
// 只提供其一时由服务层结合现有记录校验
func (r *UpdateCampaignRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.By(optionalNotBlank)),
		validation.Field(&r.VaccineName, validation.NilOrNotEmpty, validation.By(optionalNotBlank)),
		validation.Field(&r.ScheduledDate, validation.NilOrNotEmpty, validation.By(isDateTime)),
		validation.Field(&r.ConsentDeadline, validation.NilOrNotEmpty, validation.By(isDateTime),
			validation.By(deadlineNotAfter(r.ScheduledDate))),
	)
}

func optionalNotBlank(value interface{}) error {
	if p, ok := value.(*string); ok && p != nil {
		return notBlank(*p)
	}
	return nil
}

// EnrollStudentsRequest 批量加入学生
type EnrollStudentsRequest struct {
	StudentIDs []string `json:"studentIds" binding:"required,min=1,max=1000,dive,uuid"`
}

// ParentConsentRequest 家长提交知情同意
type ParentConsentRequest struct {
	Consent string `json:"consent" binding:"required,oneof=approved denied"`
	Note    string `json:"note"    binding:"omitempty,max=1000"`
}

// Validate 拒绝时必须填写原因
func (r *ParentConsentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Consent, validation.Required, validation.In(model.ConsentApproved, model.ConsentDenied)),
		validation.Field(&r.Note, validation.By(func(value interface{}) error {
			if r.Consent == model.ConsentDenied {
				if err := notBlank(value); err != nil {
					return errors.New("拒绝接种时必须填写原因")
				}
			}
			return nil
		})),
	)
}

// RecordVaccinationRequest 护士录入接种结果
type RecordVaccinationRequest struct {
	Status          string  `json:"status"          binding:"required,oneof=completed missed cancelled"`
	VaccinationDate *string `json:"vaccinationDate"`
	Note            string  `json:"note"            binding:"omitempty,max=1000"`
}

// Validate completed 必须带接种日期；备注始终可选
func (r *RecordVaccinationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Status, validation.Required,
			validation.In(model.VaccinationCompleted, model.VaccinationMissed, model.VaccinationCancelled)),
		validation.Field(&r.VaccinationDate, validation.By(isDateTime), validation.By(func(value interface{}) error {
			if r.Status == model.VaccinationCompleted && (r.VaccinationDate == nil || strings.TrimSpace(*r.VaccinationDate) == "") {
				return errors.New("接种完成时必须提供接种日期")
			}
			return nil
		})),
	)
}

// ParsedDate 解析后的接种日期，未提供时为 nil
func (r *RecordVaccinationRequest) ParsedDate() (*time.Time, error) {
	if r.VaccinationDate == nil || strings.TrimSpace(*r.VaccinationDate) == "" {
		return nil, nil
	}
	t, err := ParseDateTime(*r.VaccinationDate)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ── 响应 ──

// UserSummary 用户摘要（脱敏）
type UserSummary struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// StudentSummary 学生摘要
type StudentSummary struct {
	StudentID      string `json:"studentId"`
	FullName       string `json:"fullName"`
	StudentCode    string `json:"studentCode"`
	ClassName      string `json:"className"`
	GuardianUserID string `json:"guardianUserId,omitempty"`
}

// CampaignSummary 参与记录中嵌入的活动摘要
type CampaignSummary struct {
	CampaignID      string `json:"campaignId"`
	Name            string `json:"name"`
	VaccineName     string `json:"vaccineName"`
	VaccineType     string `json:"vaccineType"`
	ScheduledDate   string `json:"scheduledDate"`
	ConsentDeadline string `json:"consentDeadline"`
	Status          string `json:"status"`
}

// CampaignResponse 接种活动响应
type CampaignResponse struct {
	CampaignID      string       `json:"campaignId"`
	Name            string       `json:"name"`
	VaccineName     string       `json:"vaccineName"`
	VaccineType     string       `json:"vaccineType"`
	Description     string       `json:"description"`
	ScheduledDate   string       `json:"scheduledDate"`
	ConsentDeadline string       `json:"consentDeadline"`
	Status          string       `json:"status"`
	Creator         *UserSummary `json:"creator,omitempty"`
	CreatedAt       string       `json:"createdAt"`
	UpdatedAt       string       `json:"updatedAt"`
}

// ParticipationResponse 接种参与记录响应
type ParticipationResponse struct {
	ParticipationID   string           `json:"participationId"`
	CampaignID        string           `json:"campaignId"`
	StudentID         string           `json:"studentId"`
	ParentConsent     string           `json:"parentConsent"`
	ParentConsentDate *string          `json:"parentConsentDate,omitempty"`
	ParentNote        string           `json:"parentNote,omitempty"`
	VaccinationStatus string           `json:"vaccinationStatus"`
	VaccinationDate   *string          `json:"vaccinationDate,omitempty"`
	NurseNote         string           `json:"nurseNote,omitempty"`
	Campaign          *CampaignSummary `json:"campaign,omitempty"`
	Student           *StudentSummary  `json:"student,omitempty"`
	Creator           *UserSummary     `json:"createdBy,omitempty"`
	VaccinatedNurse   *UserSummary     `json:"vaccinatedNurse,omitempty"`
	CreatedAt         string           `json:"createdAt"`
	UpdatedAt         string           `json:"updatedAt"`
}

// EnrollResponse 批量加入结果
type EnrollResponse struct {
	CampaignID    string   `json:"campaignId"`
	Enrolled      []string `json:"enrolled"`
	Skipped       []string `json:"skipped"`
	EnrolledCount int      `json:"enrolledCount"`
	SkippedCount  int      `json:"skippedCount"`
}

// ConsentAuditResponse 知情同意历史条目
type ConsentAuditResponse struct {
	ID              string `json:"id"`
	ParentID        string `json:"parentId"`
	PreviousConsent string `json:"previousConsent"`
	Consent         string `json:"consent"`
	Note            string `json:"note,omitempty"`
	RecordedAt      string `json:"recordedAt"`
}

// ExportFile 导出文件
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}
