package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"school-health/backend/internal/dto"
	"school-health/backend/internal/model"
	"school-health/backend/internal/repository"
	apperrors "school-health/backend/pkg/errors"
	"school-health/backend/pkg/querybuilder"
)

// ── 接种模块业务错误 ──

// 持久层错误原样对外
var (
	ErrCampaignNotFound        = repository.ErrCampaignNotFound
	ErrParticipationNotFound   = repository.ErrParticipationNotFound
	ErrEmptyStudentIDs         = repository.ErrEmptyStudentIDs
	ErrDenialReasonRequired    = repository.ErrDenialReasonRequired
	ErrVaccinationDateRequired = repository.ErrVaccinationDateRequired
	ErrOutcomeAlreadyRecorded  = repository.ErrOutcomeAlreadyRecorded
	ErrNotGuardian             = repository.ErrNotGuardian
)

var (
	ErrAdminOnly   = apperrors.Authorization("仅管理员可执行此操作")
	ErrNurseOnly   = apperrors.Authorization("仅校医可录入接种结果")
	ErrParentOnly  = apperrors.Authorization("仅家长可执行此操作")
	ErrStaffOnly   = apperrors.Authorization("仅管理员或校医可执行此操作")
	ErrUnknownRole = apperrors.Authorization("无法识别的用户角色")

	ErrParticipationForbidden = apperrors.Authorization("无权查看该接种记录")
	ErrCampaignDeadline       = apperrors.Validation("知情同意截止日期不能晚于接种日期")
	ErrCampaignClosed         = apperrors.Validation("活动已结束或已取消，不能再加入学生")
	ErrUnknownStudents        = apperrors.Validation("学生列表中包含不存在的学生")
	ErrInvalidDate            = apperrors.Validation("日期格式应为 YYYY-MM-DD 或 RFC3339")
	ErrEmptyUpdate            = apperrors.Validation("没有需要更新的字段")
)

// VaccinationService 接种活动与参与记录业务接口
// 路由层已按角色拦截，这里再次校验调用方角色
type VaccinationService interface {
	CreateCampaign(ctx context.Context, auth model.AuthContext, req *dto.CreateCampaignRequest) (*dto.CampaignResponse, error)
	UpdateCampaign(ctx context.Context, auth model.AuthContext, campaignID string, req *dto.UpdateCampaignRequest) (*dto.CampaignResponse, error)
	ListCampaigns(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.CampaignResponse, int64, error)
	GetCampaign(ctx context.Context, auth model.AuthContext, campaignID string) (*dto.CampaignResponse, error)
	SearchCampaigns(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.CampaignResponse, int64, error)

	EnrollStudents(ctx context.Context, auth model.AuthContext, campaignID string, req *dto.EnrollStudentsRequest) (*dto.EnrollResponse, error)
	ParentConsent(ctx context.Context, auth model.AuthContext, participationID string, req *dto.ParentConsentRequest) (*dto.ParticipationResponse, error)
	RecordVaccination(ctx context.Context, auth model.AuthContext, participationID string, req *dto.RecordVaccinationRequest) (*dto.ParticipationResponse, error)

	GetCampaignParticipations(ctx context.Context, auth model.AuthContext, campaignID string, qb *querybuilder.Builder) ([]dto.ParticipationResponse, int64, error)
	SearchParticipations(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.ParticipationResponse, int64, error)
	SearchParentParticipations(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.ParticipationResponse, int64, error)
	ListParentParticipations(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.ParticipationResponse, int64, error)
	GetParticipation(ctx context.Context, auth model.AuthContext, participationID string) (*dto.ParticipationResponse, error)
	ListConsentHistory(ctx context.Context, auth model.AuthContext, participationID string) ([]dto.ConsentAuditResponse, error)
}

type vaccinationService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewVaccinationService 创建 VaccinationService 实例
func NewVaccinationService(repo *repository.Repository, logger *zap.Logger) VaccinationService {
	return &vaccinationService{repo: repo, logger: logger}
}

// wrap 业务错误原样返回；其他错误记录日志后包装为 Application
func (s *vaccinationService) wrap(msg string, err error, fields ...zap.Field) error {
	return wrapInternal(s.logger, msg, err, fields...)
}

func wrapInternal(logger *zap.Logger, msg string, err error, fields ...zap.Field) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Kind != apperrors.KindApplication {
		return err
	}
	logger.Error(msg, append(fields, zap.Error(err))...)
	return apperrors.Application("服务器内部错误", err)
}

// ────────────────────── CreateCampaign ──────────────────────

func (s *vaccinationService) CreateCampaign(ctx context.Context, auth model.AuthContext, req *dto.CreateCampaignRequest) (*dto.CampaignResponse, error) {
	if !auth.IsAdmin() {
		return nil, ErrAdminOnly
	}

	scheduled, err := dto.ParseDateTime(req.ScheduledDate)
	if err != nil {
		return nil, ErrInvalidDate
	}
	deadline, err := dto.ParseDateTime(req.ConsentDeadline)
	if err != nil {
		return nil, ErrInvalidDate
	}
	if deadline.After(scheduled) {
		return nil, ErrCampaignDeadline
	}

	campaign := &model.VaccinationCampaign{
		Name:            req.Name,
		VaccineName:     req.VaccineName,
		VaccineType:     req.VaccineType,
		Description:     req.Description,
		ScheduledDate:   scheduled,
		ConsentDeadline: deadline,
		Status:          req.Status,
	}
	if err := s.repo.Campaign.Create(ctx, campaign, auth.UserID); err != nil {
		return nil, s.wrap("创建接种活动失败", err, zap.String("caller", auth.UserID))
	}

	created, err := s.repo.Campaign.GetByID(ctx, campaign.CampaignID)
	if err != nil {
		return nil, s.wrap("查询新建活动失败", err, zap.String("campaign_id", campaign.CampaignID))
	}
	return toCampaignResponse(created), nil
}

// ────────────────────── UpdateCampaign ──────────────────────

func (s *vaccinationService) UpdateCampaign(ctx context.Context, auth model.AuthContext, campaignID string, req *dto.UpdateCampaignRequest) (*dto.CampaignResponse, error) {
	if !auth.IsAdmin() {
		return nil, ErrAdminOnly
	}

	patch := repository.CampaignPatch{
		Name:        req.Name,
		VaccineName: req.VaccineName,
		VaccineType: req.VaccineType,
		Description: req.Description,
		Status:      req.Status,
	}
	if req.ScheduledDate != nil {
		t, err := dto.ParseDateTime(*req.ScheduledDate)
		if err != nil {
			return nil, ErrInvalidDate
		}
		patch.ScheduledDate = &t
	}
	if req.ConsentDeadline != nil {
		t, err := dto.ParseDateTime(*req.ConsentDeadline)
		if err != nil {
			return nil, ErrInvalidDate
		}
		patch.ConsentDeadline = &t
	}
	if patch.IsEmpty() {
		return nil, ErrEmptyUpdate
	}

	// 只改其中一个日期时，与现有记录合并后校验
	if patch.ScheduledDate != nil || patch.ConsentDeadline != nil {
		current, err := s.repo.Campaign.GetByID(ctx, campaignID)
		if err != nil {
			return nil, s.wrap("查询接种活动失败", err, zap.String("campaign_id", campaignID))
		}
		scheduled, deadline := current.ScheduledDate, current.ConsentDeadline
		if patch.ScheduledDate != nil {
			scheduled = *patch.ScheduledDate
		}
		if patch.ConsentDeadline != nil {
			deadline = *patch.ConsentDeadline
		}
		if deadline.After(scheduled) {
			return nil, ErrCampaignDeadline
		}
	}

	updated, err := s.repo.Campaign.Update(ctx, campaignID, patch, auth.UserID)
	if err != nil {
		return nil, s.wrap("更新接种活动失败", err, zap.String("campaign_id", campaignID))
	}

	s.logger.Info("接种活动已更新", zap.String("campaign_id", campaignID), zap.String("caller", auth.UserID))
	return toCampaignResponse(updated), nil
}

// ────────────────────── ListCampaigns / GetCampaign ──────────────────────

// ListCampaigns 所有已认证角色看到同样的活动列表
func (s *vaccinationService) ListCampaigns(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.CampaignResponse, int64, error) {
	filter := repository.CampaignFilter{Status: eqFilter(qb, "status")}
	campaigns, total, err := s.repo.Campaign.ListAll(ctx, filter, repository.PaginationOf(qb), qb.GetSort())
	if err != nil {
		return nil, 0, s.wrap("列出接种活动失败", err, zap.String("caller", auth.UserID))
	}
	return toCampaignResponses(campaigns), total, nil
}

func (s *vaccinationService) GetCampaign(ctx context.Context, auth model.AuthContext, campaignID string) (*dto.CampaignResponse, error) {
	campaign, err := s.repo.Campaign.GetByID(ctx, campaignID)
	if err != nil {
		return nil, s.wrap("查询接种活动失败", err, zap.String("campaign_id", campaignID), zap.String("caller", auth.UserID))
	}
	return toCampaignResponse(campaign), nil
}

func (s *vaccinationService) SearchCampaigns(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.CampaignResponse, int64, error) {
	campaigns, total, err := s.repo.Campaign.Search(ctx, qb)
	if err != nil {
		return nil, 0, s.wrap("检索接种活动失败", err, zap.String("caller", auth.UserID), zap.String("keyword", qb.GetKeyword()))
	}
	return toCampaignResponses(campaigns), total, nil
}

// ── 辅助函数 ──

// eqFilter 取某字段的等值过滤值
func eqFilter(qb *querybuilder.Builder, field string) string {
	for _, c := range qb.BuildFilter() {
		if c.Field == field && c.Op == querybuilder.OpEq {
			return c.Value
		}
	}
	return ""
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toUserSummary(u *model.User) *dto.UserSummary {
	if u == nil || u.UserID == "" {
		return nil
	}
	return &dto.UserSummary{UserID: u.UserID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func toCampaignResponse(c *model.VaccinationCampaign) *dto.CampaignResponse {
	return &dto.CampaignResponse{
		CampaignID:      c.CampaignID,
		Name:            c.Name,
		VaccineName:     c.VaccineName,
		VaccineType:     c.VaccineType,
		Description:     c.Description,
		ScheduledDate:   formatTime(c.ScheduledDate),
		ConsentDeadline: formatTime(c.ConsentDeadline),
		Status:          c.Status,
		Creator:         toUserSummary(c.Creator),
		CreatedAt:       formatTime(c.CreatedAt),
		UpdatedAt:       formatTime(c.UpdatedAt),
	}
}

func toCampaignResponses(campaigns []model.VaccinationCampaign) []dto.CampaignResponse {
	result := make([]dto.CampaignResponse, 0, len(campaigns))
	for i := range campaigns {
		result = append(result, *toCampaignResponse(&campaigns[i]))
	}
	return result
}

func toParticipationResponse(p *model.VaccinationParticipation) *dto.ParticipationResponse {
	resp := &dto.ParticipationResponse{
		ParticipationID:   p.ParticipationID,
		CampaignID:        p.CampaignID,
		StudentID:         p.StudentID,
		ParentConsent:     p.ParentConsent,
		ParentConsentDate: formatTimePtr(p.ParentConsentDate),
		ParentNote:        p.ParentNote,
		VaccinationStatus: p.VaccinationStatus,
		VaccinationDate:   formatTimePtr(p.VaccinationDate),
		NurseNote:         p.NurseNote,
		Creator:           toUserSummary(p.Creator),
		VaccinatedNurse:   toUserSummary(p.VaccinatedNurse),
		CreatedAt:         formatTime(p.CreatedAt),
		UpdatedAt:         formatTime(p.UpdatedAt),
	}
	if c := p.Campaign; c != nil {
		resp.Campaign = &dto.CampaignSummary{
			CampaignID:      c.CampaignID,
			Name:            c.Name,
			VaccineName:     c.VaccineName,
			VaccineType:     c.VaccineType,
			ScheduledDate:   formatTime(c.ScheduledDate),
			ConsentDeadline: formatTime(c.ConsentDeadline),
			Status:          c.Status,
		}
	}
	if st := p.Student; st != nil {
		resp.Student = &dto.StudentSummary{
			StudentID:   st.StudentID,
			FullName:    st.FullName,
			StudentCode: st.StudentCode,
			ClassName:   st.ClassName,
		}
		if st.GuardianUserID != nil {
			resp.Student.GuardianUserID = *st.GuardianUserID
		}
	}
	return resp
}

func toParticipationResponses(list []model.VaccinationParticipation) []dto.ParticipationResponse {
	result := make([]dto.ParticipationResponse, 0, len(list))
	for i := range list {
		result = append(result, *toParticipationResponse(&list[i]))
	}
	return result
}
