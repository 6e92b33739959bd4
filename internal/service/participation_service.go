package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"school-health/backend/internal/dto"
	"school-health/backend/internal/model"
	"school-health/backend/internal/repository"
	"school-health/backend/pkg/querybuilder"
)

// ────────────────────── EnrollStudents ──────────────────────

// EnrollStudents 管理员批量将学生加入活动，已加入的学生跳过
func (s *vaccinationService) EnrollStudents(ctx context.Context, auth model.AuthContext, campaignID string, req *dto.EnrollStudentsRequest) (*dto.EnrollResponse, error) {
	if !auth.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if len(req.StudentIDs) == 0 {
		return nil, ErrEmptyStudentIDs
	}

	campaign, err := s.repo.Campaign.GetByID(ctx, campaignID)
	if err != nil {
		return nil, s.wrap("查询接种活动失败", err, zap.String("campaign_id", campaignID))
	}
	if campaign.Status == model.CampaignStatusCompleted || campaign.Status == model.CampaignStatusCancelled {
		return nil, ErrCampaignClosed
	}

	unique := uniqueIDs(req.StudentIDs)
	students, err := s.repo.Student.ListByIDs(ctx, unique)
	if err != nil {
		return nil, s.wrap("查询学生失败", err, zap.Int("count", len(unique)))
	}
	if len(students) != len(unique) {
		return nil, ErrUnknownStudents
	}

	result, err := s.repo.Participation.BulkEnroll(ctx, campaignID, unique, auth.UserID)
	if err != nil {
		return nil, s.wrap("批量加入学生失败", err, zap.String("campaign_id", campaignID))
	}

	s.logger.Info("学生已加入接种活动",
		zap.String("campaign_id", campaignID),
		zap.Int("enrolled", len(result.Enrolled)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return &dto.EnrollResponse{
		CampaignID:    campaignID,
		Enrolled:      result.Enrolled,
		Skipped:       result.Skipped,
		EnrolledCount: len(result.Enrolled),
		SkippedCount:  len(result.Skipped),
	}, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
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

// ────────────────────── ParentConsent ──────────────────────

// ParentConsent 家长为自己孩子提交知情同意；重复提交覆盖之前的决定，变更写入审计日志
func (s *vaccinationService) ParentConsent(ctx context.Context, auth model.AuthContext, participationID string, req *dto.ParentConsentRequest) (*dto.ParticipationResponse, error) {
	if !auth.IsParent() {
		return nil, ErrParentOnly
	}

	result, err := s.repo.Participation.RecordParentConsent(ctx, participationID, auth.UserID, req.Consent, req.Note)
	if err != nil {
		return nil, s.wrap("提交知情同意失败", err,
			zap.String("participation_id", participationID), zap.String("parent_id", auth.UserID))
	}

	p := result.Participation
	entry := &model.ConsentAuditEntry{
		ID:              uuid.New().String(),
		ParticipationID: p.ParticipationID,
		CampaignID:      p.CampaignID,
		StudentID:       p.StudentID,
		ParentID:        auth.UserID,
		PreviousConsent: result.PreviousConsent,
		Consent:         p.ParentConsent,
		Note:            p.ParentNote,
		RecordedAt:      time.Now().UTC(),
	}
	// 审计写入失败不影响主流程
	if err := s.repo.ConsentAudit.Append(ctx, entry); err != nil {
		s.logger.Warn("写入知情同意审计日志失败",
			zap.String("participation_id", participationID), zap.Error(err))
	}

	return toParticipationResponse(p), nil
}

// ────────────────────── RecordVaccination ──────────────────────

// RecordVaccination 校医录入接种结果，每条记录只能录入一次
func (s *vaccinationService) RecordVaccination(ctx context.Context, auth model.AuthContext, participationID string, req *dto.RecordVaccinationRequest) (*dto.ParticipationResponse, error) {
	if !auth.IsNurse() {
		return nil, ErrNurseOnly
	}

	date, err := req.ParsedDate()
	if err != nil {
		return nil, ErrInvalidDate
	}

	p, err := s.repo.Participation.RecordVaccinationOutcome(ctx, participationID, auth.UserID, req.Status, date, req.Note)
	if err != nil {
		return nil, s.wrap("录入接种结果失败", err,
			zap.String("participation_id", participationID), zap.String("nurse_id", auth.UserID))
	}

	s.logger.Info("接种结果已录入",
		zap.String("participation_id", participationID),
		zap.String("status", p.VaccinationStatus),
	)
	return toParticipationResponse(p), nil
}

// ────────────────────── 列表与检索 ──────────────────────

// GetCampaignParticipations 活动下的参与记录；家长只能看到自己孩子的记录
func (s *vaccinationService) GetCampaignParticipations(ctx context.Context, auth model.AuthContext, campaignID string, qb *querybuilder.Builder) ([]dto.ParticipationResponse, int64, error) {
	if _, err := s.repo.Campaign.GetByID(ctx, campaignID); err != nil {
		return nil, 0, s.wrap("查询接种活动失败", err, zap.String("campaign_id", campaignID))
	}

	filter := participationFilterOf(qb)
	filter.CampaignID = campaignID
	page, sort := repository.PaginationOf(qb), qb.GetSort()

	var (
		list  []model.VaccinationParticipation
		total int64
		err   error
	)
	switch auth.RoleName {
	case model.RoleAdmin, model.RoleNurse:
		list, total, err = s.repo.Participation.ListByCampaign(ctx, campaignID, page, sort, filter)
	case model.RoleParent:
		list, total, err = s.repo.Participation.ListByGuardian(ctx, auth.UserID, page, sort, filter)
	default:
		return nil, 0, ErrUnknownRole
	}
	if err != nil {
		return nil, 0, s.wrap("列出活动参与记录失败", err, zap.String("campaign_id", campaignID))
	}
	return toParticipationResponses(list), total, nil
}

// SearchParticipations 通用检索；家长自动限定为自己孩子的记录
func (s *vaccinationService) SearchParticipations(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.ParticipationResponse, int64, error) {
	var (
		list  []model.VaccinationParticipation
		total int64
		err   error
	)
	switch auth.RoleName {
	case model.RoleAdmin, model.RoleNurse:
		list, total, err = s.repo.Participation.Search(ctx, qb)
	case model.RoleParent:
		list, total, err = s.repo.Participation.SearchByGuardian(ctx, auth.UserID, qb)
	default:
		return nil, 0, ErrUnknownRole
	}
	if err != nil {
		return nil, 0, s.wrap("检索参与记录失败", err, zap.String("caller", auth.UserID))
	}
	return toParticipationResponses(list), total, nil
}

// SearchParentParticipations 家长检索自己孩子的记录
func (s *vaccinationService) SearchParentParticipations(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.ParticipationResponse, int64, error) {
	if !auth.IsParent() {
		return nil, 0, ErrParentOnly
	}
	list, total, err := s.repo.Participation.SearchByGuardian(ctx, auth.UserID, qb)
	if err != nil {
		return nil, 0, s.wrap("检索家长参与记录失败", err, zap.String("parent_id", auth.UserID))
	}
	return toParticipationResponses(list), total, nil
}

// ListParentParticipations 家长的全部参与记录（跨活动）
func (s *vaccinationService) ListParentParticipations(ctx context.Context, auth model.AuthContext, qb *querybuilder.Builder) ([]dto.ParticipationResponse, int64, error) {
	if !auth.IsParent() {
		return nil, 0, ErrParentOnly
	}
	filter := participationFilterOf(qb)
	list, total, err := s.repo.Participation.ListByGuardian(ctx, auth.UserID, repository.PaginationOf(qb), qb.GetSort(), filter)
	if err != nil {
		return nil, 0, s.wrap("列出家长参与记录失败", err, zap.String("parent_id", auth.UserID))
	}
	return toParticipationResponses(list), total, nil
}

// GetParticipation 单条参与记录
func (s *vaccinationService) GetParticipation(ctx context.Context, auth model.AuthContext, participationID string) (*dto.ParticipationResponse, error) {
	p, err := s.loadVisible(ctx, auth, participationID)
	if err != nil {
		return nil, err
	}
	return toParticipationResponse(p), nil
}

// ListConsentHistory 知情同意变更历史，按时间正序
func (s *vaccinationService) ListConsentHistory(ctx context.Context, auth model.AuthContext, participationID string) ([]dto.ConsentAuditResponse, error) {
	if _, err := s.loadVisible(ctx, auth, participationID); err != nil {
		return nil, err
	}

	entries, err := s.repo.ConsentAudit.ListByParticipation(ctx, participationID)
	if err != nil {
		return nil, s.wrap("查询知情同意历史失败", err, zap.String("participation_id", participationID))
	}

	result := make([]dto.ConsentAuditResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, dto.ConsentAuditResponse{
			ID:              e.ID,
			ParentID:        e.ParentID,
			PreviousConsent: e.PreviousConsent,
			Consent:         e.Consent,
			Note:            e.Note,
			RecordedAt:      formatTime(e.RecordedAt),
		})
	}
	return result, nil
}

// loadVisible 读取记录并校验可见性：家长只能访问自己孩子的记录
func (s *vaccinationService) loadVisible(ctx context.Context, auth model.AuthContext, participationID string) (*model.VaccinationParticipation, error) {
	p, err := s.repo.Participation.GetByID(ctx, participationID)
	if err != nil {
		return nil, s.wrap("查询参与记录失败", err, zap.String("participation_id", participationID))
	}
	switch auth.RoleName {
	case model.RoleAdmin, model.RoleNurse:
	case model.RoleParent:
		if p.Student == nil || !p.Student.IsGuardedBy(auth.UserID) {
			return nil, ErrParticipationForbidden
		}
	default:
		return nil, ErrUnknownRole
	}
	return p, nil
}

func participationFilterOf(qb *querybuilder.Builder) repository.ParticipationFilter {
	return repository.ParticipationFilter{
		CampaignID:        eqFilter(qb, "campaignId"),
		ParentConsent:     eqFilter(qb, "parentConsent"),
		VaccinationStatus: eqFilter(qb, "vaccinationStatus"),
	}
}
