package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"school-health/backend/internal/model"
	"school-health/backend/internal/repository"
	"school-health/backend/pkg/querybuilder"
)

var errMockDB = errors.New("mock: 数据库不可用")

// ── Mock CampaignRepository ──

type mockCampaignRepo struct {
	campaigns map[string]*model.VaccinationCampaign
	seq       int
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{campaigns: make(map[string]*model.VaccinationCampaign)}
}

func (m *mockCampaignRepo) Create(_ context.Context, c *model.VaccinationCampaign, creatorID string) error {
	m.seq++
	if c.CampaignID == "" {
		c.CampaignID = fmt.Sprintf("camp-%d", m.seq)
	}
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	c.CreatedBy = model.StringPtr(creatorID)
	c.Creator = &model.User{UserID: creatorID, Role: model.RoleAdmin}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.campaigns[c.CampaignID] = c
	return nil
}

func (m *mockCampaignRepo) GetByID(_ context.Context, id string) (*model.VaccinationCampaign, error) {
	if c, ok := m.campaigns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, repository.ErrCampaignNotFound
}

func (m *mockCampaignRepo) Update(_ context.Context, id string, patch repository.CampaignPatch, updaterID string) (*model.VaccinationCampaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.VaccineName != nil {
		c.VaccineName = *patch.VaccineName
	}
	if patch.VaccineType != nil {
		c.VaccineType = *patch.VaccineType
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.ScheduledDate != nil {
		c.ScheduledDate = *patch.ScheduledDate
	}
	if patch.ConsentDeadline != nil {
		c.ConsentDeadline = *patch.ConsentDeadline
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	c.UpdatedBy = model.StringPtr(updaterID)
	cp := *c
	return &cp, nil
}

func (m *mockCampaignRepo) ListAll(_ context.Context, filter repository.CampaignFilter, _ repository.Pagination, _ querybuilder.Sort) ([]model.VaccinationCampaign, int64, error) {
	var result []model.VaccinationCampaign
	for _, c := range m.campaigns {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CampaignID < result[j].CampaignID })
	return result, int64(len(result)), nil
}

func (m *mockCampaignRepo) Search(ctx context.Context, _ *querybuilder.Builder) ([]model.VaccinationCampaign, int64, error) {
	return m.ListAll(ctx, repository.CampaignFilter{}, repository.Pagination{}, querybuilder.Sort{})
}

// ── Mock StudentRepository ──

type mockStudentRepo struct {
	students map[string]*model.Student
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: make(map[string]*model.Student)}
}

func (m *mockStudentRepo) add(id, name, guardianID string) {
	m.students[id] = &model.Student{
		StudentID:      id,
		FullName:       name,
		StudentCode:    "code-" + id,
		ClassName:      "6A",
		GuardianUserID: model.StringPtr(guardianID),
	}
}

func (m *mockStudentRepo) ListByIDs(_ context.Context, ids []string) ([]model.Student, error) {
	var result []model.Student
	for _, id := range ids {
		if s, ok := m.students[id]; ok {
			result = append(result, *s)
		}
	}
	return result, nil
}

// ── Mock ParticipationRepository ──

type mockParticipationRepo struct {
	items    map[string]*model.VaccinationParticipation
	students *mockStudentRepo
	seq      int

	// 记录最近一次调用的检索入口
	lastCall     string
	lastGuardian string
	failList     bool
}

func newMockParticipationRepo(students *mockStudentRepo) *mockParticipationRepo {
	return &mockParticipationRepo{items: make(map[string]*model.VaccinationParticipation), students: students}
}

func (m *mockParticipationRepo) add(campaignID, studentID string) *model.VaccinationParticipation {
	m.seq++
	p := &model.VaccinationParticipation{
		ParticipationID:   fmt.Sprintf("part-%d", m.seq),
		CampaignID:        campaignID,
		StudentID:         studentID,
		ParentConsent:     model.ConsentPending,
		VaccinationStatus: model.VaccinationScheduled,
		Student:           m.students.students[studentID],
	}
	m.items[p.ParticipationID] = p
	return p
}

func (m *mockParticipationRepo) BulkEnroll(_ context.Context, campaignID string, studentIDs []string, adminID string) (*repository.EnrollResult, error) {
	if len(studentIDs) == 0 {
		return nil, repository.ErrEmptyStudentIDs
	}
	result := &repository.EnrollResult{Enrolled: []string{}, Skipped: []string{}}
	for _, sid := range studentIDs {
		if m.find(campaignID, sid) != nil {
			result.Skipped = append(result.Skipped, sid)
			continue
		}
		p := m.add(campaignID, sid)
		p.CreatedBy = model.StringPtr(adminID)
		result.Enrolled = append(result.Enrolled, sid)
	}
	return result, nil
}

func (m *mockParticipationRepo) find(campaignID, studentID string) *model.VaccinationParticipation {
	for _, p := range m.items {
		if p.CampaignID == campaignID && p.StudentID == studentID {
			return p
		}
	}
	return nil
}

func (m *mockParticipationRepo) GetByID(_ context.Context, id string) (*model.VaccinationParticipation, error) {
	if p, ok := m.items[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, repository.ErrParticipationNotFound
}

func (m *mockParticipationRepo) RecordParentConsent(_ context.Context, id, parentID, consent, note string) (*repository.ConsentResult, error) {
	if !model.IsConsentDecision(consent) {
		return nil, repository.ErrInvalidConsent
	}
	if consent == model.ConsentDenied && note == "" {
		return nil, repository.ErrDenialReasonRequired
	}
	p, ok := m.items[id]
	if !ok {
		return nil, repository.ErrParticipationNotFound
	}
	if p.Student == nil || !p.Student.IsGuardedBy(parentID) {
		return nil, repository.ErrNotGuardian
	}
	prev := p.ParentConsent
	now := time.Now()
	p.ParentConsent = consent
	p.ParentConsentDate = &now
	if note != "" {
		p.ParentNote = note
	}
	if consent == model.ConsentDenied {
		p.VaccinationStatus = model.VaccinationCancelled
	}
	cp := *p
	return &repository.ConsentResult{Participation: &cp, PreviousConsent: prev}, nil
}

func (m *mockParticipationRepo) RecordVaccinationOutcome(_ context.Context, id, nurseID, status string, date *time.Time, note string) (*model.VaccinationParticipation, error) {
	if !model.IsVaccinationOutcome(status) {
		return nil, repository.ErrInvalidOutcome
	}
	if status == model.VaccinationCompleted && date == nil {
		return nil, repository.ErrVaccinationDateRequired
	}
	p, ok := m.items[id]
	if !ok {
		return nil, repository.ErrParticipationNotFound
	}
	if p.VaccinationStatus != model.VaccinationScheduled {
		return nil, repository.ErrOutcomeAlreadyRecorded
	}
	p.VaccinationStatus = status
	p.NurseNote = note
	if status == model.VaccinationCompleted {
		p.VaccinationDate = date
		p.VaccinatedNurseID = model.StringPtr(nurseID)
		p.VaccinatedNurse = &model.User{UserID: nurseID, Name: "护士", Role: model.RoleNurse}
	}
	cp := *p
	return &cp, nil
}

func (m *mockParticipationRepo) filtered(guardianID string, filter repository.ParticipationFilter) ([]model.VaccinationParticipation, int64, error) {
	if m.failList {
		return nil, 0, errMockDB
	}
	var result []model.VaccinationParticipation
	for _, p := range m.items {
		if guardianID != "" && (p.Student == nil || !p.Student.IsGuardedBy(guardianID)) {
			continue
		}
		if filter.CampaignID != "" && p.CampaignID != filter.CampaignID {
			continue
		}
		if filter.ParentConsent != "" && p.ParentConsent != filter.ParentConsent {
			continue
		}
		if filter.VaccinationStatus != "" && p.VaccinationStatus != filter.VaccinationStatus {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ParticipationID < result[j].ParticipationID })
	return result, int64(len(result)), nil
}

func (m *mockParticipationRepo) ListByCampaign(_ context.Context, campaignID string, _ repository.Pagination, _ querybuilder.Sort, filter repository.ParticipationFilter) ([]model.VaccinationParticipation, int64, error) {
	m.lastCall = "ListByCampaign"
	filter.CampaignID = campaignID
	return m.filtered("", filter)
}

func (m *mockParticipationRepo) ListByGuardian(_ context.Context, guardianID string, _ repository.Pagination, _ querybuilder.Sort, filter repository.ParticipationFilter) ([]model.VaccinationParticipation, int64, error) {
	m.lastCall, m.lastGuardian = "ListByGuardian", guardianID
	return m.filtered(guardianID, filter)
}

func (m *mockParticipationRepo) ListAllByCampaign(_ context.Context, campaignID string) ([]model.VaccinationParticipation, error) {
	list, _, err := m.filtered("", repository.ParticipationFilter{CampaignID: campaignID})
	return list, err
}

func (m *mockParticipationRepo) Search(_ context.Context, _ *querybuilder.Builder) ([]model.VaccinationParticipation, int64, error) {
	m.lastCall = "Search"
	return m.filtered("", repository.ParticipationFilter{})
}

func (m *mockParticipationRepo) SearchByGuardian(_ context.Context, guardianID string, _ *querybuilder.Builder) ([]model.VaccinationParticipation, int64, error) {
	m.lastCall, m.lastGuardian = "SearchByGuardian", guardianID
	if guardianID == "" {
		return nil, 0, repository.ErrNotGuardian
	}
	return m.filtered(guardianID, repository.ParticipationFilter{})
}

// ── Mock ConsentAuditRepository ──

type mockConsentAuditRepo struct {
	entries []model.ConsentAuditEntry
	failErr error
}

func (m *mockConsentAuditRepo) Append(_ context.Context, entry *model.ConsentAuditEntry) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockConsentAuditRepo) ListByParticipation(_ context.Context, participationID string) ([]model.ConsentAuditEntry, error) {
	var result []model.ConsentAuditEntry
	for _, e := range m.entries {
		if e.ParticipationID == participationID {
			result = append(result, e)
		}
	}
	return result, nil
}

// ── 测试环境 ──

const (
	adminID   = "admin-1"
	nurseID   = "nurse-1"
	parentAID = "parent-a"
	parentBID = "parent-b"
)

var (
	adminAuth   = model.AuthContext{UserID: adminID, RoleName: model.RoleAdmin}
	nurseAuth   = model.AuthContext{UserID: nurseID, RoleName: model.RoleNurse}
	parentAAuth = model.AuthContext{UserID: parentAID, RoleName: model.RoleParent}
	parentBAuth = model.AuthContext{UserID: parentBID, RoleName: model.RoleParent}
)

type testEnv struct {
	repo           *repository.Repository
	campaigns      *mockCampaignRepo
	students       *mockStudentRepo
	participations *mockParticipationRepo
	audit          *mockConsentAuditRepo
	campaign       *model.VaccinationCampaign
}

// newTestEnv 一个 active 活动；S1、S3 属于家长 A，S2 属于家长 B
func newTestEnv() *testEnv {
	students := newMockStudentRepo()
	students.add("s1", "张小明", parentAID)
	students.add("s2", "李小红", parentBID)
	students.add("s3", "张小华", parentAID)

	env := &testEnv{
		campaigns:      newMockCampaignRepo(),
		students:       students,
		participations: newMockParticipationRepo(students),
		audit:          &mockConsentAuditRepo{},
	}
	env.repo = &repository.Repository{
		Campaign:      env.campaigns,
		Participation: env.participations,
		Student:       env.students,
		ConsentAudit:  env.audit,
	}

	env.campaign = &model.VaccinationCampaign{
		CampaignID:      "camp-hpv",
		Name:            "2024 春季 HPV 接种",
		VaccineName:     "HPV",
		VaccineType:     "灭活",
		ScheduledDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ConsentDeadline: time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC),
		Status:          model.CampaignStatusActive,
	}
	_ = env.campaigns.Create(context.Background(), env.campaign, adminID)
	return env
}

func (e *testEnv) vaccinationService() VaccinationService {
	return NewVaccinationService(e.repo, zap.NewNop())
}

func (e *testEnv) exportService() ExportService {
	return NewExportService(e.repo, "http://localhost:8080/", zap.NewNop())
}
