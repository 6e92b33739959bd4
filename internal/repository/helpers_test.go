package repository_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"school-health/backend/internal/model"
	"school-health/backend/internal/repository"
	"school-health/backend/pkg/querybuilder"
)

// fixture 一个活动、三名学生（S1、S3 属于 parentA，S2 属于 parentB）
type fixture struct {
	db       *gorm.DB
	repo     *repository.Repository
	admin    model.User
	nurse    model.User
	parentA  model.User
	parentB  model.User
	students []model.Student
	campaign model.VaccinationCampaign
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Student{},
		&model.VaccinationCampaign{},
		&model.VaccinationParticipation{},
	))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{db: db, repo: repository.NewRepository(db, nil)}

	f.admin = model.User{Name: "管理员", Email: "admin@school.edu", PasswordHash: "hash-admin", Role: model.RoleAdmin}
	f.nurse = model.User{Name: "Nurse Lan", Email: "lan.nurse@school.edu", PasswordHash: "hash-nurse", Role: model.RoleNurse}
	f.parentA = model.User{Name: "Parent A", Email: "a@family.vn", PasswordHash: "hash-a", Role: model.RoleParent}
	f.parentB = model.User{Name: "Parent B", Email: "b@family.vn", PasswordHash: "hash-b", Role: model.RoleParent}
	for _, u := range []*model.User{&f.admin, &f.nurse, &f.parentA, &f.parentB} {
		require.NoError(t, db.Create(u).Error)
	}

	f.students = []model.Student{
		{FullName: "Nguyen An", StudentCode: "S1", ClassName: "5A", GuardianUserID: &f.parentA.UserID},
		{FullName: "Tran Binh", StudentCode: "S2", ClassName: "5A", GuardianUserID: &f.parentB.UserID},
		{FullName: "Le Chi", StudentCode: "S3", ClassName: "5B", GuardianUserID: &f.parentA.UserID},
	}
	for i := range f.students {
		require.NoError(t, db.Create(&f.students[i]).Error)
	}

	f.campaign = model.VaccinationCampaign{
		Name:            "Spring immunization",
		VaccineName:     "HPV",
		VaccineType:     "inactivated",
		ScheduledDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ConsentDeadline: time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.repo.Campaign.Create(context.Background(), &f.campaign, f.admin.UserID))
	return f
}

func (f *fixture) studentIDs() []string {
	ids := make([]string, len(f.students))
	for i, s := range f.students {
		ids[i] = s.StudentID
	}
	return ids
}

// enrollAll 将三名学生加入活动，返回 studentID → participationID
func (f *fixture) enrollAll(t *testing.T) map[string]string {
	t.Helper()
	ctx := context.Background()
	_, err := f.repo.Participation.BulkEnroll(ctx, f.campaign.CampaignID, f.studentIDs(), f.admin.UserID)
	require.NoError(t, err)

	var rows []model.VaccinationParticipation
	require.NoError(t, f.db.Where("campaign_id = ?", f.campaign.CampaignID).Find(&rows).Error)
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.StudentID] = r.ParticipationID
	}
	return out
}

func (f *fixture) reload(t *testing.T, participationID string) model.VaccinationParticipation {
	t.Helper()
	var p model.VaccinationParticipation
	require.NoError(t, f.db.Where("participation_id = ?", participationID).First(&p).Error)
	return p
}

func builder(query string) *querybuilder.Builder {
	v, _ := url.ParseQuery(query)
	return querybuilder.New(v, querybuilder.Options{})
}

func participationIDs(list []model.VaccinationParticipation) []string {
	ids := make([]string, len(list))
	for i, p := range list {
		ids[i] = p.ParticipationID
	}
	return ids
}
