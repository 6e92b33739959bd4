//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"school-health/backend/config"
	"school-health/backend/internal/dto"
	"school-health/backend/internal/model"
	"school-health/backend/internal/repository"
	"school-health/backend/internal/service"
	"school-health/backend/pkg/database"
	apperrors "school-health/backend/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var pgDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=school_health password=school_health_password dbname=school_health_test sslmode=disable TimeZone=UTC"
	}

	var err error
	pgDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	sqlDB, err := pgDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	// 使用与生产一致的嵌入式迁移建表
	if _, err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "迁移失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Exit(code)
}

// setupPG 创建一个活动与若干学生，返回清理函数
func setupPG(t *testing.T, students int) (*repository.Repository, model.User, model.VaccinationCampaign, []string, func()) {
	t.Helper()
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	admin := model.User{
		Name:         "集成测试管理员",
		Email:        fmt.Sprintf("admin%d@school.edu", suffix),
		PasswordHash: "$2a$10$placeholder",
		Role:         model.RoleAdmin,
	}
	if err := pgDB.WithContext(ctx).Create(&admin).Error; err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}

	repo := repository.NewRepository(pgDB, nil)
	campaign := model.VaccinationCampaign{
		Name:            fmt.Sprintf("集成测试活动-%d", suffix),
		VaccineName:     "HPV",
		ScheduledDate:   time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		ConsentDeadline: time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC),
	}
	if err := repo.Campaign.Create(ctx, &campaign, admin.UserID); err != nil {
		t.Fatalf("创建活动失败: %v", err)
	}

	ids := make([]string, 0, students)
	for i := 0; i < students; i++ {
		s := model.Student{
			FullName:       fmt.Sprintf("学生%d", i),
			StudentCode:    fmt.Sprintf("IT-%d-%d", suffix, i),
			GuardianUserID: &admin.UserID,
		}
		if err := pgDB.WithContext(ctx).Create(&s).Error; err != nil {
			t.Fatalf("创建学生失败: %v", err)
		}
		ids = append(ids, s.StudentID)
	}

	cleanup := func() {
		pgDB.Where("campaign_id = ?", campaign.CampaignID).Delete(&model.VaccinationParticipation{})
		pgDB.Where("campaign_id = ?", campaign.CampaignID).Delete(&model.VaccinationCampaign{})
		pgDB.Where("student_id IN ?", ids).Delete(&model.Student{})
		pgDB.Where("user_id = ?", admin.UserID).Delete(&model.User{})
	}
	return repo, admin, campaign, ids, cleanup
}

// ═══════════════════════════════════════════════════════════
// Test: Unique (campaign, student) under Concurrency
// ═══════════════════════════════════════════════════════════

func TestBulkEnroll_ConcurrentRequestsNeverDuplicate(t *testing.T) {
	repo, admin, campaign, ids, cleanup := setupPG(t, 20)
	defer cleanup()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Participation.BulkEnroll(context.Background(), campaign.CampaignID, ids, admin.UserID)
			if err != nil && err != repository.ErrConcurrentEnrollment {
				t.Errorf("并发加入出现非预期错误: %v", err)
			}
		}()
	}
	wg.Wait()

	var count int64
	pgDB.Model(&model.VaccinationParticipation{}).Where("campaign_id = ?", campaign.CampaignID).Count(&count)
	if count != int64(len(ids)) {
		t.Errorf("期望 %d 条参与记录，实际=%d", len(ids), count)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Deadline Check Constraint
// ═══════════════════════════════════════════════════════════

func TestCampaign_DeadlineAfterScheduleRejectedByDatabase(t *testing.T) {
	_, admin, _, _, cleanup := setupPG(t, 0)
	defer cleanup()

	bad := model.VaccinationCampaign{
		Name:            "非法活动",
		VaccineName:     "MMR",
		ScheduledDate:   time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		ConsentDeadline: time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC),
	}
	err := repository.NewCampaignRepo(pgDB).Create(context.Background(), &bad, admin.UserID)
	if err == nil {
		pgDB.Where("campaign_id = ?", bad.CampaignID).Delete(&model.VaccinationCampaign{})
		t.Fatal("期望违反 chk_campaign_deadline 约束，但创建成功了")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Keyword Search on PostgreSQL
// ═══════════════════════════════════════════════════════════

func TestSearch_KeywordOnPostgres(t *testing.T) {
	repo, admin, campaign, ids, cleanup := setupPG(t, 3)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.Participation.BulkEnroll(ctx, campaign.CampaignID, ids, admin.UserID); err != nil {
		t.Fatalf("BulkEnroll 失败: %v", err)
	}

	_, total, err := repo.Participation.SearchByGuardian(ctx, admin.UserID,
		builder("keyword=hpv&campaignId="+campaign.CampaignID))
	if err != nil {
		t.Fatalf("SearchByGuardian 失败: %v", err)
	}
	if total != 3 {
		t.Errorf("期望 3 条，实际=%d", total)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Malformed IDs resolve to NotFound on uuid columns
// ═══════════════════════════════════════════════════════════

func TestMalformedIDs_AreNotFoundOnPostgres(t *testing.T) {
	repo, admin, campaign, ids, cleanup := setupPG(t, 1)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.Participation.BulkEnroll(ctx, campaign.CampaignID, ids, admin.UserID); err != nil {
		t.Fatalf("BulkEnroll 失败: %v", err)
	}

	svc := service.NewService(&config.Config{}, repo, zap.NewNop()).Vaccination
	adminAuth := model.AuthContext{UserID: admin.UserID, RoleName: model.RoleAdmin}
	nurseAuth := model.AuthContext{UserID: admin.UserID, RoleName: model.RoleNurse}
	parentAuth := model.AuthContext{UserID: admin.UserID, RoleName: model.RoleParent}
	date := "2025-09-01"

	calls := map[string]func() error{
		"GetCampaign": func() error {
			_, err := svc.GetCampaign(ctx, adminAuth, "abc")
			return err
		},
		"UpdateCampaign": func() error {
			name := "x"
			_, err := svc.UpdateCampaign(ctx, adminAuth, "abc", &dto.UpdateCampaignRequest{Name: &name})
			return err
		},
		"EnrollStudents": func() error {
			_, err := svc.EnrollStudents(ctx, adminAuth, "abc", &dto.EnrollStudentsRequest{StudentIDs: ids})
			return err
		},
		"GetCampaignParticipations": func() error {
			_, _, err := svc.GetCampaignParticipations(ctx, adminAuth, "abc", builder(""))
			return err
		},
		"GetParticipation": func() error {
			_, err := svc.GetParticipation(ctx, adminAuth, "abc")
			return err
		},
		"ParentConsent": func() error {
			_, err := svc.ParentConsent(ctx, parentAuth, "abc", &dto.ParentConsentRequest{Consent: model.ConsentApproved})
			return err
		},
		"RecordVaccination": func() error {
			_, err := svc.RecordVaccination(ctx, nurseAuth, "abc",
				&dto.RecordVaccinationRequest{Status: model.VaccinationCompleted, VaccinationDate: &date})
			return err
		},
	}
	for name, call := range calls {
		if got := apperrors.HTTPStatus(call()); got != http.StatusNotFound {
			t.Errorf("%s: 非法 ID 期望 404，实际=%d", name, got)
		}
	}

	// 过滤参数中的非法 campaignId 是参数错误而不是数据库错误
	_, _, err := svc.SearchParticipations(ctx, adminAuth, builder("campaignId=abc"))
	if got := apperrors.HTTPStatus(err); got != http.StatusBadRequest {
		t.Errorf("非法 campaignId 过滤期望 400，实际=%d", got)
	}
	_, _, err = svc.ListParentParticipations(ctx, parentAuth, builder("campaignId=abc"))
	if got := apperrors.HTTPStatus(err); got != http.StatusBadRequest {
		t.Errorf("家长列表非法 campaignId 过滤期望 400，实际=%d", got)
	}
}
