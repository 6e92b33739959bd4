package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"

	"school-health/backend/internal/model"
)

// ── ExportCampaignRoster 测试 ──

func TestExportService_ExportCampaignRoster_Success(t *testing.T) {
	env := newTestEnv()
	svc := env.exportService()

	env.participations.add(env.campaign.CampaignID, "s1")
	p2 := env.participations.add(env.campaign.CampaignID, "s2")
	p2.ParentConsent = model.ConsentApproved
	p2.VaccinationStatus = model.VaccinationCompleted
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p2.VaccinationDate = &date
	p2.VaccinatedNurse = &model.User{UserID: nurseID, Name: "王护士"}

	file, err := svc.ExportCampaignRoster(context.Background(), nurseAuth, env.campaign.CampaignID)
	if err != nil {
		t.Fatalf("ExportCampaignRoster 应成功: %v", err)
	}
	if !strings.HasSuffix(file.FileName, ".xlsx") {
		t.Errorf("期望 .xlsx 文件名，实际=%s", file.FileName)
	}

	f, err := excelize.OpenReader(bytes.NewReader(file.Data))
	if err != nil {
		t.Fatalf("生成的文件应为合法 xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("接种名单")
	if err != nil {
		t.Fatalf("读取名单 Sheet 失败: %v", err)
	}
	// 标题 + 表头 + 2 个学生
	if len(rows) != 4 {
		t.Fatalf("期望 4 行，实际=%d", len(rows))
	}
	if rows[1][0] != "班级" || rows[1][2] != "姓名" {
		t.Errorf("表头错误: %v", rows[1])
	}
	var found bool
	for _, r := range rows[2:] {
		if r[2] == "李小红" {
			found = true
			if r[3] != "同意" || r[6] != "已接种" || r[7] != "2024-03-01" || r[8] != "王护士" {
				t.Errorf("已接种学生行内容错误: %v", r)
			}
		}
	}
	if !found {
		t.Error("名单中应包含李小红")
	}

	total, _ := f.GetCellValue("统计", "B1")
	if total != "2" {
		t.Errorf("期望学生总数 2，实际=%s", total)
	}
}

func TestExportService_ExportCampaignRoster_Errors(t *testing.T) {
	env := newTestEnv()
	svc := env.exportService()

	if _, err := svc.ExportCampaignRoster(context.Background(), parentAAuth, env.campaign.CampaignID); !errors.Is(err, ErrStaffOnly) {
		t.Errorf("期望 ErrStaffOnly，实际: %v", err)
	}
	if _, err := svc.ExportCampaignRoster(context.Background(), adminAuth, "missing"); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("期望 ErrCampaignNotFound，实际: %v", err)
	}
}

// ── CampaignCalendar 测试 ──

func TestExportService_CampaignCalendar(t *testing.T) {
	env := newTestEnv()
	svc := env.exportService()

	file, err := svc.CampaignCalendar(context.Background(), parentAAuth, env.campaign.CampaignID)
	if err != nil {
		t.Fatalf("CampaignCalendar 应成功: %v", err)
	}
	if !strings.HasPrefix(file.ContentType, "text/calendar") {
		t.Errorf("Content-Type 错误: %s", file.ContentType)
	}

	cal, err := ics.ParseCalendar(bytes.NewReader(file.Data))
	if err != nil {
		t.Fatalf("生成的日历应可解析: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("期望 2 个事件，实际=%d", len(events))
	}

	summaries := map[string]bool{}
	for _, ev := range events {
		if p := ev.GetProperty(ics.ComponentPropertySummary); p != nil {
			summaries[p.Value] = true
		}
	}
	if !summaries["接种日："+env.campaign.Name] || !summaries["知情同意截止："+env.campaign.Name] {
		t.Errorf("事件标题错误: %v", summaries)
	}
	if !strings.Contains(string(file.Data), "http://localhost:8080/api/v1/vaccinations/campaigns/"+env.campaign.CampaignID) {
		t.Error("事件应包含活动链接")
	}
}

func TestExportService_CampaignCalendar_NotFound(t *testing.T) {
	env := newTestEnv()
	svc := env.exportService()

	if _, err := svc.CampaignCalendar(context.Background(), nurseAuth, "missing"); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("期望 ErrCampaignNotFound，实际: %v", err)
	}
}
