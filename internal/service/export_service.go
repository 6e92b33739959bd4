package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"school-health/backend/internal/dto"
	"school-health/backend/internal/model"
	"school-health/backend/internal/repository"
	apperrors "school-health/backend/pkg/errors"
)

// ── 导出模块业务错误 ──

var (
	ErrExportGenerateFail = apperrors.Application("生成导出文件失败", nil)
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	icsContentType  = "text/calendar; charset=utf-8"
	icsProductID    = "-//school-health//vaccination//ZH"
)

// ExportService 导出业务接口
//   - 接种名单导出为 Excel (.xlsx)，仅管理员与校医
//   - 活动日程导出为 iCalendar (.ics)，所有已认证角色
type ExportService interface {
	ExportCampaignRoster(ctx context.Context, auth model.AuthContext, campaignID string) (*dto.ExportFile, error)
	CampaignCalendar(ctx context.Context, auth model.AuthContext, campaignID string) (*dto.ExportFile, error)
}

type exportService struct {
	repo    *repository.Repository
	baseURL string
	logger  *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, baseURL string, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportCampaignRoster — 导出接种名单
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "接种名单"：标题行 + 表头 + 每个学生一行（按班级、姓名排序）
//   - Sheet "统计"：知情同意与接种状态计数

var rosterHeaders = []string{"班级", "学号", "姓名", "知情同意", "同意时间", "家长备注", "接种状态", "接种日期", "接种护士", "护士备注"}

var consentLabels = map[string]string{
	model.ConsentPending:  "待确认",
	model.ConsentApproved: "同意",
	model.ConsentDenied:   "拒绝",
}

var statusLabels = map[string]string{
	model.VaccinationScheduled: "待接种",
	model.VaccinationCompleted: "已接种",
	model.VaccinationMissed:    "缺席",
	model.VaccinationCancelled: "已取消",
}

func (s *exportService) ExportCampaignRoster(ctx context.Context, auth model.AuthContext, campaignID string) (*dto.ExportFile, error) {
	if !auth.IsAdmin() && !auth.IsNurse() {
		return nil, ErrStaffOnly
	}

	campaign, err := s.repo.Campaign.GetByID(ctx, campaignID)
	if err != nil {
		return nil, wrapInternal(s.logger, "查询接种活动失败", err, zap.String("campaign_id", campaignID))
	}
	items, err := s.repo.Participation.ListAllByCampaign(ctx, campaignID)
	if err != nil {
		return nil, wrapInternal(s.logger, "查询接种名单失败", err, zap.String("campaign_id", campaignID))
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "接种名单"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "C", 14)
	f.SetColWidth(sheetName, "D", "E", 12)
	f.SetColWidth(sheetName, "F", "F", 28)
	f.SetColWidth(sheetName, "G", "I", 12)
	f.SetColWidth(sheetName, "J", "J", 28)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s（%s）接种名单 %s",
		campaign.Name, campaign.VaccineName, campaign.ScheduledDate.Format("2006-01-02")))
	f.MergeCell(sheetName, "A1", cell(colName(len(rosterHeaders)-1), 1))
	titleCell, _ := excelize.CoordinatesToCellName(1, 1)
	f.SetCellStyle(sheetName, titleCell, titleCell, headerStyle)

	// 表头
	row := 2
	for i, h := range rosterHeaders {
		f.SetCellValue(sheetName, cell(colName(i), row), h)
	}
	f.SetCellStyle(sheetName, cell("A", row), cell(colName(len(rosterHeaders)-1), row), headerStyle)

	consentCount := make(map[string]int)
	statusCount := make(map[string]int)

	// 数据行
	row = 3
	for _, p := range items {
		consentCount[p.ParentConsent]++
		statusCount[p.VaccinationStatus]++

		values := []interface{}{"", "", "", consentLabels[p.ParentConsent], dateCell(p.ParentConsentDate),
			p.ParentNote, statusLabels[p.VaccinationStatus], dateCell(p.VaccinationDate), "", p.NurseNote}
		if st := p.Student; st != nil {
			values[0], values[1], values[2] = st.ClassName, st.StudentCode, st.FullName
		}
		if n := p.VaccinatedNurse; n != nil {
			values[8] = n.Name
		}
		for i, v := range values {
			f.SetCellValue(sheetName, cell(colName(i), row), v)
		}
		row++
	}

	// 统计
	summary := "统计"
	f.NewSheet(summary)
	f.SetColWidth(summary, "A", "B", 14)
	f.SetCellValue(summary, "A1", "学生总数")
	f.SetCellValue(summary, "B1", len(items))
	row = 3
	for _, k := range []string{model.ConsentPending, model.ConsentApproved, model.ConsentDenied} {
		f.SetCellValue(summary, cell("A", row), "知情同意-"+consentLabels[k])
		f.SetCellValue(summary, cell("B", row), consentCount[k])
		row++
	}
	row++
	for _, k := range []string{model.VaccinationScheduled, model.VaccinationCompleted, model.VaccinationMissed, model.VaccinationCancelled} {
		f.SetCellValue(summary, cell("A", row), "接种-"+statusLabels[k])
		f.SetCellValue(summary, cell("B", row), statusCount[k])
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.String("campaign_id", campaignID), zap.Error(err))
		return nil, ErrExportGenerateFail
	}

	s.logger.Info("接种名单已导出", zap.String("campaign_id", campaignID), zap.Int("rows", len(items)))
	return &dto.ExportFile{
		FileName:    fmt.Sprintf("接种名单_%s.xlsx", campaign.Name),
		ContentType: xlsxContentType,
		Data:        buf.Bytes(),
	}, nil
}

// ═══════════════════════════════════════════════════════════
// CampaignCalendar — 导出活动日程
// ═══════════════════════════════════════════════════════════
//
// 两个全天事件：知情同意截止日、接种日

func (s *exportService) CampaignCalendar(ctx context.Context, auth model.AuthContext, campaignID string) (*dto.ExportFile, error) {
	campaign, err := s.repo.Campaign.GetByID(ctx, campaignID)
	if err != nil {
		return nil, wrapInternal(s.logger, "查询接种活动失败", err,
			zap.String("campaign_id", campaignID), zap.String("caller", auth.UserID))
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetName(campaign.Name)

	now := time.Now().UTC()
	link := fmt.Sprintf("%s/api/v1/vaccinations/campaigns/%s", s.baseURL, campaign.CampaignID)

	deadline := cal.AddEvent(campaign.CampaignID + "-consent@school-health")
	deadline.SetDtStampTime(now)
	deadline.SetAllDayStartAt(campaign.ConsentDeadline)
	deadline.SetAllDayEndAt(campaign.ConsentDeadline.AddDate(0, 0, 1))
	deadline.SetSummary("知情同意截止：" + campaign.Name)
	deadline.SetDescription(fmt.Sprintf("请在截止日前为孩子提交 %s 接种知情同意", campaign.VaccineName))
	deadline.SetURL(link)

	day := cal.AddEvent(campaign.CampaignID + "-vaccination@school-health")
	day.SetDtStampTime(now)
	day.SetAllDayStartAt(campaign.ScheduledDate)
	day.SetAllDayEndAt(campaign.ScheduledDate.AddDate(0, 0, 1))
	day.SetSummary("接种日：" + campaign.Name)
	desc := campaign.VaccineName
	if campaign.Description != "" {
		desc += "\n" + campaign.Description
	}
	day.SetDescription(desc)
	day.SetURL(link)

	return &dto.ExportFile{
		FileName:    fmt.Sprintf("vaccination_%s.ics", campaign.CampaignID),
		ContentType: icsContentType,
		Data:        []byte(cal.Serialize()),
	}, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func dateCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
