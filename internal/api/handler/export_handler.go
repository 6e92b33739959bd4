package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"school-health/backend/internal/dto"
	"school-health/backend/internal/service"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportRoster 导出活动接种名单
// GET /api/v1/vaccinations/campaigns/:campaignId/participations/export
func (h *ExportHandler) ExportRoster(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	file, err := h.exportSvc.ExportCampaignRoster(c.Request.Context(), auth, c.Param("campaignId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	writeAttachment(c, file)
}

// Calendar 导出活动日程
// GET /api/v1/vaccinations/campaigns/:campaignId/calendar.ics
func (h *ExportHandler) Calendar(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	file, err := h.exportSvc.CampaignCalendar(c.Request.Context(), auth, c.Param("campaignId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	writeAttachment(c, file)
}

// writeAttachment 设置下载响应头后写入文件内容
func writeAttachment(c *gin.Context, file *dto.ExportFile) {
	encodedFilename := url.QueryEscape(file.FileName)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
