package handler

import (
	"github.com/gin-gonic/gin"

	"school-health/backend/internal/dto"
	"school-health/backend/internal/service"
	"school-health/backend/pkg/querybuilder"
	"school-health/backend/pkg/response"
)

// VaccinationHandler 接种模块 HTTP 处理器
// 错误统一交给 ErrorHandler 中间件渲染
type VaccinationHandler struct {
	vaccinationSvc service.VaccinationService
	qbOpts         querybuilder.Options
}

// NewVaccinationHandler 创建 VaccinationHandler
func NewVaccinationHandler(vaccinationSvc service.VaccinationService, qbOpts querybuilder.Options) *VaccinationHandler {
	return &VaccinationHandler{vaccinationSvc: vaccinationSvc, qbOpts: qbOpts}
}

func (h *VaccinationHandler) builder(c *gin.Context) *querybuilder.Builder {
	return querybuilder.New(c.Request.URL.Query(), h.qbOpts)
}

// ────────────────────── 接种活动 ──────────────────────

// CreateCampaign 创建接种活动
// POST /api/v1/vaccinations/campaigns
func (h *VaccinationHandler) CreateCampaign(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	var req dto.CreateCampaignRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	campaign, err := h.vaccinationSvc.CreateCampaign(c.Request.Context(), auth, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.Created(c, "接种活动已创建", campaign)
}

// UpdateCampaign 更新接种活动（部分字段）
// PUT /api/v1/vaccinations/campaigns/:campaignId
func (h *VaccinationHandler) UpdateCampaign(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	var req dto.UpdateCampaignRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	campaign, err := h.vaccinationSvc.UpdateCampaign(c.Request.Context(), auth, c.Param("campaignId"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, "接种活动已更新", campaign)
}

// ListCampaigns 接种活动列表
// GET /api/v1/vaccinations/campaigns?page=&limit=&status=&sortBy=&sortOrder=
func (h *VaccinationHandler) ListCampaigns(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	qb := h.builder(c)
	list, total, err := h.vaccinationSvc.ListCampaigns(c.Request.Context(), auth, qb)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OKPage(c, "获取接种活动列表成功", list, total, qb.GetPage(), qb.GetLimit())
}

// SearchCampaigns 按关键字检索接种活动
// GET /api/v1/vaccinations/campaigns/search?keyword=
func (h *VaccinationHandler) SearchCampaigns(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	qb := h.builder(c)
	list, total, err := h.vaccinationSvc.SearchCampaigns(c.Request.Context(), auth, qb)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OKPage(c, "检索接种活动成功", list, total, qb.GetPage(), qb.GetLimit())
}

// GetCampaign 接种活动详情
// GET /api/v1/vaccinations/campaigns/:campaignId
func (h *VaccinationHandler) GetCampaign(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	campaign, err := h.vaccinationSvc.GetCampaign(c.Request.Context(), auth, c.Param("campaignId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, "获取接种活动成功", campaign)
}

// EnrollStudents 批量加入学生
// POST /api/v1/vaccinations/campaigns/:campaignId/students
func (h *VaccinationHandler) EnrollStudents(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	var req dto.EnrollStudentsRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	result, err := h.vaccinationSvc.EnrollStudents(c.Request.Context(), auth, c.Param("campaignId"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.Created(c, "学生已加入接种活动", result)
}

// ListCampaignParticipations 活动下的参与记录
// GET /api/v1/vaccinations/campaigns/:campaignId/participations?parentConsent=&vaccinationStatus=
func (h *VaccinationHandler) ListCampaignParticipations(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	qb := h.builder(c)
	list, total, err := h.vaccinationSvc.GetCampaignParticipations(c.Request.Context(), auth, c.Param("campaignId"), qb)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OKPage(c, "获取参与记录成功", list, total, qb.GetPage(), qb.GetLimit())
}

// ────────────────────── 参与记录 ──────────────────────

// SubmitConsent 家长提交知情同意
// PUT /api/v1/vaccinations/participations/:participationId/consent
func (h *VaccinationHandler) SubmitConsent(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	var req dto.ParentConsentRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	result, err := h.vaccinationSvc.ParentConsent(c.Request.Context(), auth, c.Param("participationId"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, "知情同意已提交", result)
}

// RecordVaccination 校医录入接种结果
// PUT /api/v1/vaccinations/participations/:participationId/record
func (h *VaccinationHandler) RecordVaccination(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	var req dto.RecordVaccinationRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	result, err := h.vaccinationSvc.RecordVaccination(c.Request.Context(), auth, c.Param("participationId"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, "接种结果已录入", result)
}

// SearchParticipations 检索参与记录；家长自动限定为自己孩子
// GET /api/v1/vaccinations/participations/search?keyword=
func (h *VaccinationHandler) SearchParticipations(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	qb := h.builder(c)
	list, total, err := h.vaccinationSvc.SearchParticipations(c.Request.Context(), auth, qb)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OKPage(c, "检索参与记录成功", list, total, qb.GetPage(), qb.GetLimit())
}

// GetParticipation 参与记录详情
// GET /api/v1/vaccinations/participations/:participationId
func (h *VaccinationHandler) GetParticipation(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	result, err := h.vaccinationSvc.GetParticipation(c.Request.Context(), auth, c.Param("participationId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, "获取参与记录成功", result)
}

// ListConsentHistory 知情同意变更历史
// GET /api/v1/vaccinations/participations/:participationId/consent-history
func (h *VaccinationHandler) ListConsentHistory(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	history, err := h.vaccinationSvc.ListConsentHistory(c.Request.Context(), auth, c.Param("participationId"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OK(c, "获取知情同意历史成功", gin.H{"list": history})
}

// ────────────────────── 家长视角 ──────────────────────

// ListParentParticipations 家长的所有参与记录
// GET /api/v1/vaccinations/parent/participations
func (h *VaccinationHandler) ListParentParticipations(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	qb := h.builder(c)
	list, total, err := h.vaccinationSvc.ListParentParticipations(c.Request.Context(), auth, qb)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OKPage(c, "获取孩子的参与记录成功", list, total, qb.GetPage(), qb.GetLimit())
}

// SearchParentParticipations 家长检索自己孩子的参与记录
// GET /api/v1/vaccinations/parent/participations/search?keyword=
func (h *VaccinationHandler) SearchParentParticipations(c *gin.Context) {
	auth, ok := MustGetAuth(c)
	if !ok {
		return
	}

	qb := h.builder(c)
	list, total, err := h.vaccinationSvc.SearchParentParticipations(c.Request.Context(), auth, qb)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.OKPage(c, "检索孩子的参与记录成功", list, total, qb.GetPage(), qb.GetLimit())
}
