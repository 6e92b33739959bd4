package handler

import (
	"school-health/backend/config"
	"school-health/backend/internal/service"
	"school-health/backend/pkg/querybuilder"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Vaccination *VaccinationHandler
	Export      *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, cfg *config.Config) *Handler {
	opts := querybuilder.Options{
		DefaultLimit: cfg.Pagination.DefaultLimit,
		MaxLimit:     cfg.Pagination.MaxLimit,
	}
	return &Handler{
		Vaccination: NewVaccinationHandler(svc.Vaccination, opts),
		Export:      NewExportHandler(svc.Export),
	}
}
