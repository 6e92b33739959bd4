package service

import (
	"go.uber.org/zap"

	"school-health/backend/config"
	"school-health/backend/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Vaccination VaccinationService
	Export      ExportService
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	logger *zap.Logger,
) *Service {
	return &Service{
		Vaccination: NewVaccinationService(repo, logger),
		Export:      NewExportService(repo, cfg.Server.BaseURL, logger),
	}
}
