package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"school-health/backend/config"
	"school-health/backend/internal/api/handler"
	"school-health/backend/internal/api/middleware"
	"school-health/backend/internal/model"
	"school-health/backend/pkg/jwt"
	"school-health/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时跳过 Token 黑名单与限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(cfg.Server.BodyLimitBytes))
	r.Use(middleware.ErrorHandler(logger))

	// ── 健康检查 ──
	var cache pinger
	if rdb != nil {
		cache = rdb
	}
	r.GET("/health", healthCheck(sqlPinger{db}, cache))

	// 避免把 nil 指针装进接口
	var (
		blacklist middleware.TokenBlacklist
		limiter   middleware.RateLimiter
	)
	if rdb != nil {
		blacklist, limiter = rdb, rdb
	}
	consentLimit := middleware.RateLimit(limiter, cfg.RateLimit.ConsentPerMinute, time.Minute, logger)
	recordLimit := middleware.RateLimit(limiter, cfg.RateLimit.RecordPerMinute, time.Minute, logger)

	admin := middleware.RoleAuth(model.RoleAdmin)
	staff := middleware.RoleAuth(model.RoleAdmin, model.RoleNurse)
	nurse := middleware.RoleAuth(model.RoleNurse)
	parent := middleware.RoleAuth(model.RoleParent)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	vaccinations := v1.Group("/vaccinations")
	vaccinations.Use(middleware.JWTAuth(jwtMgr, blacklist, logger))
	{
		// 接种活动
		campaigns := vaccinations.Group("/campaigns")
		{
			campaigns.POST("", admin, h.Vaccination.CreateCampaign)
			campaigns.GET("", h.Vaccination.ListCampaigns)
			campaigns.GET("/search", h.Vaccination.SearchCampaigns)
			campaigns.GET("/:campaignId", h.Vaccination.GetCampaign)
			campaigns.PUT("/:campaignId", admin, h.Vaccination.UpdateCampaign)
			campaigns.GET("/:campaignId/calendar.ics", h.Export.Calendar)
			campaigns.POST("/:campaignId/students", admin, h.Vaccination.EnrollStudents)
			campaigns.GET("/:campaignId/participations", h.Vaccination.ListCampaignParticipations) // 家长范围由 Service 限定
			campaigns.GET("/:campaignId/participations/export", staff, h.Export.ExportRoster)
		}

		// 参与记录
		participations := vaccinations.Group("/participations")
		{
			participations.GET("/search", h.Vaccination.SearchParticipations)
			participations.GET("/:participationId", h.Vaccination.GetParticipation)
			participations.GET("/:participationId/consent-history", h.Vaccination.ListConsentHistory)
			participations.PUT("/:participationId/consent", parent, consentLimit, h.Vaccination.SubmitConsent)
			participations.PUT("/:participationId/record", nurse, recordLimit, h.Vaccination.RecordVaccination)
		}

		// 家长视角
		parents := vaccinations.Group("/parent", parent)
		{
			parents.GET("/participations", h.Vaccination.ListParentParticipations)
			parents.GET("/participations/search", h.Vaccination.SearchParentParticipations)
		}
	}

	return r
}

type pinger interface {
	Ping(ctx context.Context) error
}

type sqlPinger struct{ db *gorm.DB }

func (p sqlPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// healthCheck 数据库不可用返回 503；Redis 为可选依赖，不可用时只标记 degraded
func healthCheck(db, cache pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{"status": "ok", "database": "up", "redis": "disabled"}
		if err := db.Ping(ctx); err != nil {
			body["status"], body["database"] = "down", "down"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		if cache != nil {
			body["redis"] = "up"
			if err := cache.Ping(ctx); err != nil {
				body["status"], body["redis"] = "degraded", "down"
			}
		}
		c.JSON(http.StatusOK, body)
	}
}
