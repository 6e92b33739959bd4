package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"school-health/backend/config"
	"school-health/backend/internal/api/handler"
	"school-health/backend/internal/api/router"
	"school-health/backend/internal/repository"
	"school-health/backend/internal/service"
	"school-health/backend/pkg/database"
	"school-health/backend/pkg/jwt"
	applogger "school-health/backend/pkg/logger"
	"school-health/backend/pkg/mongo"
	"school-health/backend/pkg/redis"
)

func main() {
	// .env 已由 godotenv autoload 注入环境变量
	cfg, err := config.Load(os.Getenv("SCHOOLHEALTH_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("服务异常退出", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("应用启动中", zap.Int("port", cfg.Server.Port), zap.String("log_level", cfg.Log.Level))

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer closeWith(logger, "PostgreSQL", sqlDB.Close)

	if _, err := database.RunMigrations(sqlDB, logger); err != nil {
		return err
	}

	// Redis 可选：不可用时跳过 Token 黑名单与限流
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 不可用，Token 黑名单与限流关闭", zap.Error(err))
		rdb = nil
	} else {
		defer closeWith(logger, "Redis", rdb.Close)
	}

	audit, closeAudit := openConsentAudit(&cfg.Mongo, logger)
	defer closeAudit()

	repo := repository.NewRepository(db, audit)
	svc := service.NewService(cfg, repo, logger)
	engine := router.Setup(cfg, handler.NewHandler(svc, cfg), jwt.NewManager(&cfg.Auth), rdb, db, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second, // 名单导出
		IdleTimeout:       60 * time.Second,
	}
	return serve(srv, logger)
}

// openConsentAudit 未启用或连接失败时返回 nil 仓储，同意记录照常写入 PostgreSQL
func openConsentAudit(cfg *config.MongoConfig, logger *zap.Logger) (repository.ConsentAuditRepository, func()) {
	noop := func() {}
	if !cfg.Enabled {
		return nil, noop
	}
	client, err := mongo.NewClient(cfg, logger)
	if err != nil {
		logger.Warn("MongoDB 不可用，知情同意审计日志关闭", zap.Error(err))
		return nil, noop
	}

	coll := client.Collection(cfg.AuditCollection)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repository.EnsureConsentAuditIndexes(ctx, coll); err != nil {
		logger.Warn("创建审计日志索引失败", zap.Error(err))
	}

	return repository.NewMongoConsentAuditRepo(coll), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closeWith(logger, "MongoDB", func() error { return client.Close(ctx) })
	}
}

// serve 阻塞至收到 SIGINT/SIGTERM 后优雅关闭
func serve(srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP 服务器异常: %w", err)
	case <-ctx.Done():
	}

	logger.Info("收到关闭信号，开始优雅关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭异常: %w", err)
	}
	logger.Info("服务器已关闭")
	return nil
}

func closeWith(logger *zap.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error("关闭连接失败", zap.String("target", name), zap.Error(err))
	}
}
