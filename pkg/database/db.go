package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"school-health/backend/config"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 10
	slowQueryThreshold  = 500 * time.Millisecond
)

// NewDB 初始化 PostgreSQL 数据库连接
// SQL 日志经 zap 输出；appLogLevel 为 debug 时全量输出，否则只输出慢查询与错误
func NewDB(cfg *config.DatabaseConfig, appLogLevel string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         NewGormLogger(logger, appLogLevel),
		TranslateError: true, // 唯一键冲突翻译为 gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, defaultMaxOpenConns))
	sqlDB.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, defaultMaxIdleConns))
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库 ping 失败: %w", err)
	}

	logger.Info("PostgreSQL 已就绪",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("dbname", cfg.Name),
		zap.Int("max_open_conns", orDefault(cfg.MaxOpenConns, defaultMaxOpenConns)),
	)
	return db, nil
}

// NewGormLogger 将 GORM 日志写入 zap；记录不存在不视为错误
func NewGormLogger(logger *zap.Logger, appLogLevel string) gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(logger.Named("gorm")),
		gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  GormLogLevel(appLogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormLogLevel 应用日志级别到 GORM 日志级别的映射
func GormLogLevel(appLogLevel string) gormlogger.LogLevel {
	if appLogLevel == "debug" {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
