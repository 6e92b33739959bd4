package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Pagination PaginationConfig `mapstructure:"pagination"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port           int        `mapstructure:"port"`
	BaseURL        string     `mapstructure:"base_url"`
	BodyLimitBytes int64      `mapstructure:"body_limit_bytes"`
	CORS           CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MongoConfig MongoDB 配置（知情同意审计日志）
type MongoConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	URI             string `mapstructure:"uri"`
	Database        string `mapstructure:"database"`
	AuditCollection string `mapstructure:"audit_collection"`
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RateLimitConfig 写接口限流配置（每分钟请求数）
type RateLimitConfig struct {
	ConsentPerMinute int `mapstructure:"consent_per_minute"`
	RecordPerMinute  int `mapstructure:"record_per_minute"`
}

// PaginationConfig 列表分页默认值
type PaginationConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// 环境变量前缀，如 SCHOOLHEALTH_DB_HOST 对应 db.host
const envPrefix = "SCHOOLHEALTH"

var defaults = map[string]any{
	"server.port":               8080,
	"server.base_url":           "http://localhost:8080",
	"server.body_limit_bytes":   1 << 20,
	"server.cors.allow_origins": []string{"http://localhost:5173"},

	"db.host":               "localhost",
	"db.port":               5432,
	"db.name":               "school_health",
	"db.user":               "postgres",
	"db.password":           "",
	"db.sslmode":            "disable",
	"db.timezone":           "Asia/Ho_Chi_Minh",
	"db.max_open_conns":     25,
	"db.max_idle_conns":     10,
	"db.conn_max_lifetime":  60,
	"db.conn_max_idle_time": 30,

	"redis.addr":     "localhost:6379",
	"redis.password": "",
	"redis.db":       0,

	"mongo.enabled":          false,
	"mongo.uri":              "mongodb://localhost:27017",
	"mongo.database":         "school_health",
	"mongo.audit_collection": "consent_audit",

	"auth.access_token_ttl": "15m",

	"log.level":  "info",
	"log.format": "json",

	"rate_limit.consent_per_minute": 30,
	"rate_limit.record_per_minute":  120,

	"pagination.default_limit": 10,
	"pagination.max_limit":     100,
}

// Load 加载配置，优先级：环境变量 > 配置文件 > 默认值
// path 为空时在 ./config 与 . 下查找 config.yaml，找不到文件不算错误
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验关键配置项，一次返回全部问题
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Auth.JWTSecret != "", "auth.jwt_secret 不能为空")
	check(c.Auth.JWTSecret == "" || len(c.Auth.JWTSecret) >= 16, "auth.jwt_secret 长度不能少于 16 字符")
	check(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port 必须在 1-65535 之间")
	check(c.Pagination.DefaultLimit > 0 && c.Pagination.MaxLimit >= c.Pagination.DefaultLimit,
		"pagination.default_limit 必须为正数且不大于 max_limit")
	check(!c.Mongo.Enabled || (c.Mongo.URI != "" && c.Mongo.Database != ""),
		"启用 mongo 时 uri 与 database 不能为空")

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("配置校验失败: %w", errors.Join(errs...))
}
