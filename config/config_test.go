package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoad_DefaultsWithFile(t *testing.T) {
	path := writeConfigFile(t, "auth:\n  jwt_secret: test-secret-key-for-unit-testing\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("期望默认端口 8080，实际=%d", cfg.Server.Port)
	}
	if cfg.Pagination.DefaultLimit != 10 || cfg.Pagination.MaxLimit != 100 {
		t.Errorf("分页默认值错误: %+v", cfg.Pagination)
	}
	if cfg.Mongo.Enabled {
		t.Error("mongo 默认不应启用")
	}
	if cfg.Auth.AccessTokenTTL.Minutes() != 15 {
		t.Errorf("期望 access_token_ttl=15m，实际=%v", cfg.Auth.AccessTokenTTL)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 9000\nauth:\n  jwt_secret: test-secret-key-for-unit-testing\n")
	t.Setenv("SCHOOLHEALTH_SERVER_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("环境变量应覆盖配置文件，期望 9100，实际=%d", cfg.Server.Port)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 8080\n")

	if _, err := Load(path); err == nil {
		t.Error("缺少 jwt_secret 时应返回错误")
	}
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{Port: 8080},
		Auth:       AuthConfig{JWTSecret: "short"},
		Pagination: PaginationConfig{DefaultLimit: 10, MaxLimit: 100},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("过短的 jwt_secret 应校验失败")
	}
}

func TestValidate_MongoEnabledWithoutURI(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{Port: 8080},
		Auth:       AuthConfig{JWTSecret: "test-secret-key-for-unit-testing"},
		Pagination: PaginationConfig{DefaultLimit: 10, MaxLimit: 100},
		Mongo:      MongoConfig{Enabled: true},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("启用 mongo 但缺少 uri 时应校验失败")
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{Port: 0},
		Pagination: PaginationConfig{DefaultLimit: 20, MaxLimit: 10},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("期望校验失败")
	}
	msg := err.Error()
	for _, want := range []string{"auth.jwt_secret", "server.port", "pagination.default_limit"} {
		if !strings.Contains(msg, want) {
			t.Errorf("错误信息应包含 %q: %s", want, msg)
		}
	}
}
