package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"school-health/backend/config"
)

// 键前缀；黑名单由认证服务写入，本服务只读
const (
	blacklistPrefix = "token:blacklist:"
	rateLimitPrefix = "ratelimit:"
)

// Client Redis 客户端封装
// 提供 Token 黑名单查询与写接口滑动窗口限流
type Client struct {
	rdb    goredis.UniversalClient
	logger *zap.Logger
}

// NewClient 创建 Redis 连接，启动时 Ping 失败直接返回错误，由调用方决定是否降级
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	c := &Client{rdb: rdb, logger: logger}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return c, nil
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// IsBlacklisted JWT ID 是否已被注销
func (c *Client) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CheckRateLimit 滑动窗口限流：window 内最多 limit 次
// 有序集合以纳秒时间戳为分值，每次调用都记入窗口
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := rateLimitPrefix + key
	now := time.Now()
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	var card *goredis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", "("+cutoff)
		card = pipe.ZCard(ctx, k)
		pipe.ZAdd(ctx, k, goredis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
		pipe.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return false, err
	}

	allowed := card.Val() < int64(limit)
	if !allowed {
		c.logger.Debug("触发限流", zap.String("key", key), zap.Int64("count", card.Val()))
	}
	return allowed, nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
