package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"school-health/backend/config"
)

// Client MongoDB 客户端封装，绑定到配置中的数据库
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewClient 连接 MongoDB 并执行 Ping 健康检查
func NewClient(cfg *config.MongoConfig, logger *zap.Logger) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("MongoDB 连接失败: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB ping 失败: %w", err)
	}

	logger.Info("MongoDB 连接成功", zap.String("database", cfg.Database))

	return &Client{client: client, db: client.Database(cfg.Database)}, nil
}

// Collection 获取集合句柄
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// Close 断开连接
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
