package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"school-health/backend/internal/model"
)

// ConsentAuditRepository 知情同意审计日志（只追加）
type ConsentAuditRepository interface {
	Append(ctx context.Context, entry *model.ConsentAuditEntry) error
	ListByParticipation(ctx context.Context, participationID string) ([]model.ConsentAuditEntry, error)
}

type mongoConsentAuditRepo struct {
	coll *mongo.Collection
}

// NewMongoConsentAuditRepo 基于 MongoDB 集合创建审计仓储
func NewMongoConsentAuditRepo(coll *mongo.Collection) ConsentAuditRepository {
	return &mongoConsentAuditRepo{coll: coll}
}

// EnsureConsentAuditIndexes 创建 (participationId, recordedAt) 索引，可重复执行
func EnsureConsentAuditIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "participationId", Value: 1}, {Key: "recordedAt", Value: 1}},
		Options: options.Index().SetName("idx_participation_recorded"),
	})
	return err
}

func (r *mongoConsentAuditRepo) Append(ctx context.Context, entry *model.ConsentAuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, entry)
	return err
}

func (r *mongoConsentAuditRepo) ListByParticipation(ctx context.Context, participationID string) ([]model.ConsentAuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "recordedAt", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"participationId": participationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := []model.ConsentAuditEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// noopConsentAuditRepo 未启用 MongoDB 时使用，写入丢弃，查询为空
type noopConsentAuditRepo struct{}

// NewNoopConsentAuditRepo 创建空实现
func NewNoopConsentAuditRepo() ConsentAuditRepository {
	return noopConsentAuditRepo{}
}

func (noopConsentAuditRepo) Append(context.Context, *model.ConsentAuditEntry) error { return nil }

func (noopConsentAuditRepo) ListByParticipation(context.Context, string) ([]model.ConsentAuditEntry, error) {
	return []model.ConsentAuditEntry{}, nil
}
