// Package mongostore 提供基于 MongoDB 的读模型存储实现。
// 条件更新用 {identity, last_applied_version: version-1} 过滤器保证幂等，
// 未命中时回查文档区分重复投递与跳号。
// 数据库句柄按操作解析，客户端热替换后后续操作自动落到新连接。
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wyfcoding/docstore/readmodel"
)

const (
	defaultArtifactCollection = "artifacts"
	defaultPageCollection     = "pages"
)

// DatabaseProvider 返回当前数据库句柄。每次操作调用，不得缓存返回值。
type DatabaseProvider func() *mongo.Database

// EnsureIndexes 创建读模型集合的索引。容器启动时调用一次；
// 客户端热替换指向新库后需再次调用。索引创建是幂等的。
func EnsureIndexes(ctx context.Context, db *mongo.Database, artifactCollection, pageCollection string) error {
	if artifactCollection == "" {
		artifactCollection = defaultArtifactCollection
	}
	if pageCollection == "" {
		pageCollection = defaultPageCollection
	}

	_, err := db.Collection(artifactCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "artifact_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create artifact index: %w", err)
	}

	_, err = db.Collection(pageCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "page_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "artifact_id", Value: 1}, {Key: "index", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create page indexes: %w", err)
	}

	return nil
}

// ArtifactStore 基于 MongoDB 的制品读模型存储。
type ArtifactStore struct {
	db   DatabaseProvider
	name string
}

// NewArtifactStore 创建制品读模型存储。collection 为空时使用 "artifacts"。
func NewArtifactStore(db DatabaseProvider, collection string) *ArtifactStore {
	if collection == "" {
		collection = defaultArtifactCollection
	}

	return &ArtifactStore{db: db, name: collection}
}

func (s *ArtifactStore) coll() *mongo.Collection {
	return s.db().Collection(s.name)
}

// Insert 实现 readmodel.ArtifactStore。
func (s *ArtifactStore) Insert(ctx context.Context, doc *readmodel.ArtifactDocument) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := s.coll().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: artifact %s", readmodel.ErrAlreadyApplied, doc.ArtifactID)
		}

		return fmt.Errorf("failed to insert artifact document: %w", err)
	}

	return nil
}

// Update 实现 readmodel.ArtifactStore。
func (s *ArtifactStore) Update(ctx context.Context, artifactID string, version int64, fields readmodel.Fields) error {
	set := bson.M{
		"last_applied_version": version,
		"updated_at":           time.Now(),
	}
	for key, value := range fields {
		set[key] = value
	}

	coll := s.coll()
	result, err := coll.UpdateOne(ctx,
		bson.M{"artifact_id": artifactID, "last_applied_version": version - 1},
		bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update artifact document: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	return classifyMiss(ctx, coll, "artifact_id", artifactID, version)
}

// Get 实现 readmodel.ArtifactStore。
func (s *ArtifactStore) Get(ctx context.Context, artifactID string) (*readmodel.ArtifactDocument, error) {
	var doc readmodel.ArtifactDocument
	err := s.coll().FindOne(ctx, bson.M{"artifact_id": artifactID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: artifact %s", readmodel.ErrNotFound, artifactID)
		}

		return nil, fmt.Errorf("failed to load artifact document: %w", err)
	}

	return &doc, nil
}

// PageStore 基于 MongoDB 的页面读模型存储。
type PageStore struct {
	db   DatabaseProvider
	name string
}

// NewPageStore 创建页面读模型存储。collection 为空时使用 "pages"。
func NewPageStore(db DatabaseProvider, collection string) *PageStore {
	if collection == "" {
		collection = defaultPageCollection
	}

	return &PageStore{db: db, name: collection}
}

func (s *PageStore) coll() *mongo.Collection {
	return s.db().Collection(s.name)
}

// Insert 实现 readmodel.PageStore。
func (s *PageStore) Insert(ctx context.Context, doc *readmodel.PageDocument) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := s.coll().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: page %s", readmodel.ErrAlreadyApplied, doc.PageID)
		}

		return fmt.Errorf("failed to insert page document: %w", err)
	}

	return nil
}

// Update 实现 readmodel.PageStore。
func (s *PageStore) Update(ctx context.Context, pageID string, version int64, fields readmodel.Fields) error {
	set := bson.M{
		"last_applied_version": version,
		"updated_at":           time.Now(),
	}
	for key, value := range fields {
		set[key] = value
	}

	coll := s.coll()
	result, err := coll.UpdateOne(ctx,
		bson.M{"page_id": pageID, "last_applied_version": version - 1},
		bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update page document: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	return classifyMiss(ctx, coll, "page_id", pageID, version)
}

// Get 实现 readmodel.PageStore。
func (s *PageStore) Get(ctx context.Context, pageID string) (*readmodel.PageDocument, error) {
	var doc readmodel.PageDocument
	err := s.coll().FindOne(ctx, bson.M{"page_id": pageID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: page %s", readmodel.ErrNotFound, pageID)
		}

		return nil, fmt.Errorf("failed to load page document: %w", err)
	}

	return &doc, nil
}

// ListByArtifact 实现 readmodel.PageStore。
func (s *PageStore) ListByArtifact(ctx context.Context, artifactID string) ([]*readmodel.PageDocument, error) {
	cursor, err := s.coll().Find(ctx,
		bson.M{"artifact_id": artifactID},
		options.Find().SetSort(bson.D{{Key: "index", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list pages of artifact %s: %w", artifactID, err)
	}

	var docs []*readmodel.PageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode page documents: %w", err)
	}

	return docs, nil
}

// classifyMiss 条件更新未命中时区分重复投递与跳号。
func classifyMiss(ctx context.Context, coll *mongo.Collection, idField, id string, version int64) error {
	var doc struct {
		LastAppliedVersion int64 `bson:"last_applied_version"`
	}

	err := coll.FindOne(ctx,
		bson.M{idField: id},
		options.FindOne().SetProjection(bson.M{"last_applied_version": 1})).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: document %s missing for version %d", readmodel.ErrVersionGap, id, version)
		}

		return fmt.Errorf("failed to inspect document %s: %w", id, err)
	}

	if doc.LastAppliedVersion >= version {
		return fmt.Errorf("%w: document %s at version %d, event version %d",
			readmodel.ErrAlreadyApplied, id, doc.LastAppliedVersion, version)
	}

	return fmt.Errorf("%w: document %s at version %d, event version %d",
		readmodel.ErrVersionGap, id, doc.LastAppliedVersion, version)
}
