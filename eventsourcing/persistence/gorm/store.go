// Package gormstore 提供基于 GORM 的事件存储实现。
// 事件表自增主键即全局事件流位置，订阅方以它为游标。
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/docstore/eventsourcing"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventModel 事件持久化模型。(aggregate_id, version) 唯一索引承担乐观锁兜底。
type EventModel struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	EventID     string    `gorm:"type:varchar(36);not null"`
	AggregateID string    `gorm:"type:varchar(64);index:idx_agg_ver,unique;not null"`
	Type        string    `gorm:"type:varchar(128);not null"`
	Version     int64     `gorm:"index:idx_agg_ver,unique;not null"`
	Payload     string    `gorm:"type:json;not null"` // 事件载荷 (JSON)
	Metadata    string    `gorm:"type:json"`          // 元数据 (JSON)
	OccurredAt  time.Time `gorm:"index;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// SnapshotModel 快照持久化模型。
type SnapshotModel struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	AggregateID string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	Version     int64     `gorm:"not null"`
	State       string    `gorm:"type:json;not null"` // 聚合根状态 (JSON)
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TxRunner 执行一个写事务。注入点，用于把追加路径换到熔断保护的
// 事务执行器上；默认直接使用存储自身的 *gorm.DB。
type TxRunner func(ctx context.Context, fc func(tx *gorm.DB) error) error

// GormEventStore 基于 GORM 的 EventStore 与 EventStream 实现。
type GormEventStore struct {
	db        *gorm.DB
	txRun     TxRunner
	registry  *eventsourcing.Registry
	tableName string
}

// StoreOption 配置 GormEventStore 的可选行为。
type StoreOption func(*GormEventStore)

// WithTransactionRunner 替换追加事件时使用的事务执行器。
func WithTransactionRunner(run TxRunner) StoreOption {
	return func(s *GormEventStore) {
		if run != nil {
			s.txRun = run
		}
	}
}

// NewGormEventStore 创建新的 GORM EventStore。
// registry 用于把持久化行还原为具体事件类型；tableName 为空时使用 "events"。
func NewGormEventStore(db *gorm.DB, registry *eventsourcing.Registry, tableName string, opts ...StoreOption) (*GormEventStore, error) {
	if tableName == "" {
		tableName = "events"
	}

	store := &GormEventStore{
		db:        db,
		registry:  registry,
		tableName: tableName,
	}
	store.txRun = func(ctx context.Context, fc func(tx *gorm.DB) error) error {
		return db.WithContext(ctx).Transaction(fc)
	}
	for _, opt := range opts {
		opt(store)
	}

	// 自动迁移
	// 注意：在生产环境建议通过专门的 migration 工具管理
	if err := db.Table(tableName).AutoMigrate(&EventModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate event table %s: %w", tableName, err)
	}
	if err := db.AutoMigrate(&SnapshotModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate snapshot table: %w", err)
	}

	return store, nil
}

// Save 实现 EventStore 接口。
func (s *GormEventStore) Save(ctx context.Context, aggregateID string, events []eventsourcing.DomainEvent, expectedVersion int64) error {
	if len(events) == 0 {
		return nil
	}

	err := s.txRun(ctx, func(tx *gorm.DB) error {
		// 1. 乐观锁检查：当前最大版本必须等于 expectedVersion
		var currentVersion int64
		err := tx.Table(s.tableName).
			Where("aggregate_id = ?", aggregateID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&currentVersion).Error
		if err != nil {
			return err
		}

		if currentVersion != expectedVersion {
			return fmt.Errorf("%w: aggregate %s expected version %d but store has %d",
				eventsourcing.ErrVersionConflict, aggregateID, expectedVersion, currentVersion)
		}

		// 2. 批量插入事件，版本从 expectedVersion+1 起连续递增
		eventModels := make([]*EventModel, 0, len(events))
		for i, event := range events {
			payload, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("failed to marshal payload of %s: %w", event.EventType(), err)
			}

			metadata, err := json.Marshal(event.Meta())
			if err != nil {
				return fmt.Errorf("failed to marshal metadata of %s: %w", event.EventType(), err)
			}

			eventModels = append(eventModels, &EventModel{
				EventID:     event.EventID(),
				AggregateID: aggregateID,
				Type:        event.EventType(),
				Version:     expectedVersion + int64(i) + 1,
				Payload:     string(payload),
				Metadata:    string(metadata),
				OccurredAt:  event.OccurredAt(),
			})
		}

		return tx.Table(s.tableName).Create(&eventModels).Error
	})
	if err != nil {
		// 并发写同一版本时 MAX(version) 检查可能双双通过，唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: aggregate %s expected version %d", eventsourcing.ErrVersionConflict, aggregateID, expectedVersion)
		}

		return err
	}

	return nil
}

// Load 实现 EventStore 接口。
func (s *GormEventStore) Load(ctx context.Context, aggregateID string) ([]eventsourcing.DomainEvent, error) {
	return s.LoadFromVersion(ctx, aggregateID, 0)
}

// LoadFromVersion 实现 EventStore 接口。
func (s *GormEventStore) LoadFromVersion(ctx context.Context, aggregateID string, fromVersion int64) ([]eventsourcing.DomainEvent, error) {
	var models []EventModel
	err := s.db.WithContext(ctx).Table(s.tableName).
		Where("aggregate_id = ? AND version >= ?", aggregateID, fromVersion).
		Order("version ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]eventsourcing.DomainEvent, 0, len(models))
	for _, model := range models {
		event, err := s.rehydrate(model)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

// ReadAll 实现 EventStream 接口。
func (s *GormEventStore) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]eventsourcing.StoredEvent, error) {
	var models []EventModel
	err := s.db.WithContext(ctx).Table(s.tableName).
		Where("id > ?", afterPosition).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	stream := make([]eventsourcing.StoredEvent, 0, len(models))
	for _, model := range models {
		event, err := s.rehydrate(model)
		if err != nil {
			return nil, err
		}
		stream = append(stream, eventsourcing.StoredEvent{
			Position: int64(model.ID),
			Event:    event,
		})
	}

	return stream, nil
}

// rehydrate 把持久化行还原为具体事件类型。
func (s *GormEventStore) rehydrate(model EventModel) (eventsourcing.DomainEvent, error) {
	var metadata eventsourcing.Metadata
	if len(model.Metadata) > 0 {
		if err := json.Unmarshal([]byte(model.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of event %d: %w", model.ID, err)
		}
	}

	base := eventsourcing.BaseEvent{
		ID:        model.EventID,
		Type:      model.Type,
		AggID:     model.AggregateID,
		Ver:       model.Version,
		Timestamp: model.OccurredAt,
		Metadata:  metadata,
	}

	return s.registry.Rehydrate(base, []byte(model.Payload))
}

// SaveSnapshot 实现 EventStore 接口。
func (s *GormEventStore) SaveSnapshot(ctx context.Context, aggregateID string, state []byte, version int64) error {
	snapshot := SnapshotModel{
		AggregateID: aggregateID,
		Version:     version,
		State:       string(state),
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "aggregate_id"}}, // 每个聚合只保留最新快照
		DoUpdates: clause.AssignmentColumns([]string{"version", "state", "updated_at"}),
	}).Create(&snapshot).Error
}

// GetSnapshot 实现 EventStore 接口。
func (s *GormEventStore) GetSnapshot(ctx context.Context, aggregateID string) ([]byte, int64, error) {
	var snapshot SnapshotModel
	err := s.db.WithContext(ctx).Where("aggregate_id = ?", aggregateID).First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, nil
		}

		return nil, 0, err
	}

	return []byte(snapshot.State), snapshot.Version, nil
}
