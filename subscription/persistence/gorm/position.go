// Package gormstore 提供基于 GORM 的消费位置持久化。
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/docstore/subscription"
)

// PositionModel 消费位置表结构。
type PositionModel struct {
	Consumer  string `gorm:"primaryKey;type:varchar(128)"`
	Position  int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName 指定表名。
func (PositionModel) TableName() string { return "subscription_positions" }

// GormPositionStore 基于关系库的消费位置存储。
type GormPositionStore struct {
	db *gorm.DB
}

var _ subscription.PositionStore = (*GormPositionStore)(nil)

// NewGormPositionStore 创建位置存储并自动迁移表结构。
func NewGormPositionStore(db *gorm.DB) (*GormPositionStore, error) {
	if err := db.AutoMigrate(&PositionModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate subscription positions table: %w", err)
	}

	return &GormPositionStore{db: db}, nil
}

// Load 实现 subscription.PositionStore。
func (s *GormPositionStore) Load(ctx context.Context, consumer string) (int64, error) {
	var model PositionModel
	err := s.db.WithContext(ctx).
		Where("consumer = ?", consumer).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to load position for consumer %s: %w", consumer, err)
	}

	return model.Position, nil
}

// Commit 实现 subscription.PositionStore。
func (s *GormPositionStore) Commit(ctx context.Context, consumer string, position int64) error {
	model := PositionModel{
		Consumer:  consumer,
		Position:  position,
		UpdatedAt: time.Now(),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "consumer"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to commit position for consumer %s: %w", consumer, err)
	}

	return nil
}
