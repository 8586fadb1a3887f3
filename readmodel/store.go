package readmodel

import (
	"context"
	"errors"
)

// 读模型存储错误分类，投影引擎据此区分跳过与完整性故障。
var (
	// ErrNotFound 文档不存在。
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyApplied 该版本（或更新版本）已经应用过，重复投递应跳过。
	ErrAlreadyApplied = errors.New("event already applied")
	// ErrVersionGap 事件版本与文档 last_applied_version 之间出现跳号，
	// 说明事件流被跳过或文档损坏，必须上抛而不是继续。
	ErrVersionGap = errors.New("version gap detected")
)

// Fields 一次条件更新要写入的字段集合，键为文档字段名。
type Fields map[string]any

// ArtifactStore 制品读模型存储。
type ArtifactStore interface {
	// Insert 写入创建事件对应的初始文档（last_applied_version=1）。
	// 文档已存在时返回 ErrAlreadyApplied。
	Insert(ctx context.Context, doc *ArtifactDocument) error

	// Update 条件更新：仅当文档的 last_applied_version == version-1 时应用
	// fields 并推进版本。旧版本返回 ErrAlreadyApplied，跳号或文档缺失返回
	// ErrVersionGap。
	Update(ctx context.Context, artifactID string, version int64, fields Fields) error

	// Get 按 ID 读取文档，不存在时返回 ErrNotFound。
	Get(ctx context.Context, artifactID string) (*ArtifactDocument, error)
}

// PageStore 页面读模型存储。
type PageStore interface {
	// Insert 写入创建事件对应的初始文档（last_applied_version=1）。
	Insert(ctx context.Context, doc *PageDocument) error

	// Update 条件更新，语义与 ArtifactStore.Update 一致。
	Update(ctx context.Context, pageID string, version int64, fields Fields) error

	// Get 按 ID 读取文档，不存在时返回 ErrNotFound。
	Get(ctx context.Context, pageID string) (*PageDocument, error)

	// ListByArtifact 列出某制品的全部页面（含软删除标记的），按 index 升序。
	ListByArtifact(ctx context.Context, artifactID string) ([]*PageDocument, error)
}
