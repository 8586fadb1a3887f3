// Package memstore 提供进程内读模型存储实现，语义与 MongoDB 实现保持一致，
// 供测试与本地开发使用。字段合并通过 bson 序列化往返完成，复用文档上的 bson 标签。
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/wyfcoding/docstore/readmodel"
)

// ArtifactStore 进程内制品读模型存储。
type ArtifactStore struct {
	mu   sync.RWMutex
	docs map[string]*readmodel.ArtifactDocument
}

// NewArtifactStore 创建空的制品读模型存储。
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{docs: make(map[string]*readmodel.ArtifactDocument)}
}

// Insert 实现 readmodel.ArtifactStore。
func (s *ArtifactStore) Insert(ctx context.Context, doc *readmodel.ArtifactDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ArtifactID]; ok {
		return fmt.Errorf("%w: artifact %s", readmodel.ErrAlreadyApplied, doc.ArtifactID)
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	stored := new(readmodel.ArtifactDocument)
	if err := deepCopy(doc, stored); err != nil {
		return fmt.Errorf("failed to store artifact document: %w", err)
	}
	s.docs[doc.ArtifactID] = stored

	return nil
}

// Update 实现 readmodel.ArtifactStore。
func (s *ArtifactStore) Update(ctx context.Context, artifactID string, version int64, fields readmodel.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[artifactID]
	if !ok {
		return fmt.Errorf("%w: artifact %s missing for version %d", readmodel.ErrVersionGap, artifactID, version)
	}
	if doc.LastAppliedVersion >= version {
		return fmt.Errorf("%w: artifact %s at version %d, event version %d",
			readmodel.ErrAlreadyApplied, artifactID, doc.LastAppliedVersion, version)
	}
	if doc.LastAppliedVersion != version-1 {
		return fmt.Errorf("%w: artifact %s at version %d, event version %d",
			readmodel.ErrVersionGap, artifactID, doc.LastAppliedVersion, version)
	}

	if err := applyFields(doc, version, fields); err != nil {
		return fmt.Errorf("failed to update artifact document %s: %w", artifactID, err)
	}

	return nil
}

// Get 实现 readmodel.ArtifactStore。
func (s *ArtifactStore) Get(ctx context.Context, artifactID string) (*readmodel.ArtifactDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[artifactID]
	if !ok {
		return nil, fmt.Errorf("%w: artifact %s", readmodel.ErrNotFound, artifactID)
	}

	out := new(readmodel.ArtifactDocument)
	if err := deepCopy(doc, out); err != nil {
		return nil, fmt.Errorf("failed to load artifact document: %w", err)
	}

	return out, nil
}

// PageStore 进程内页面读模型存储。
type PageStore struct {
	mu   sync.RWMutex
	docs map[string]*readmodel.PageDocument
}

// NewPageStore 创建空的页面读模型存储。
func NewPageStore() *PageStore {
	return &PageStore{docs: make(map[string]*readmodel.PageDocument)}
}

// Insert 实现 readmodel.PageStore。
func (s *PageStore) Insert(ctx context.Context, doc *readmodel.PageDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.PageID]; ok {
		return fmt.Errorf("%w: page %s", readmodel.ErrAlreadyApplied, doc.PageID)
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	stored := new(readmodel.PageDocument)
	if err := deepCopy(doc, stored); err != nil {
		return fmt.Errorf("failed to store page document: %w", err)
	}
	s.docs[doc.PageID] = stored

	return nil
}

// Update 实现 readmodel.PageStore。
func (s *PageStore) Update(ctx context.Context, pageID string, version int64, fields readmodel.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[pageID]
	if !ok {
		return fmt.Errorf("%w: page %s missing for version %d", readmodel.ErrVersionGap, pageID, version)
	}
	if doc.LastAppliedVersion >= version {
		return fmt.Errorf("%w: page %s at version %d, event version %d",
			readmodel.ErrAlreadyApplied, pageID, doc.LastAppliedVersion, version)
	}
	if doc.LastAppliedVersion != version-1 {
		return fmt.Errorf("%w: page %s at version %d, event version %d",
			readmodel.ErrVersionGap, pageID, doc.LastAppliedVersion, version)
	}

	if err := applyFields(doc, version, fields); err != nil {
		return fmt.Errorf("failed to update page document %s: %w", pageID, err)
	}

	return nil
}

// Get 实现 readmodel.PageStore。
func (s *PageStore) Get(ctx context.Context, pageID string) (*readmodel.PageDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[pageID]
	if !ok {
		return nil, fmt.Errorf("%w: page %s", readmodel.ErrNotFound, pageID)
	}

	out := new(readmodel.PageDocument)
	if err := deepCopy(doc, out); err != nil {
		return nil, fmt.Errorf("failed to load page document: %w", err)
	}

	return out, nil
}

// ListByArtifact 实现 readmodel.PageStore。
func (s *PageStore) ListByArtifact(ctx context.Context, artifactID string) ([]*readmodel.PageDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*readmodel.PageDocument
	for _, doc := range s.docs {
		if doc.ArtifactID != artifactID {
			continue
		}

		out := new(readmodel.PageDocument)
		if err := deepCopy(doc, out); err != nil {
			return nil, fmt.Errorf("failed to load page document: %w", err)
		}
		docs = append(docs, out)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Index < docs[j].Index })

	return docs, nil
}

// applyFields 将字段补丁合并进文档，字段名与 bson 标签对应。
func applyFields(target any, version int64, fields readmodel.Fields) error {
	raw, err := bson.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	var merged bson.M
	if err := bson.Unmarshal(raw, &merged); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}

	for key, value := range fields {
		merged[key] = value
	}
	merged["last_applied_version"] = version
	merged["updated_at"] = time.Now()

	patched, err := bson.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode patched document: %w", err)
	}
	if err := bson.Unmarshal(patched, target); err != nil {
		return fmt.Errorf("failed to decode patched document: %w", err)
	}

	return nil
}

func deepCopy(src, dst any) error {
	raw, err := bson.Marshal(src)
	if err != nil {
		return err
	}

	return bson.Unmarshal(raw, dst)
}
