package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/docstore/artifact"
	"github.com/wyfcoding/docstore/eventsourcing"
	esmem "github.com/wyfcoding/docstore/eventsourcing/persistence/memory"
	"github.com/wyfcoding/docstore/workflow"
)

// flakyEventStore 包装真实存储，按聚合注入若干次版本冲突，
// 用于验证提交冲突的重试路径。
type flakyEventStore struct {
	eventsourcing.EventStore

	mu        sync.Mutex
	conflicts map[string]int
}

func newFlakyEventStore(store eventsourcing.EventStore) *flakyEventStore {
	return &flakyEventStore{EventStore: store, conflicts: make(map[string]int)}
}

func (s *flakyEventStore) injectConflicts(aggregateID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conflicts[aggregateID] = count
}

func (s *flakyEventStore) Save(ctx context.Context, aggregateID string, events []eventsourcing.DomainEvent, expectedVersion int64) error {
	s.mu.Lock()
	if remaining := s.conflicts[aggregateID]; remaining > 0 {
		s.conflicts[aggregateID] = remaining - 1
		s.mu.Unlock()

		return fmt.Errorf("%w: injected conflict for %s", eventsourcing.ErrVersionConflict, aggregateID)
	}
	s.mu.Unlock()

	return s.EventStore.Save(ctx, aggregateID, events, expectedVersion)
}

type startCall struct {
	name        workflow.Name
	aggregateID string
	arg         any
}

type fakeStarter struct {
	calls []startCall
	err   error
}

func (f *fakeStarter) Start(_ context.Context, name workflow.Name, aggregateID string, arg any) error {
	f.calls = append(f.calls, startCall{name: name, aggregateID: aggregateID, arg: arg})

	return f.err
}

// capturePublisher 记录发布的集成通知。
type capturePublisher struct {
	events []eventsourcing.DomainEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event eventsourcing.DomainEvent) error {
	p.events = append(p.events, event)

	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func seedArtifact(t *testing.T, repo eventsourcing.AggregateRepository[*artifact.Artifact]) *artifact.Artifact {
	t.Helper()

	a, err := artifact.Create("s3://bucket/paper.pdf", "paper.pdf",
		artifact.TypeResearchArticle, artifact.MimeTypePDF, "raw/paper.pdf")
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), a))

	return a
}

// countEvents 统计指定聚合事件流中某类型事件的数量。
func countEvents(t *testing.T, store *esmem.MemoryEventStore, aggregateID, eventType string) int {
	t.Helper()

	events, err := store.Load(context.Background(), aggregateID)
	require.NoError(t, err)

	count := 0
	for _, event := range events {
		if event.EventType() == eventType {
			count++
		}
	}

	return count
}
