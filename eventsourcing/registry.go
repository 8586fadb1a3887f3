package eventsourcing

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Rehydrator 事件回放时恢复信封的接口，BaseEvent 已实现。
type Rehydrator interface {
	RestoreBase(base BaseEvent)
}

// Registry 事件类型注册表，存储层用它把持久化行还原为具体事件类型。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func() DomainEvent
}

// NewRegistry 创建事件类型注册表。
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func() DomainEvent),
	}
}

// Register 注册事件类型工厂，重复注册以后者为准。
func (r *Registry) Register(eventType string, factory func() DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[eventType] = factory
}

// Known 判断事件类型是否已注册。
func (r *Registry) Known(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[eventType]

	return ok
}

// Rehydrate 根据信封与载荷还原具体事件。未注册类型返回 ErrUnknownEventType。
func (r *Registry) Rehydrate(base BaseEvent, payload []byte) (DomainEvent, error) {
	r.mu.RLock()
	factory, ok := r.factories[base.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, base.Type)
	}

	event := factory()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload of %s: %w", base.Type, err)
		}
	}

	if rehydrator, ok := event.(Rehydrator); ok {
		rehydrator.RestoreBase(base)
	}

	return event, nil
}
