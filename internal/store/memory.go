package store

import (
	"context"
	"sort"
	"sync"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

// MemoryStore is an in-process Store. It backs single-process demo mode and
// tests; its idempotency set is process-local, so multi-process deployments
// need the postgres store.
type MemoryStore struct {
	mu            sync.RWMutex
	messages      map[string]model.Message
	tasks         map[string]model.ExtractedTask
	platformTasks map[string]model.PlatformTask // keyed by source event ID
	order         []string                      // platform task event IDs in insert order
	msgOrder      []string
	taskOrder     []string
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:      make(map[string]model.Message),
		tasks:         make(map[string]model.ExtractedTask),
		platformTasks: make(map[string]model.PlatformTask),
	}
}

func (s *MemoryStore) SaveMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; !ok {
		s.msgOrder = append(s.msgOrder, m.ID)
	}
	s.messages[m.ID] = *m
	return nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, limit int) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Message, 0, len(s.msgOrder))
	for _, id := range s.msgOrder {
		m := s.messages[id]
		out = append(out, &m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveTask(_ context.Context, t *model.ExtractedTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		s.taskOrder = append(s.taskOrder, t.ID)
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, id string) (*model.ExtractedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *MemoryStore) ListTasks(_ context.Context, limit int) ([]*model.ExtractedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ExtractedTask, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		t := s.tasks[id]
		out = append(out, &t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) SavePlatformTask(_ context.Context, eventID string, t *model.PlatformTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// First write wins; redelivery must not overwrite the recorded outcome.
	if _, ok := s.platformTasks[eventID]; ok {
		return nil
	}
	s.platformTasks[eventID] = *t
	s.order = append(s.order, eventID)
	return nil
}

func (s *MemoryStore) PlatformTaskForEvent(_ context.Context, eventID string) (*model.PlatformTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.platformTasks[eventID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *MemoryStore) ListPlatformTasks(_ context.Context, limit int) ([]*model.PlatformTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.platformTasks[ids[i]].CreatedAt.Before(s.platformTasks[ids[j]].CreatedAt)
	})
	out := make([]*model.PlatformTask, 0, len(ids))
	for _, id := range ids {
		t := s.platformTasks[id]
		out = append(out, &t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
