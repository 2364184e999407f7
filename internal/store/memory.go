package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mohammad-safakhou/scholar/internal/research"
)

// MemoryStore keeps tasks in process memory. Snapshots are stored, not the
// live pointers, so a running pipeline never races its own readers.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string][]byte
	order []string
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string][]byte)}
}

func (s *MemoryStore) SaveTask(ctx context.Context, task *research.ResearchTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; !exists {
		s.order = append(s.order, task.ID)
	}
	s.tasks[task.ID] = data
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, id string) (*research.ResearchTask, error) {
	s.mu.RLock()
	data, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	var task research.ResearchTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	return &task, nil
}

func (s *MemoryStore) ListTasks(ctx context.Context) ([]*research.ResearchTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*research.ResearchTask, 0, len(s.order))
	for _, id := range s.order {
		var task research.ResearchTask
		if err := json.Unmarshal(s.tasks[id], &task); err != nil {
			return nil, fmt.Errorf("decoding task %s: %w", id, err)
		}
		out = append(out, &task)
	}
	return out, nil
}
