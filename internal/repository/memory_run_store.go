package repository

import (
	"context"
	"sync"

	"Pattas/internal/domain/models"
)

// MemoryRunStore keeps the last N runs in a ring buffer.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []models.Run
	next int
	full bool
}

func NewMemoryRunStore(size int) *MemoryRunStore {
	if size <= 0 {
		size = 100
	}
	return &MemoryRunStore{runs: make([]models.Run, size)}
}

func (s *MemoryRunStore) Save(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[s.next] = *run
	s.next = (s.next + 1) % len(s.runs)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *MemoryRunStore) Recent(_ context.Context, limit int) ([]models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.next
	if s.full {
		n = len(s.runs)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]models.Run, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.runs)) % len(s.runs)
		out = append(out, s.runs[idx])
	}
	return out, nil
}
