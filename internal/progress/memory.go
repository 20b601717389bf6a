package progress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
)

// MemoryStore is an in-memory Store used in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
	}
}

func (s *MemoryStore) Get(_ context.Context, studentID, courseID string) (*domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.records[studentID+"/"+courseID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no progress: student=%s course=%s", studentID, courseID))
	}

	var p domain.Progress
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *MemoryStore) Upsert(_ context.Context, p *domain.Progress) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[p.StudentID+"/"+p.CourseID] = doc
	return nil
}
