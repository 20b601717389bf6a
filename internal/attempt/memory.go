package attempt

import (
	"context"
	"sort"
	"sync"

	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
)

// MemoryStore is an in-memory Store with the same atomicity guarantees
// as the postgres one, used in tests.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string]domain.Attempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[string]domain.Attempt),
	}
}

func (s *MemoryStore) Insert(_ context.Context, att *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.attempts {
		if existing.QuizID == att.QuizID &&
			existing.StudentID == att.StudentID &&
			existing.AttemptNumber == att.AttemptNumber {
			return errors.New(errors.CodeAlreadyInProgress,
				errors.WithMessagef("attempt already started: quiz=%s student=%s", att.QuizID, att.StudentID))
		}
	}

	s.attempts[att.AttemptID] = *cloneAttempt(*att)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, attemptID string) (*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	att, ok := s.attempts[attemptID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt not found: attempt=%s", attemptID))
	}

	return cloneAttempt(att), nil
}

func (s *MemoryStore) List(_ context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var attempts []domain.Attempt
	for _, att := range s.attempts {
		if att.QuizID == quizID && att.StudentID == studentID {
			attempts = append(attempts, *cloneAttempt(att))
		}
	}

	sort.Slice(attempts, func(i, j int) bool {
		return attempts[i].AttemptNumber < attempts[j].AttemptNumber
	})

	return attempts, nil
}

func (s *MemoryStore) SaveAnswers(_ context.Context, attemptID string, answers []domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	att, ok := s.attempts[attemptID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt not found: attempt=%s", attemptID))
	}
	if att.Status != domain.AttemptInProgress {
		return errors.New(errors.CodeAlreadySubmitted,
			errors.WithMessagef("attempt is closed: attempt=%s", attemptID))
	}

	att.Answers = append([]domain.Answer(nil), answers...)
	s.attempts[attemptID] = att
	return nil
}

func (s *MemoryStore) Close(_ context.Context, att *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.attempts[att.AttemptID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt not found: attempt=%s", att.AttemptID))
	}
	if stored.Status != domain.AttemptInProgress {
		return errors.New(errors.CodeAlreadySubmitted,
			errors.WithMessagef("attempt is already closed: attempt=%s", att.AttemptID))
	}

	s.attempts[att.AttemptID] = *cloneAttempt(*att)
	return nil
}

func (s *MemoryStore) UpdateGrading(_ context.Context, att *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[att.AttemptID]; !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt not found: attempt=%s", att.AttemptID))
	}

	s.attempts[att.AttemptID] = *cloneAttempt(*att)
	return nil
}

func cloneAttempt(att domain.Attempt) *domain.Attempt {
	c := att
	c.Answers = make([]domain.Answer, len(att.Answers))
	for i, a := range att.Answers {
		c.Answers[i] = a
		c.Answers[i].SelectedOptions = append([]string(nil), a.SelectedOptions...)
		if a.Correct != nil {
			v := *a.Correct
			c.Answers[i].Correct = &v
		}
	}
	if att.CompletedAt != nil {
		t := *att.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
