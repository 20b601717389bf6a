package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
)

// MemoryStore is an in-memory Store used in tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes: make(map[string]domain.Quiz),
	}
}

func (s *MemoryStore) GetQuiz(_ context.Context, quizID string) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: quiz=%s", quizID))
	}

	return cloneQuiz(q), nil
}

func (s *MemoryStore) InsertQuiz(_ context.Context, quiz *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quizzes[quiz.QuizID] = *cloneQuiz(*quiz)
	return nil
}

func (s *MemoryStore) ListCourseQuizzes(_ context.Context, courseID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var quizzes []domain.Quiz
	for _, q := range s.quizzes {
		if q.CourseID == courseID {
			quizzes = append(quizzes, *cloneQuiz(q))
		}
	}

	sort.Slice(quizzes, func(i, j int) bool {
		return quizzes[i].StartAt.Before(quizzes[j].StartAt)
	})

	return quizzes, nil
}

func cloneQuiz(q domain.Quiz) *domain.Quiz {
	c := q
	c.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		c.Questions[i] = question
		c.Questions[i].Options = append([]domain.Option(nil), question.Options...)
	}
	return &c
}
