// Package catalog owns quiz definitions. It is read-only from the
// attempt manager's perspective: nothing here mutates in response to
// attempt activity.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
	"github.com/opencampus/assess/internal/scoring"
)

// Store is the persistence boundary for quiz definitions.
type Store interface {
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
	InsertQuiz(ctx context.Context, quiz *domain.Quiz) error
	ListCourseQuizzes(ctx context.Context, courseID string) ([]domain.Quiz, error)
}

type Config struct {
	Store Store
}

type Service struct {
	store Store
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
	}
}

// GetQuiz returns the full definition, answer key included. Callers
// serving students must strip correctness flags before rendering.
func (s *Service) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	return s.store.GetQuiz(ctx, quizID)
}

func (s *Service) ListCourseQuizzes(ctx context.Context, courseID string) ([]domain.Quiz, error) {
	return s.store.ListCourseQuizzes(ctx, courseID)
}

// WithinWindow reports whether now falls inside the quiz's attempt
// window, bounds inclusive.
func WithinWindow(quiz *domain.Quiz, now time.Time) bool {
	return !now.Before(quiz.StartAt) && !now.After(quiz.EndAt)
}

type CreateQuizRequest struct {
	CourseID string
	Title    string

	Questions []CreateQuestion

	TimeLimitMinutes int
	AttemptsAllowed  int
	StartAt          time.Time
	EndAt            time.Time

	RandomizeQuestions bool
	RandomizeOptions   bool
	ShowResults        bool
	ShowCorrectAnswers bool
	RequirePassword    bool
	Password           string

	Active bool
}

type CreateQuestion struct {
	Type          domain.QuestionType
	Text          string
	Options       []CreateOption
	CorrectAnswer string
	Points        decimal.Decimal
	Explanation   string
}

type CreateOption struct {
	Text    string
	Correct bool
}

// CreateQuiz validates and persists a quiz definition. TotalPoints is
// recomputed from the questions; a caller-supplied total is never
// trusted.
func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate quiz ID: %w", err)
	}

	quiz := &domain.Quiz{
		QuizID:   id.String(),
		CourseID: req.CourseID,
		Title:    req.Title,

		TimeLimitMinutes: req.TimeLimitMinutes,
		AttemptsAllowed:  req.AttemptsAllowed,
		StartAt:          req.StartAt,
		EndAt:            req.EndAt,

		RandomizeQuestions: req.RandomizeQuestions,
		RandomizeOptions:   req.RandomizeOptions,
		ShowResults:        req.ShowResults,
		ShowCorrectAnswers: req.ShowCorrectAnswers,
		RequirePassword:    req.RequirePassword,
		Password:           req.Password,

		Active: req.Active,
	}

	for i, cq := range req.Questions {
		q := domain.Question{
			QuestionID:    uuid.NewString(),
			Type:          cq.Type,
			Text:          cq.Text,
			CorrectAnswer: cq.CorrectAnswer,
			Points:        cq.Points,
			Explanation:   cq.Explanation,
			Position:      i + 1,
		}
		for _, co := range cq.Options {
			q.Options = append(q.Options, domain.Option{
				OptionID: uuid.NewString(),
				Text:     co.Text,
				Correct:  co.Correct,
			})
		}
		quiz.Questions = append(quiz.Questions, q)
	}

	quiz.TotalPoints = scoring.TotalPoints(quiz.Questions)

	if err := s.store.InsertQuiz(ctx, quiz); err != nil {
		return nil, err
	}

	return quiz, nil
}

func validateCreate(req CreateQuizRequest) error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef(format, args...))
	}

	if req.CourseID == "" {
		return invalid("course_id is required")
	}
	if req.Title == "" {
		return invalid("title is required")
	}
	if len(req.Questions) == 0 {
		return invalid("a quiz needs at least one question")
	}
	if req.TimeLimitMinutes <= 0 {
		return invalid("time_limit_minutes must be positive")
	}
	if req.AttemptsAllowed < 1 {
		return invalid("attempts_allowed must be at least 1")
	}
	if !req.EndAt.After(req.StartAt) {
		return invalid("end_at must be after start_at")
	}
	if req.RequirePassword && req.Password == "" {
		return invalid("password is required when require_password is set")
	}

	one := decimal.NewFromInt(1)
	for i, q := range req.Questions {
		if q.Text == "" {
			return invalid("question %d: text is required", i+1)
		}
		if q.Points.LessThan(one) {
			return invalid("question %d: points must be at least 1", i+1)
		}

		switch q.Type {
		case domain.QuestionMultipleChoice, domain.QuestionTrueFalse:
			correct := 0
			for _, o := range q.Options {
				if o.Correct {
					correct++
				}
			}
			if len(q.Options) < 2 {
				return invalid("question %d: needs at least two options", i+1)
			}
			if correct == 0 {
				return invalid("question %d: needs at least one correct option", i+1)
			}
		case domain.QuestionShortAnswer:
			if q.CorrectAnswer == "" {
				return invalid("question %d: correct_answer is required", i+1)
			}
		case domain.QuestionEssay:
			// Nothing to validate; essays are graded manually.
		default:
			return invalid("question %d: unknown type %q", i+1, q.Type)
		}
	}

	return nil
}
