package catalog

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
)

// PostgresStore persists quizzes with their questions embedded as a
// jsonb document; questions have no lifecycle of their own.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	const stmt = `
SELECT quiz_id, course_id, title, questions, total_points,
       time_limit_minutes, attempts_allowed, start_at, end_at,
       randomize_questions, randomize_options, show_results,
       show_correct_answers, require_password, password, active
FROM quizzes
WHERE quiz_id = $1;`

	q, err := scanQuiz(s.db.QueryRow(ctx, stmt, quizID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: quiz=%s", quizID))
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	return q, nil
}

func (s *PostgresStore) InsertQuiz(ctx context.Context, quiz *domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (
	quiz_id, course_id, title, questions, total_points,
	time_limit_minutes, attempts_allowed, start_at, end_at,
	randomize_questions, randomize_options, show_results,
	show_correct_answers, require_password, password, active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);`

	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	_, err = s.db.Exec(ctx, stmt,
		quiz.QuizID, quiz.CourseID, quiz.Title, questions, quiz.TotalPoints,
		quiz.TimeLimitMinutes, quiz.AttemptsAllowed, quiz.StartAt, quiz.EndAt,
		quiz.RandomizeQuestions, quiz.RandomizeOptions, quiz.ShowResults,
		quiz.ShowCorrectAnswers, quiz.RequirePassword, quiz.Password, quiz.Active,
	)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListCourseQuizzes(ctx context.Context, courseID string) ([]domain.Quiz, error) {
	const stmt = `
SELECT quiz_id, course_id, title, questions, total_points,
       time_limit_minutes, attempts_allowed, start_at, end_at,
       randomize_questions, randomize_options, show_results,
       show_correct_answers, require_password, password, active
FROM quizzes
WHERE course_id = $1
ORDER BY start_at;`

	rows, err := s.db.Query(ctx, stmt, courseID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	quizzes, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Quiz, error) {
		q, err := scanQuiz(r)
		if err != nil {
			return domain.Quiz{}, err
		}
		return *q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	return quizzes, nil
}

type row interface {
	Scan(dest ...any) error
}

func scanQuiz(r row) (*domain.Quiz, error) {
	var (
		q         domain.Quiz
		questions []byte
		total     decimal.Decimal
	)

	err := r.Scan(
		&q.QuizID, &q.CourseID, &q.Title, &questions, &total,
		&q.TimeLimitMinutes, &q.AttemptsAllowed, &q.StartAt, &q.EndAt,
		&q.RandomizeQuestions, &q.RandomizeOptions, &q.ShowResults,
		&q.ShowCorrectAnswers, &q.RequirePassword, &q.Password, &q.Active,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questions, &q.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	q.TotalPoints = total

	return &q, nil
}

// Migrate creates the quizzes table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS quizzes (
	quiz_id              TEXT PRIMARY KEY,
	course_id            TEXT NOT NULL,
	title                TEXT NOT NULL,
	questions            JSONB NOT NULL DEFAULT '[]',
	total_points         NUMERIC NOT NULL DEFAULT 0,
	time_limit_minutes   INT NOT NULL,
	attempts_allowed     INT NOT NULL,
	start_at             TIMESTAMPTZ NOT NULL,
	end_at               TIMESTAMPTZ NOT NULL,
	randomize_questions  BOOLEAN NOT NULL DEFAULT FALSE,
	randomize_options    BOOLEAN NOT NULL DEFAULT FALSE,
	show_results         BOOLEAN NOT NULL DEFAULT TRUE,
	show_correct_answers BOOLEAN NOT NULL DEFAULT FALSE,
	require_password     BOOLEAN NOT NULL DEFAULT FALSE,
	password             TEXT NOT NULL DEFAULT '',
	active               BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_quizzes_course ON quizzes (course_id);`

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate quizzes: %w", err)
	}
	return nil
}
