package attempt

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
)

const codeUniqueViolation = "23505"

// PostgresStore persists attempts. The unique index on
// (quiz_id, student_id, attempt_number) is what makes two racing start
// calls resolve to one winner.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, att *domain.Attempt) error {
	const stmt = `
INSERT INTO attempts (
	attempt_id, quiz_id, course_id, student_id, attempt_number,
	status, started_at, time_limit_minutes, max_score, answers
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	answers, err := json.Marshal(att.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	_, err = s.db.Exec(ctx, stmt,
		att.AttemptID, att.QuizID, att.CourseID, att.StudentID, att.AttemptNumber,
		att.Status, att.StartedAt, att.TimeLimitMinutes, att.MaxScore, answers,
	)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyInProgress,
			errors.WithMessagef("attempt already started: quiz=%s student=%s", att.QuizID, att.StudentID),
			errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	return nil
}

func (s *PostgresStore) Get(ctx context.Context, attemptID string) (*domain.Attempt, error) {
	const stmt = selectAttempt + ` WHERE attempt_id = $1;`

	att, err := scanAttempt(s.db.QueryRow(ctx, stmt, attemptID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt not found: attempt=%s", attemptID))
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	return att, nil
}

func (s *PostgresStore) List(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	const stmt = selectAttempt + ` WHERE quiz_id = $1 AND student_id = $2 ORDER BY attempt_number;`

	rows, err := s.db.Query(ctx, stmt, quizID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Attempt, error) {
		att, err := scanAttempt(r)
		if err != nil {
			return domain.Attempt{}, err
		}
		return *att, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	return attempts, nil
}

// SaveAnswers overwrites the answer sheet of an attempt that is still
// in progress. Closed attempts reject the write.
func (s *PostgresStore) SaveAnswers(ctx context.Context, attemptID string, answers []domain.Answer) error {
	const stmt = `
UPDATE attempts SET answers = $2
WHERE attempt_id = $1 AND status = 'in_progress';`

	b, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	tag, err := s.db.Exec(ctx, stmt, attemptID, b)
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeAlreadySubmitted,
			errors.WithMessagef("attempt is closed: attempt=%s", attemptID))
	}

	return nil
}

// Close is the single read-modify-write that moves an attempt out of
// in_progress. The status guard in the WHERE clause makes concurrent
// submits resolve to exactly one winner.
func (s *PostgresStore) Close(ctx context.Context, att *domain.Attempt) error {
	const stmt = `
UPDATE attempts SET
	status = $2, completed_at = $3, answers = $4,
	total_score = $5, percentage = $6, grade = $7, time_spent_seconds = $8
WHERE attempt_id = $1 AND status = 'in_progress';`

	answers, err := json.Marshal(att.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	tag, err := s.db.Exec(ctx, stmt,
		att.AttemptID, att.Status, att.CompletedAt, answers,
		att.TotalScore, att.Percentage, att.Grade, att.TimeSpentSeconds,
	)
	if err != nil {
		return fmt.Errorf("close attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeAlreadySubmitted,
			errors.WithMessagef("attempt is already closed: attempt=%s", att.AttemptID))
	}

	return nil
}

// UpdateGrading rewrites scores after an instructor grades an essay
// answer. The attempt stays in its terminal status.
func (s *PostgresStore) UpdateGrading(ctx context.Context, att *domain.Attempt) error {
	const stmt = `
UPDATE attempts SET
	answers = $2, total_score = $3, percentage = $4, grade = $5
WHERE attempt_id = $1;`

	answers, err := json.Marshal(att.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	_, err = s.db.Exec(ctx, stmt, att.AttemptID, answers, att.TotalScore, att.Percentage, att.Grade)
	if err != nil {
		return fmt.Errorf("update grading: %w", err)
	}

	return nil
}

const selectAttempt = `
SELECT attempt_id, quiz_id, course_id, student_id, attempt_number,
       status, started_at, completed_at, time_limit_minutes, max_score,
       answers, total_score, percentage, grade, time_spent_seconds
FROM attempts`

type row interface {
	Scan(dest ...any) error
}

func scanAttempt(r row) (*domain.Attempt, error) {
	var (
		att     domain.Attempt
		answers []byte
	)

	err := r.Scan(
		&att.AttemptID, &att.QuizID, &att.CourseID, &att.StudentID, &att.AttemptNumber,
		&att.Status, &att.StartedAt, &att.CompletedAt, &att.TimeLimitMinutes, &att.MaxScore,
		&answers, &att.TotalScore, &att.Percentage, &att.Grade, &att.TimeSpentSeconds,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(answers, &att.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}

	return &att, nil
}

// Migrate creates the attempts table when missing. The unique index is
// load-bearing; see Insert.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	attempt_id         TEXT PRIMARY KEY,
	quiz_id            TEXT NOT NULL,
	course_id          TEXT NOT NULL,
	student_id         TEXT NOT NULL,
	attempt_number     INT NOT NULL,
	status             TEXT NOT NULL,
	started_at         TIMESTAMPTZ NOT NULL,
	completed_at       TIMESTAMPTZ,
	time_limit_minutes INT NOT NULL,
	max_score          NUMERIC NOT NULL,
	answers            JSONB NOT NULL DEFAULT '[]',
	total_score        NUMERIC NOT NULL DEFAULT 0,
	percentage         INT NOT NULL DEFAULT 0,
	grade              TEXT NOT NULL DEFAULT '',
	time_spent_seconds INT NOT NULL DEFAULT 0,
	UNIQUE (quiz_id, student_id, attempt_number)
);
CREATE INDEX IF NOT EXISTS idx_attempts_quiz_student ON attempts (quiz_id, student_id);`

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate attempts: %w", err)
	}
	return nil
}
