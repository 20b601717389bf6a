package progress

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
)

// PostgresStore keeps one jsonb document per (student, course), written
// whole on every recompute.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, studentID, courseID string) (*domain.Progress, error) {
	const stmt = `SELECT doc FROM progress WHERE student_id = $1 AND course_id = $2;`

	var doc []byte
	err := s.db.QueryRow(ctx, stmt, studentID, courseID).Scan(&doc)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no progress: student=%s course=%s", studentID, courseID))
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	var p domain.Progress
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}

	return &p, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p *domain.Progress) error {
	const stmt = `
INSERT INTO progress (student_id, course_id, doc)
VALUES ($1, $2, $3)
ON CONFLICT (student_id, course_id) DO UPDATE SET doc = EXCLUDED.doc;`

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	if _, err := s.db.Exec(ctx, stmt, p.StudentID, p.CourseID, doc); err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}

	return nil
}

// Migrate creates the progress table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS progress (
	student_id TEXT NOT NULL,
	course_id  TEXT NOT NULL,
	doc        JSONB NOT NULL,
	PRIMARY KEY (student_id, course_id)
);`

	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate progress: %w", err)
	}
	return nil
}
