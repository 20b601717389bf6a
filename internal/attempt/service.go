// Package attempt implements the state machine governing a student's
// attempt at a quiz: start, autosave, submit, lazy timeout and the
// instructor essay re-grade. Once an attempt reaches a terminal status
// its answers are immutable.
package attempt

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opencampus/assess/internal/catalog"
	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
	"github.com/opencampus/assess/internal/event"
	"github.com/opencampus/assess/internal/scoring"
)

// Catalog is the read-only quiz definition collaborator.
type Catalog interface {
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
}

// Store is the persistence boundary for attempts. Insert must enforce
// the (quiz_id, student_id, attempt_number) uniqueness atomically, and
// Close must be a compare-and-swap from in_progress so two concurrent
// submits resolve to exactly one winner.
type Store interface {
	Insert(ctx context.Context, att *domain.Attempt) error
	Get(ctx context.Context, attemptID string) (*domain.Attempt, error)
	List(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error)
	SaveAnswers(ctx context.Context, attemptID string, answers []domain.Answer) error
	Close(ctx context.Context, att *domain.Attempt) error
	UpdateGrading(ctx context.Context, att *domain.Attempt) error
}

type Config struct {
	Catalog  Catalog
	Store    Store
	EventBus *event.Bus

	// Now is the server clock; client-reported elapsed time is never
	// trusted. Defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	catalog Catalog
	store   Store
	eb      *event.Bus
	now     func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		catalog: c.Catalog,
		store:   c.Store,
		eb:      c.EventBus,
		now:     now,
	}
}

type StartRequest struct {
	QuizID    string
	StudentID string
	Password  string
}

type StartResponse struct {
	Attempt *domain.Attempt

	// Questions is the answer-key-free view handed to the student, in
	// the order they should be presented.
	Questions []domain.Question

	// Resumed is set when the student already had an attempt in
	// progress; a retried start is idempotent.
	Resumed bool
}

// Start creates a new in-progress attempt, or returns the existing one
// when the student already has an attempt in progress on this quiz.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	quiz, err := s.catalog.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	if !quiz.Active {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz is not published: quiz=%s", req.QuizID))
	}

	now := s.now()
	if !catalog.WithinWindow(quiz, now) {
		return nil, errors.New(errors.CodeWindowClosed,
			errors.WithMessagef("quiz window is closed: quiz=%s", req.QuizID))
	}

	if quiz.RequirePassword && req.Password != quiz.Password {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("wrong quiz password: quiz=%s", req.QuizID))
	}

	prior, err := s.listExpired(ctx, quiz, req.StudentID, now)
	if err != nil {
		return nil, err
	}

	for i := range prior {
		if prior[i].Status == domain.AttemptInProgress {
			att := prior[i]
			return &StartResponse{
				Attempt:   &att,
				Questions: presentQuestions(quiz),
				Resumed:   true,
			}, nil
		}
	}

	if len(prior) >= quiz.AttemptsAllowed {
		return nil, errors.New(errors.CodeAttemptLimit,
			errors.WithMessagef("attempt limit reached: quiz=%s allowed=%d", req.QuizID, quiz.AttemptsAllowed))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	att := &domain.Attempt{
		AttemptID:     id.String(),
		QuizID:        quiz.QuizID,
		CourseID:      quiz.CourseID,
		StudentID:     req.StudentID,
		AttemptNumber: len(prior) + 1,
		Status:        domain.AttemptInProgress,
		StartedAt:     now,

		TimeLimitMinutes: quiz.TimeLimitMinutes,
		MaxScore:         quiz.TotalPoints,
	}

	if err := s.store.Insert(ctx, att); err != nil {
		return nil, err
	}

	return &StartResponse{
		Attempt:   att,
		Questions: presentQuestions(quiz),
	}, nil
}

type SubmitAnswer struct {
	QuestionID       string
	Text             string
	SelectedOptions  []string
	TimeSpentSeconds int
}

type SubmitRequest struct {
	QuizID    string
	StudentID string
	Answers   []SubmitAnswer
}

type SubmitResponse struct {
	Attempt *domain.Attempt

	// ShowResults mirrors the quiz flag so the transport layer knows
	// whether to reveal scores.
	ShowResults bool
}

// Submit closes the caller's in-progress attempt on the quiz, scoring
// it synchronously before the write. A submission past the time limit
// is still accepted but lands in timeout instead of completed.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	quiz, err := s.catalog.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.store.List(ctx, req.QuizID, req.StudentID)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no attempt to submit: quiz=%s", req.QuizID))
	}

	var att *domain.Attempt
	for i := range attempts {
		if attempts[i].Status == domain.AttemptInProgress {
			att = &attempts[i]
			break
		}
	}
	if att == nil {
		return nil, errors.New(errors.CodeAlreadySubmitted,
			errors.WithMessagef("attempt is already submitted: quiz=%s", req.QuizID))
	}

	now := s.now()
	elapsed := now.Sub(att.StartedAt)

	att.Status = domain.AttemptCompleted
	if elapsed > att.TimeLimit() {
		att.Status = domain.AttemptTimeout
	}

	answers := make([]domain.Answer, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = domain.Answer{
			QuestionID:       a.QuestionID,
			Text:             a.Text,
			SelectedOptions:  a.SelectedOptions,
			TimeSpentSeconds: a.TimeSpentSeconds,
		}
	}

	att.Answers = scoring.ScoreAnswers(quiz, answers)
	scoring.Recompute(att)
	att.CompletedAt = &now
	att.TimeSpentSeconds = int(elapsed.Seconds())

	if err := s.store.Close(ctx, att); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAttemptGraded{Attempt: *att})

	return &SubmitResponse{
		Attempt:     att,
		ShowResults: quiz.ShowResults,
	}, nil
}

type SaveAnswersRequest struct {
	AttemptID string
	StudentID string
	Answers   []SubmitAnswer
}

// SaveAnswers stores a partial answer sheet for an in-progress attempt.
// Saved answers are what a lazy timeout scores, so students keep credit
// for work done before the deadline.
func (s *Service) SaveAnswers(ctx context.Context, req SaveAnswersRequest) error {
	att, err := s.store.Get(ctx, req.AttemptID)
	if err != nil {
		return err
	}

	if att.StudentID != req.StudentID {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("attempt belongs to another student: attempt=%s", req.AttemptID))
	}

	if att, err = s.expireOverdue(ctx, att, s.now()); err != nil {
		return err
	}
	if att.Status != domain.AttemptInProgress {
		return errors.New(errors.CodeAlreadySubmitted,
			errors.WithMessagef("attempt is closed: attempt=%s status=%s", att.AttemptID, att.Status))
	}

	answers := make([]domain.Answer, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = domain.Answer{
			QuestionID:       a.QuestionID,
			Text:             a.Text,
			SelectedOptions:  a.SelectedOptions,
			TimeSpentSeconds: a.TimeSpentSeconds,
		}
	}

	return s.store.SaveAnswers(ctx, att.AttemptID, answers)
}

type GetRequest struct {
	AttemptID  string
	StudentID  string
	Instructor bool
}

// Get returns a single attempt, reclassifying it to timeout first when
// its deadline has passed unobserved.
func (s *Service) Get(ctx context.Context, req GetRequest) (*domain.Attempt, error) {
	att, err := s.store.Get(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}

	if att.StudentID != req.StudentID && !req.Instructor {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("attempt belongs to another student: attempt=%s", req.AttemptID))
	}

	return s.expireOverdue(ctx, att, s.now())
}

type ListRequest struct {
	QuizID    string
	StudentID string
}

// List returns the student's attempts on a quiz, oldest first, with
// overdue in-progress attempts reclassified on the way out.
func (s *Service) List(ctx context.Context, req ListRequest) ([]domain.Attempt, error) {
	quiz, err := s.catalog.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	return s.listExpired(ctx, quiz, req.StudentID, s.now())
}

type GradeEssayRequest struct {
	AttemptID  string
	QuestionID string
	Points     decimal.Decimal
}

// GradeEssay lets an instructor set the score of an essay answer on a
// closed attempt. Only the total-recompute step of the scoring engine
// runs again; auto-matched answers are untouched.
func (s *Service) GradeEssay(ctx context.Context, req GradeEssayRequest) (*domain.Attempt, error) {
	att, err := s.store.Get(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}

	if att, err = s.expireOverdue(ctx, att, s.now()); err != nil {
		return nil, err
	}
	if !att.Status.Terminal() {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("attempt is still in progress: attempt=%s", req.AttemptID))
	}

	quiz, err := s.catalog.GetQuiz(ctx, att.QuizID)
	if err != nil {
		return nil, err
	}

	var question *domain.Question
	for i := range quiz.Questions {
		if quiz.Questions[i].QuestionID == req.QuestionID {
			question = &quiz.Questions[i]
			break
		}
	}
	if question == nil {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question not found: question=%s", req.QuestionID))
	}
	if question.Type != domain.QuestionEssay {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question is auto-scored, not gradable: question=%s", req.QuestionID))
	}
	if req.Points.IsNegative() || req.Points.GreaterThan(question.Points) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("points must be between 0 and %s", question.Points))
	}

	graded := false
	for i := range att.Answers {
		if att.Answers[i].QuestionID == req.QuestionID {
			correct := req.Points.GreaterThan(decimal.Zero)
			att.Answers[i].PointsEarned = req.Points
			att.Answers[i].Correct = &correct
			graded = true
			break
		}
	}
	if !graded {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no answer for question: question=%s", req.QuestionID))
	}

	scoring.Recompute(att)

	if err := s.store.UpdateGrading(ctx, att); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAttemptGraded{Attempt: *att})

	return att, nil
}

// listExpired loads the student's attempts and applies the lazy timeout
// transition to any overdue in-progress one. There is no background
// sweeper; whichever request observes the expiry performs it.
func (s *Service) listExpired(ctx context.Context, quiz *domain.Quiz, studentID string, now time.Time) ([]domain.Attempt, error) {
	attempts, err := s.store.List(ctx, quiz.QuizID, studentID)
	if err != nil {
		return nil, err
	}

	for i := range attempts {
		if !attempts[i].Expired(now) {
			continue
		}

		att, err := s.closeExpired(ctx, quiz, &attempts[i])
		if err != nil {
			return nil, err
		}
		attempts[i] = *att
	}

	return attempts, nil
}

func (s *Service) expireOverdue(ctx context.Context, att *domain.Attempt, now time.Time) (*domain.Attempt, error) {
	if !att.Expired(now) {
		return att, nil
	}

	quiz, err := s.catalog.GetQuiz(ctx, att.QuizID)
	if err != nil {
		return nil, err
	}

	return s.closeExpired(ctx, quiz, att)
}

// closeExpired reclassifies an overdue attempt to timeout, with partial
// credit from whatever answers were last autosaved.
func (s *Service) closeExpired(ctx context.Context, quiz *domain.Quiz, att *domain.Attempt) (*domain.Attempt, error) {
	deadline := att.StartedAt.Add(att.TimeLimit())

	att.Status = domain.AttemptTimeout
	att.Answers = scoring.ScoreAnswers(quiz, att.Answers)
	scoring.Recompute(att)
	att.CompletedAt = &deadline
	att.TimeSpentSeconds = int(att.TimeLimit().Seconds())

	if err := s.store.Close(ctx, att); err != nil {
		// Another request may have observed the expiry first; the
		// stored outcome wins.
		if errors.HasCode(err, errors.CodeAlreadySubmitted) {
			return s.store.Get(ctx, att.AttemptID)
		}
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAttemptGraded{Attempt: *att})

	return att, nil
}

// presentQuestions returns the student-facing question list: ordered or
// shuffled per the quiz flags, with correctness flags, canonical
// answers and explanations stripped.
func presentQuestions(quiz *domain.Quiz) []domain.Question {
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		sq := q
		sq.CorrectAnswer = ""
		sq.Explanation = ""
		sq.Options = make([]domain.Option, len(q.Options))
		for j, o := range q.Options {
			sq.Options[j] = domain.Option{OptionID: o.OptionID, Text: o.Text}
		}
		questions[i] = sq
	}

	if quiz.RandomizeQuestions {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if quiz.RandomizeOptions {
		for i := range questions {
			opts := questions[i].Options
			rand.Shuffle(len(opts), func(a, b int) {
				opts[a], opts[b] = opts[b], opts[a]
			})
		}
	}

	return questions
}
