package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// Quiz is a published, immutable-per-publish definition of a timed assessment.
type Quiz struct {
	QuizID   string
	CourseID string
	Title    string

	Questions []Question

	// TotalPoints is always recomputed from Questions before persistence,
	// never accepted from a caller.
	TotalPoints decimal.Decimal

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

type Question struct {
	QuestionID string
	Type       QuestionType
	Text       string

	// Options carry the correctness flags for multiple choice / true-false.
	Options []Option

	// CorrectAnswer is the canonical text for short-answer matching.
	CorrectAnswer string

	Points      decimal.Decimal
	Explanation string
	Position    int
}

type Option struct {
	OptionID string
	Text     string
	Correct  bool
}

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
	AttemptTimeout    AttemptStatus = "timeout"
)

// Terminal reports whether no further answer mutation is accepted.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptAbandoned || s == AttemptTimeout
}

// Attempt is one instance of a student working through a quiz.
// (QuizID, StudentID, AttemptNumber) is unique.
type Attempt struct {
	AttemptID     string
	QuizID        string
	CourseID      string
	StudentID     string
	AttemptNumber int

	Status      AttemptStatus
	StartedAt   time.Time
	CompletedAt *time.Time

	// Snapshots taken at start time so later quiz edits never change
	// the terms of a past attempt.
	TimeLimitMinutes int
	MaxScore         decimal.Decimal

	Answers []Answer

	TotalScore decimal.Decimal
	Percentage int
	Grade      string

	// TimeSpentSeconds is computed once at the closing transition.
	TimeSpentSeconds int
}

// TimeLimit returns the attempt's snapshotted time limit as a duration.
func (a *Attempt) TimeLimit() time.Duration {
	return time.Duration(a.TimeLimitMinutes) * time.Minute
}

// Expired reports whether the attempt is in progress past its deadline.
func (a *Attempt) Expired(now time.Time) bool {
	return a.Status == AttemptInProgress && now.After(a.StartedAt.Add(a.TimeLimit()))
}

type Answer struct {
	QuestionID      string
	Text            string
	SelectedOptions []string

	// Correct is nil until the answer is scored, and stays nil for essay
	// questions until an instructor grades them.
	Correct          *bool
	PointsEarned     decimal.Decimal
	TimeSpentSeconds int
}

type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentSubmitted AssignmentStatus = "submitted"
	AssignmentGraded    AssignmentStatus = "graded"
)

// Progress is the per student, per course aggregate over materials,
// assignments and quizzes. OverallProgress is derived, never hand-set.
type Progress struct {
	StudentID string
	CourseID  string

	Materials   []MaterialProgress
	Assignments []AssignmentProgress
	Quizzes     []QuizProgress

	OverallProgress  int
	TimeSpentSeconds int

	Streak         int
	LastActivityAt time.Time

	Achievements []Achievement
}

type MaterialProgress struct {
	MaterialID string
	Percent    int
	ViewedAt   time.Time
}

type AssignmentProgress struct {
	AssignmentID string
	Status       AssignmentStatus
	UpdatedAt    time.Time
}

type QuizProgress struct {
	QuizID         string
	BestPercentage int
	Attempts       int
	LastAttemptAt  time.Time
}

type Achievement struct {
	Code     string
	EarnedAt time.Time
}

// Leaderboard ranks a course's students by overall progress, best
// first.
type Leaderboard struct {
	CourseID string
	Entries  []LeaderboardEntry
}

type LeaderboardEntry struct {
	StudentID       string
	OverallProgress int
}
