package domain

import "time"

const (
	EventNameAttemptGraded     = "attempt.graded"
	EventNameMaterialViewed    = "material.viewed"
	EventNameAssignmentUpdated = "assignment.updated"
	EventNameProgressUpdated   = "progress.updated"
	EventNameDeadlineReminder  = "deadline.reminder"
)

// EventAttemptGraded fires after a submit or a lazy timeout closes an
// attempt with its scores computed, and again after an instructor grades
// an essay answer.
type EventAttemptGraded struct {
	Attempt Attempt
}

func (EventAttemptGraded) Name() string { return EventNameAttemptGraded }

// EventMaterialViewed is published by the course-content collaborator.
type EventMaterialViewed struct {
	StudentID  string
	CourseID   string
	MaterialID string
	Percent    int
	ViewedAt   time.Time
}

func (EventMaterialViewed) Name() string { return EventNameMaterialViewed }

// EventAssignmentUpdated is published by the assignment collaborator.
type EventAssignmentUpdated struct {
	StudentID    string
	CourseID     string
	AssignmentID string
	Status       AssignmentStatus
	UpdatedAt    time.Time
}

func (EventAssignmentUpdated) Name() string { return EventNameAssignmentUpdated }

// EventProgressUpdated fires after the aggregator recomputes a record.
type EventProgressUpdated struct {
	Progress Progress
}

func (EventProgressUpdated) Name() string { return EventNameProgressUpdated }

// EventDeadlineReminder is a hook for an eager-expiry extension; the core
// never publishes it, but the notifier relays it when something does.
type EventDeadlineReminder struct {
	CourseID   string
	QuizID     string
	EndAt      time.Time
	StudentIDs []string
}

func (EventDeadlineReminder) Name() string { return EventNameDeadlineReminder }
