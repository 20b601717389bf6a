package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/opencampus/assess/internal/domain"
)

const maxConcurrentNotifies = 100

// Redis is the slice of the redis client the notifier needs.
type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	AttemptGraded struct {
		AttemptID  string `json:"attempt_id"`
		QuizID     string `json:"quiz_id"`
		CourseID   string `json:"course_id"`
		Status     string `json:"status"`
		Percentage int    `json:"percentage"`
		Grade      string `json:"grade"`
	}

	DeadlineReminder struct {
		QuizID   string    `json:"quiz_id"`
		CourseID string    `json:"course_id"`
		EndAt    time.Time `json:"end_at"`
	}
)

func (a *API) notifyAttemptGraded(ctx context.Context, e domain.EventAttemptGraded) error {
	att := e.Attempt

	return a.publishNotification(ctx, att.StudentID, e.Name(), AttemptGraded{
		AttemptID:  att.AttemptID,
		QuizID:     att.QuizID,
		CourseID:   att.CourseID,
		Status:     string(att.Status),
		Percentage: att.Percentage,
		Grade:      att.Grade,
	})
}

func (a *API) notifyDeadlineReminder(ctx context.Context, e domain.EventDeadlineReminder) error {
	data := DeadlineReminder{
		QuizID:   e.QuizID,
		CourseID: e.CourseID,
		EndAt:    e.EndAt,
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentNotifies)

	for _, student := range e.StudentIDs {
		eg.Go(func() error {
			return a.publishNotification(ctx, student, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notifier: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
