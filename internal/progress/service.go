// Package progress aggregates three independent signal streams per
// student per course (material views, assignment updates, graded quiz
// attempts) into one overall-progress percentage, an activity streak
// and achievement unlocks. Recomputation is deterministic and
// idempotent.
package progress

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
	"github.com/opencampus/assess/internal/event"
)

// Store is the persistence boundary for progress records.
type Store interface {
	Get(ctx context.Context, studentID, courseID string) (*domain.Progress, error)
	Upsert(ctx context.Context, p *domain.Progress) error
}

// Rule observes a progress record right after an update and may unlock
// an achievement. The catalog of rules is product configuration; the
// engine only provides the hook point.
type Rule func(p *domain.Progress, e event.Event) *domain.Achievement

type Config struct {
	EventBus *event.Bus
	Store    Store

	// Redis backs the per-course leaderboard of overall progress.
	Redis  redis.UniversalClient
	Prefix string

	// Rules replaces the default achievement rules when set.
	Rules []Rule

	Now func() time.Time
}

type Service struct {
	eb     *event.Bus
	store  Store
	redis  redis.UniversalClient
	prefix string
	rules  []Rule
	now    func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	rules := c.Rules
	if rules == nil {
		rules = defaultRules()
	}

	s := &Service{
		eb:     c.EventBus,
		store:  c.Store,
		redis:  c.Redis,
		prefix: c.Prefix,
		rules:  rules,
		now:    now,
	}

	s.eb.Subscribe(domain.EventNameAttemptGraded, func(ctx context.Context, e event.Event) error {
		return s.RecordQuizAttempt(ctx, e.(domain.EventAttemptGraded))
	})
	s.eb.Subscribe(domain.EventNameMaterialViewed, func(ctx context.Context, e event.Event) error {
		return s.RecordMaterialView(ctx, e.(domain.EventMaterialViewed))
	})
	s.eb.Subscribe(domain.EventNameAssignmentUpdated, func(ctx context.Context, e event.Event) error {
		return s.RecordAssignmentUpdate(ctx, e.(domain.EventAssignmentUpdated))
	})

	return s
}

// RecordQuizAttempt folds a graded attempt into the student's course
// progress: best percentage per quiz, attempt count and time spent.
func (s *Service) RecordQuizAttempt(ctx context.Context, e domain.EventAttemptGraded) error {
	att := e.Attempt

	return s.update(ctx, att.StudentID, att.CourseID, e, func(p *domain.Progress) {
		var item *domain.QuizProgress
		for i := range p.Quizzes {
			if p.Quizzes[i].QuizID == att.QuizID {
				item = &p.Quizzes[i]
				break
			}
		}
		if item == nil {
			p.Quizzes = append(p.Quizzes, domain.QuizProgress{QuizID: att.QuizID})
			item = &p.Quizzes[len(p.Quizzes)-1]
		}

		// A re-graded attempt republishes this event; counting it as a
		// new attempt would break idempotency.
		if att.CompletedAt == nil || att.CompletedAt.After(item.LastAttemptAt) {
			item.Attempts++
			if att.CompletedAt != nil {
				item.LastAttemptAt = *att.CompletedAt
			}
			p.TimeSpentSeconds += att.TimeSpentSeconds
		}
		if att.Percentage > item.BestPercentage {
			item.BestPercentage = att.Percentage
		}

		touchStreak(p, s.eventTime(att.CompletedAt))
	})
}

// RecordMaterialView folds a material-view signal from the course
// content collaborator into the record.
func (s *Service) RecordMaterialView(ctx context.Context, e domain.EventMaterialViewed) error {
	return s.update(ctx, e.StudentID, e.CourseID, e, func(p *domain.Progress) {
		for i := range p.Materials {
			if p.Materials[i].MaterialID == e.MaterialID {
				if e.Percent > p.Materials[i].Percent {
					p.Materials[i].Percent = e.Percent
				}
				p.Materials[i].ViewedAt = e.ViewedAt
				touchStreak(p, e.ViewedAt)
				return
			}
		}

		p.Materials = append(p.Materials, domain.MaterialProgress{
			MaterialID: e.MaterialID,
			Percent:    e.Percent,
			ViewedAt:   e.ViewedAt,
		})
		touchStreak(p, e.ViewedAt)
	})
}

// RecordAssignmentUpdate folds an assignment status change from the
// assignment collaborator into the record.
func (s *Service) RecordAssignmentUpdate(ctx context.Context, e domain.EventAssignmentUpdated) error {
	return s.update(ctx, e.StudentID, e.CourseID, e, func(p *domain.Progress) {
		for i := range p.Assignments {
			if p.Assignments[i].AssignmentID == e.AssignmentID {
				p.Assignments[i].Status = e.Status
				p.Assignments[i].UpdatedAt = e.UpdatedAt
				touchStreak(p, e.UpdatedAt)
				return
			}
		}

		p.Assignments = append(p.Assignments, domain.AssignmentProgress{
			AssignmentID: e.AssignmentID,
			Status:       e.Status,
			UpdatedAt:    e.UpdatedAt,
		})
		touchStreak(p, e.UpdatedAt)
	})
}

// update loads (or lazily creates) the record, applies fn, recomputes
// the derived overall progress, runs the achievement rules and writes
// everything back, mirroring the new overall score into the course
// leaderboard.
func (s *Service) update(ctx context.Context, studentID, courseID string, e event.Event, fn func(p *domain.Progress)) error {
	p, err := s.load(ctx, studentID, courseID)
	if err != nil {
		return err
	}

	fn(p)
	recomputeOverall(p)
	s.applyRules(p, e)

	if err := s.store.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}

	if err := s.updateLeaderboard(ctx, p); err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventProgressUpdated{Progress: *p})

	return nil
}

func (s *Service) load(ctx context.Context, studentID, courseID string) (*domain.Progress, error) {
	p, err := s.store.Get(ctx, studentID, courseID)
	if errors.HasCode(err, errors.CodeNotFound) {
		return &domain.Progress{StudentID: studentID, CourseID: courseID}, nil
	}
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (s *Service) applyRules(p *domain.Progress, e event.Event) {
	earned := make(map[string]struct{}, len(p.Achievements))
	for _, a := range p.Achievements {
		earned[a.Code] = struct{}{}
	}

	for _, rule := range s.rules {
		a := rule(p, e)
		if a == nil {
			continue
		}
		if _, ok := earned[a.Code]; ok {
			continue
		}

		if a.EarnedAt.IsZero() {
			a.EarnedAt = s.now()
		}
		p.Achievements = append(p.Achievements, *a)
		earned[a.Code] = struct{}{}
	}
}

func (s *Service) updateLeaderboard(ctx context.Context, p *domain.Progress) error {
	if s.redis == nil {
		return nil
	}

	if err := s.redis.ZAdd(ctx, s.leaderboardKey(p.CourseID), redis.Z{
		Score:  float64(p.OverallProgress),
		Member: p.StudentID,
	}).Err(); err != nil {
		return fmt.Errorf("update course leaderboard: %w", err)
	}

	return nil
}

type GetProgressRequest struct {
	StudentID string
	CourseID  string
}

// GetProgress returns the aggregated record; a student who never
// interacted with the course gets an empty record, not an error.
func (s *Service) GetProgress(ctx context.Context, req GetProgressRequest) (*domain.Progress, error) {
	return s.load(ctx, req.StudentID, req.CourseID)
}

type GetLeaderboardRequest struct {
	CourseID string
}

// GetLeaderboard returns students of a course ranked by overall
// progress, best first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(req.CourseID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get course leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no progress recorded for course: course=%s", req.CourseID))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			StudentID:       z.Member.(string),
			OverallProgress: int(z.Score),
		})
	}

	return &domain.Leaderboard{
		CourseID: req.CourseID,
		Entries:  entries,
	}, nil
}

func (s *Service) leaderboardKey(courseID string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, courseID)
}

func (s *Service) eventTime(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return s.now()
}

// recomputeOverall derives the overall percentage as the unweighted
// mean over all items across all three categories. An assignment
// contributes 0, 50 or 100 by status; a quiz contributes its best
// percentage. No items means zero progress.
func recomputeOverall(p *domain.Progress) {
	sum, n := 0, 0

	for _, m := range p.Materials {
		sum += m.Percent
		n++
	}
	for _, a := range p.Assignments {
		switch a.Status {
		case domain.AssignmentGraded:
			sum += 100
		case domain.AssignmentSubmitted:
			sum += 50
		}
		n++
	}
	for _, q := range p.Quizzes {
		sum += q.BestPercentage
		n++
	}

	if n == 0 {
		p.OverallProgress = 0
		return
	}

	p.OverallProgress = int(math.Round(float64(sum) / float64(n)))
}

// touchStreak maintains the consecutive-active-days counter.
func touchStreak(p *domain.Progress, at time.Time) {
	if at.IsZero() {
		return
	}

	switch {
	case p.LastActivityAt.IsZero():
		p.Streak = 1
	case sameDay(p.LastActivityAt, at):
		// Another event on an already-counted day.
	case sameDay(p.LastActivityAt.AddDate(0, 0, 1), at):
		p.Streak++
	default:
		p.Streak = 1
	}

	if at.After(p.LastActivityAt) {
		p.LastActivityAt = at
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

const (
	AchievementFirstQuiz    = "first_quiz_completed"
	AchievementPerfectScore = "perfect_score"
	AchievementWeekStreak   = "seven_day_streak"
)

func defaultRules() []Rule {
	return []Rule{
		func(p *domain.Progress, e event.Event) *domain.Achievement {
			if _, ok := e.(domain.EventAttemptGraded); ok && len(p.Quizzes) > 0 {
				return &domain.Achievement{Code: AchievementFirstQuiz}
			}
			return nil
		},
		func(_ *domain.Progress, e event.Event) *domain.Achievement {
			if g, ok := e.(domain.EventAttemptGraded); ok && g.Attempt.Percentage == 100 {
				return &domain.Achievement{Code: AchievementPerfectScore}
			}
			return nil
		},
		func(p *domain.Progress, _ event.Event) *domain.Achievement {
			if p.Streak >= 7 {
				return &domain.Achievement{Code: AchievementWeekStreak}
			}
			return nil
		},
	}
}
