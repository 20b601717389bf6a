// Package api exposes the quiz engine to web clients over HTTP. The
// identity collaborator (an upstream gateway) supplies the caller's id
// and role via headers; this layer only enforces them.
package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/opencampus/assess/internal/attempt"
	"github.com/opencampus/assess/internal/catalog"
	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
	"github.com/opencampus/assess/internal/event"
	"github.com/opencampus/assess/internal/progress"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	RoleStudent    = "student"
	RoleInstructor = "instructor"

	ctxKeyIdentity = "api.identity"
)

type Config struct {
	Router   gin.IRouter
	EventBus *event.Bus

	Catalog  *catalog.Service
	Attempts *attempt.Service
	Progress *progress.Service

	Redis        Redis
	PubsubPrefix string
}

type API struct {
	catalog  *catalog.Service
	attempts *attempt.Service
	progress *progress.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		catalog:  c.Catalog,
		attempts: c.Attempts,
		progress: c.Progress,
		redis:    c.Redis,
		prefix:   c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1", identity())
	{
		v1.POST("/quizzes", requireRole(RoleInstructor), a.createQuiz)
		v1.GET("/quizzes/:id", a.getQuiz)
		v1.POST("/quizzes/:id/start", a.startAttempt)
		v1.POST("/quizzes/:id/submit", a.submitAttempt)
		v1.GET("/quizzes/:id/attempts", a.listAttempts)
		v1.GET("/attempts/:id", a.getAttempt)
		v1.POST("/attempts/:id/answers", a.saveAnswers)
		v1.POST("/attempts/:id/grade", requireRole(RoleInstructor), a.gradeEssay)
		v1.GET("/courses/:courseId/quizzes", a.listCourseQuizzes)
		v1.GET("/progress/:courseId", a.getProgress)
		v1.GET("/progress/:courseId/leaderboard", a.getLeaderboard)
	}

	// Fire-and-forget notification events; delivery failures are logged
	// and never affect the publishing transaction.
	c.EventBus.Subscribe(domain.EventNameAttemptGraded, func(ctx context.Context, e event.Event) error {
		return a.notifyAttemptGraded(ctx, e.(domain.EventAttemptGraded))
	})
	c.EventBus.Subscribe(domain.EventNameDeadlineReminder, func(ctx context.Context, e event.Event) error {
		return a.notifyDeadlineReminder(ctx, e.(domain.EventDeadlineReminder))
	})

	return a
}

// Identity is what the gateway asserts about the caller.
type Identity struct {
	UserID string
	Role   string
}

func (id Identity) Instructor() bool { return id.Role == RoleInstructor }

func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := Identity{
			UserID: c.GetHeader(headerUserID),
			Role:   c.GetHeader(headerUserRole),
		}

		if id.UserID == "" {
			renderError(c, errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("missing %s header", headerUserID)))
			c.Abort()
			return
		}
		if id.Role == "" {
			id.Role = RoleStudent
		}

		c.Set(ctxKeyIdentity, id)
		c.Next()
	}
}

func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if caller(c).Role != role {
			renderError(c, errors.New(errors.CodePermissionDenied,
				errors.WithMessagef("requires role %q", role)))
			c.Abort()
			return
		}
		c.Next()
	}
}

func caller(c *gin.Context) Identity {
	id, _ := c.Get(ctxKeyIdentity)
	identity, _ := id.(Identity)
	return identity
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.JSON(e.HTTPStatusCode(), gin.H{"error": e})
}
