package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/assess/internal/api"
	"github.com/opencampus/assess/internal/attempt"
	"github.com/opencampus/assess/internal/catalog"
	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/event"
	"github.com/opencampus/assess/internal/progress"
)

type fixture struct {
	router  *gin.Engine
	bus     *event.Bus
	catalog *catalog.Service
	redis   redis.UniversalClient
}

func makeFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	catalogSvc := catalog.NewService(catalog.Config{Store: catalog.NewMemoryStore()})
	attemptSvc := attempt.NewService(attempt.Config{
		Catalog:  catalogSvc,
		Store:    attempt.NewMemoryStore(),
		EventBus: eb,
	})
	progressSvc := progress.NewService(progress.Config{
		EventBus: eb,
		Store:    progress.NewMemoryStore(),
		Redis:    rc,
		Prefix:   "test:progress",
	})

	router := gin.New()
	api.New(api.Config{
		Router:       router,
		EventBus:     eb,
		Catalog:      catalogSvc,
		Attempts:     attemptSvc,
		Progress:     progressSvc,
		Redis:        rc,
		PubsubPrefix: "test:pubsub",
	})

	return &fixture{
		router:  router,
		bus:     eb,
		catalog: catalogSvc,
		redis:   rc,
	}
}

type header map[string]string

func asStudent(id string) header {
	return header{"X-User-ID": id, "X-User-Role": "student"}
}

func asInstructor(id string) header {
	return header{"X-User-ID": id, "X-User-Role": "instructor"}
}

func (f *fixture) do(t *testing.T, method, path string, h header, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// seedQuiz creates a quiz through the catalog service so the test keeps
// the answer key the HTTP surface never exposes.
func (f *fixture) seedQuiz(t *testing.T, mutate ...func(req *catalog.CreateQuizRequest)) *domain.Quiz {
	t.Helper()

	req := catalog.CreateQuizRequest{
		CourseID: "course-1",
		Title:    "Midterm",
		Questions: []catalog.CreateQuestion{
			{
				Type: domain.QuestionMultipleChoice,
				Text: "Pick the capital of France",
				Options: []catalog.CreateOption{
					{Text: "Paris", Correct: true},
					{Text: "Lyon"},
				},
				Points: decimal.NewFromInt(5),
			},
			{
				Type:          domain.QuestionShortAnswer,
				Text:          "Name the Go mascot",
				CorrectAnswer: "gopher",
				Points:        decimal.NewFromInt(5),
			},
		},
		TimeLimitMinutes: 30,
		AttemptsAllowed:  3,
		StartAt:          time.Now().Add(-time.Hour),
		EndAt:            time.Now().Add(time.Hour),
		ShowResults:      true,
		Active:           true,
	}
	for _, m := range mutate {
		m(&req)
	}

	quiz, err := f.catalog.CreateQuiz(context.Background(), req)
	require.NoError(t, err)
	return quiz
}

func correctOptionID(t *testing.T, quiz *domain.Quiz, question int) string {
	t.Helper()

	for _, o := range quiz.Questions[question].Options {
		if o.Correct {
			return o.OptionID
		}
	}
	t.Fatalf("question %d has no correct option", question)
	return ""
}

func TestAPI_StudentFlow(t *testing.T) {
	f := makeFixture(t)
	quiz := f.seedQuiz(t)
	student := asStudent("stu-1")

	rec := f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/start", student, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	started := decode[api.StartAttemptResponse](t, rec)
	assert.NotEmpty(t, started.AttemptID)
	assert.Equal(t, 1, started.AttemptNumber)
	assert.Equal(t, 30, started.TimeLimitMinutes)
	assert.Len(t, started.Questions, 2)
	assert.NotContains(t, rec.Body.String(), "correct", "the answer key never reaches the student")

	// Autosave one answer.
	rec = f.do(t, http.MethodPost, "/v1/attempts/"+started.AttemptID+"/answers", student, gin.H{
		"answers": []gin.H{
			{"questionId": quiz.Questions[0].QuestionID, "selectedOptions": []string{correctOptionID(t, quiz, 0)}},
		},
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/submit", student, gin.H{
		"answers": []gin.H{
			{"questionId": quiz.Questions[0].QuestionID, "selectedOptions": []string{correctOptionID(t, quiz, 0)}},
			{"questionId": quiz.Questions[1].QuestionID, "answer": "Gopher "},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	submitted := decode[api.SubmitAttemptResponse](t, rec)
	assert.Equal(t, "completed", submitted.Status)
	require.NotNil(t, submitted.Percentage)
	assert.Equal(t, 100, *submitted.Percentage)
	assert.Equal(t, "A+", submitted.Grade)

	rec = f.do(t, http.MethodGet, "/v1/quizzes/"+quiz.QuizID+"/attempts", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	listed := decode[map[string][]api.AttemptView](t, rec)
	require.Len(t, listed["attempts"], 1)
	assert.Equal(t, started.AttemptID, listed["attempts"][0].AttemptID)

	// The progress aggregator consumes the graded event asynchronously.
	f.bus.Stop()

	rec = f.do(t, http.MethodGet, "/v1/progress/course-1", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	prog := decode[map[string]any](t, rec)
	assert.Equal(t, float64(100), prog["overallProgress"])

	rec = f.do(t, http.MethodGet, "/v1/progress/course-1/leaderboard", student, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stu-1")
}

func TestAPI_SubmitHidesResults(t *testing.T) {
	f := makeFixture(t)
	quiz := f.seedQuiz(t, func(req *catalog.CreateQuizRequest) { req.ShowResults = false })
	student := asStudent("stu-1")

	rec := f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/start", student, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/submit", student, gin.H{
		"answers": []gin.H{
			{"questionId": quiz.Questions[1].QuestionID, "answer": "gopher"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
	assert.NotContains(t, rec.Body.String(), "totalScore")
	assert.NotContains(t, rec.Body.String(), "percentage")
	assert.NotContains(t, rec.Body.String(), "grade")
}

func TestAPI_Identity(t *testing.T) {
	f := makeFixture(t)
	quiz := f.seedQuiz(t)

	tests := map[string]struct {
		method   string
		path     string
		headers  header
		body     any
		wantCode int
	}{
		"missing identity header": {
			method:   http.MethodPost,
			path:     "/v1/quizzes/" + quiz.QuizID + "/start",
			headers:  nil,
			wantCode: http.StatusUnauthorized,
		},
		"student cannot create quizzes": {
			method:   http.MethodPost,
			path:     "/v1/quizzes",
			headers:  asStudent("stu-1"),
			body:     gin.H{},
			wantCode: http.StatusForbidden,
		},
		"student cannot grade essays": {
			method:   http.MethodPost,
			path:     "/v1/attempts/any/grade",
			headers:  asStudent("stu-1"),
			body:     gin.H{"questionId": "q", "points": 1},
			wantCode: http.StatusForbidden,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.headers, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestAPI_SaveAnswersOwnership(t *testing.T) {
	f := makeFixture(t)
	quiz := f.seedQuiz(t)

	rec := f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/start", asStudent("stu-1"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	started := decode[api.StartAttemptResponse](t, rec)

	rec = f.do(t, http.MethodPost, "/v1/attempts/"+started.AttemptID+"/answers", asStudent("stu-2"), gin.H{
		"answers": []gin.H{
			{"questionId": quiz.Questions[0].QuestionID, "answer": "peek"},
		},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
}

func TestAPI_GetAttempt(t *testing.T) {
	f := makeFixture(t)
	quiz := f.seedQuiz(t)

	rec := f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/start", asStudent("stu-1"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	started := decode[api.StartAttemptResponse](t, rec)

	rec = f.do(t, http.MethodGet, "/v1/attempts/"+started.AttemptID, asStudent("stu-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, started.AttemptID, decode[api.AttemptView](t, rec).AttemptID)

	rec = f.do(t, http.MethodGet, "/v1/attempts/"+started.AttemptID, asStudent("stu-2"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "attempts are private to their owner")

	rec = f.do(t, http.MethodGet, "/v1/attempts/"+started.AttemptID, asInstructor("inst-1"), nil)
	assert.Equal(t, http.StatusOK, rec.Code, "instructors may read any attempt")
}

func TestAPI_CreateQuiz(t *testing.T) {
	f := makeFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/quizzes", asInstructor("inst-1"), gin.H{
		"courseId": "course-1",
		"title":    "Final",
		"questions": []gin.H{
			{
				"type": "multiple_choice",
				"text": "Pick one",
				"options": []gin.H{
					{"text": "right", "correct": true},
					{"text": "wrong"},
				},
				"points": 5,
			},
		},
		"timeLimitMinutes": 45,
		"attemptsAllowed":  2,
		"startAt":          time.Now().Add(-time.Hour).Format(time.RFC3339),
		"endAt":            time.Now().Add(time.Hour).Format(time.RFC3339),
		"active":           true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[map[string]any](t, rec)
	quizID, _ := created["quizId"].(string)
	require.NotEmpty(t, quizID)
	assert.Equal(t, float64(5), created["totalPoints"])

	rec = f.do(t, http.MethodGet, "/v1/quizzes/"+quizID, asStudent("stu-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"questionCount":1`)

	rec = f.do(t, http.MethodGet, "/v1/courses/course-1/quizzes", asStudent("stu-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Final")
}

func TestAPI_GradeEssay(t *testing.T) {
	f := makeFixture(t)
	quiz := f.seedQuiz(t, func(req *catalog.CreateQuizRequest) {
		req.Questions = append(req.Questions, catalog.CreateQuestion{
			Type:   domain.QuestionEssay,
			Text:   "Discuss",
			Points: decimal.NewFromInt(10),
		})
	})
	student := asStudent("stu-1")

	rec := f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/start", student, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	started := decode[api.StartAttemptResponse](t, rec)

	rec = f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/submit", student, gin.H{
		"answers": []gin.H{
			{"questionId": quiz.Questions[0].QuestionID, "selectedOptions": []string{correctOptionID(t, quiz, 0)}},
			{"questionId": quiz.Questions[1].QuestionID, "answer": "gopher"},
			{"questionId": quiz.Questions[2].QuestionID, "answer": "A long essay."},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	submitted := decode[api.SubmitAttemptResponse](t, rec)
	require.NotNil(t, submitted.Percentage)
	assert.Equal(t, 50, *submitted.Percentage, "the ungraded essay earns nothing yet")

	rec = f.do(t, http.MethodPost, "/v1/attempts/"+started.AttemptID+"/grade", asInstructor("inst-1"), gin.H{
		"questionId": quiz.Questions[2].QuestionID,
		"points":     10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	graded := decode[api.AttemptView](t, rec)
	assert.Equal(t, 100, graded.Percentage)
	assert.Equal(t, "A+", graded.Grade)
}

func TestAPI_NotifierPublishesGradedEvent(t *testing.T) {
	f := makeFixture(t)
	quiz := f.seedQuiz(t)
	student := asStudent("stu-1")

	ctx := context.Background()
	sub := f.redis.Subscribe(ctx, "test:pubsub:user:stu-1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err, "subscription should be confirmed")

	rec := f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/start", student, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/quizzes/"+quiz.QuizID+"/submit", student, gin.H{
		"answers": []gin.H{
			{"questionId": quiz.Questions[1].QuestionID, "answer": "gopher"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msg, err := sub.ReceiveTimeout(ctx, 2*time.Second)
	require.NoError(t, err)

	m, ok := msg.(*redis.Message)
	require.True(t, ok, fmt.Sprintf("expected a message, got %T", msg))

	var n api.Notification
	require.NoError(t, json.Unmarshal([]byte(m.Payload), &n))
	assert.Equal(t, "attempt.graded", n.Event)
}
