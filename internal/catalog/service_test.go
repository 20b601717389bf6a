package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/assess/internal/catalog"
	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
)

func validRequest() catalog.CreateQuizRequest {
	return catalog.CreateQuizRequest{
		CourseID: "course-1",
		Title:    "Midterm",
		Questions: []catalog.CreateQuestion{
			{
				Type: domain.QuestionMultipleChoice,
				Text: "Pick one",
				Options: []catalog.CreateOption{
					{Text: "right", Correct: true},
					{Text: "wrong"},
				},
				Points: decimal.NewFromInt(5),
			},
			{
				Type:          domain.QuestionShortAnswer,
				Text:          "Name it",
				CorrectAnswer: "gopher",
				Points:        decimal.NewFromFloat(2.5),
			},
		},
		TimeLimitMinutes: 30,
		AttemptsAllowed:  3,
		StartAt:          time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		EndAt:            time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC),
		Active:           true,
	}
}

func TestService_CreateQuiz(t *testing.T) {
	s := catalog.NewService(catalog.Config{Store: catalog.NewMemoryStore()})
	ctx := context.Background()

	quiz, err := s.CreateQuiz(ctx, validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, quiz.QuizID)
	assert.True(t, quiz.TotalPoints.Equal(decimal.NewFromFloat(7.5)),
		"total recomputed from questions, got %s", quiz.TotalPoints)

	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, 1, quiz.Questions[0].Position)
	assert.Equal(t, 2, quiz.Questions[1].Position)
	for _, q := range quiz.Questions {
		assert.NotEmpty(t, q.QuestionID)
		for _, o := range q.Options {
			assert.NotEmpty(t, o.OptionID)
		}
	}

	got, err := s.GetQuiz(ctx, quiz.QuizID)
	require.NoError(t, err)
	assert.Equal(t, quiz.QuizID, got.QuizID)

	list, err := s.ListCourseQuizzes(ctx, "course-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_CreateQuiz_Validation(t *testing.T) {
	tests := map[string]struct {
		mutate func(req *catalog.CreateQuizRequest)
	}{
		"missing course": {
			mutate: func(req *catalog.CreateQuizRequest) { req.CourseID = "" },
		},
		"missing title": {
			mutate: func(req *catalog.CreateQuizRequest) { req.Title = "" },
		},
		"no questions": {
			mutate: func(req *catalog.CreateQuizRequest) { req.Questions = nil },
		},
		"zero time limit": {
			mutate: func(req *catalog.CreateQuizRequest) { req.TimeLimitMinutes = 0 },
		},
		"zero attempts allowed": {
			mutate: func(req *catalog.CreateQuizRequest) { req.AttemptsAllowed = 0 },
		},
		"window ends before it starts": {
			mutate: func(req *catalog.CreateQuizRequest) { req.EndAt = req.StartAt.Add(-time.Hour) },
		},
		"password required but empty": {
			mutate: func(req *catalog.CreateQuizRequest) { req.RequirePassword = true },
		},
		"question without text": {
			mutate: func(req *catalog.CreateQuizRequest) { req.Questions[0].Text = "" },
		},
		"question worth less than one point": {
			mutate: func(req *catalog.CreateQuizRequest) { req.Questions[0].Points = decimal.Zero },
		},
		"choice question with one option": {
			mutate: func(req *catalog.CreateQuizRequest) {
				req.Questions[0].Options = req.Questions[0].Options[:1]
			},
		},
		"choice question without a correct option": {
			mutate: func(req *catalog.CreateQuizRequest) {
				req.Questions[0].Options[0].Correct = false
			},
		},
		"short answer without a key": {
			mutate: func(req *catalog.CreateQuizRequest) { req.Questions[1].CorrectAnswer = "" },
		},
		"unknown question type": {
			mutate: func(req *catalog.CreateQuizRequest) { req.Questions[0].Type = "matching" },
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := catalog.NewService(catalog.Config{Store: catalog.NewMemoryStore()})

			req := validRequest()
			tt.mutate(&req)

			_, err := s.CreateQuiz(context.Background(), req)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument), "got %v", err)
		})
	}
}

func TestService_GetQuiz_NotFound(t *testing.T) {
	s := catalog.NewService(catalog.Config{Store: catalog.NewMemoryStore()})

	_, err := s.GetQuiz(context.Background(), "missing")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound), "got %v", err)
}

func TestWithinWindow(t *testing.T) {
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
	quiz := &domain.Quiz{StartAt: start, EndAt: end}

	tests := map[string]struct {
		now  time.Time
		want bool
	}{
		"before the window": {now: start.Add(-time.Second), want: false},
		"exactly at start":  {now: start, want: true},
		"inside":            {now: start.AddDate(0, 0, 14), want: true},
		"exactly at end":    {now: end, want: true},
		"after the window":  {now: end.Add(time.Second), want: false},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, catalog.WithinWindow(quiz, tt.now))
		})
	}
}
