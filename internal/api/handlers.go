package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/opencampus/assess/internal/attempt"
	"github.com/opencampus/assess/internal/catalog"
	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/errors"
	"github.com/opencampus/assess/internal/progress"
)

type (
	QuestionView struct {
		QuestionID string       `json:"questionId"`
		Type       string       `json:"type"`
		Text       string       `json:"text"`
		Points     float64      `json:"points"`
		Options    []OptionView `json:"options,omitempty"`
	}

	OptionView struct {
		OptionID string `json:"optionId"`
		Text     string `json:"text"`
	}

	StartAttemptRequest struct {
		Password string `json:"password"`
	}

	StartAttemptResponse struct {
		AttemptID        string         `json:"attemptId"`
		AttemptNumber    int            `json:"attemptNumber"`
		StartedAt        time.Time      `json:"startedAt"`
		TimeLimitMinutes int            `json:"timeLimitMinutes"`
		Resumed          bool           `json:"resumed"`
		Questions        []QuestionView `json:"questions"`
	}

	AnswerInput struct {
		QuestionID       string   `json:"questionId" binding:"required"`
		Answer           string   `json:"answer"`
		SelectedOptions  []string `json:"selectedOptions"`
		TimeSpentSeconds int      `json:"timeSpentSeconds"`
	}

	SubmitAttemptRequest struct {
		Answers []AnswerInput `json:"answers" binding:"required"`
	}

	SubmitAttemptResponse struct {
		Status     string   `json:"status"`
		TotalScore *float64 `json:"totalScore,omitempty"`
		MaxScore   *float64 `json:"maxScore,omitempty"`
		Percentage *int     `json:"percentage,omitempty"`
		Grade      string   `json:"grade,omitempty"`
	}

	AttemptView struct {
		AttemptID        string     `json:"attemptId"`
		QuizID           string     `json:"quizId"`
		AttemptNumber    int        `json:"attemptNumber"`
		Status           string     `json:"status"`
		StartedAt        time.Time  `json:"startedAt"`
		CompletedAt      *time.Time `json:"completedAt,omitempty"`
		TotalScore       float64    `json:"totalScore"`
		MaxScore         float64    `json:"maxScore"`
		Percentage       int        `json:"percentage"`
		Grade            string     `json:"grade,omitempty"`
		TimeSpentSeconds int        `json:"timeSpentSeconds"`
	}
)

func (a *API) startAttempt(c *gin.Context) {
	var req StartAttemptRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
			return
		}
	}

	resp, err := a.attempts.Start(c.Request.Context(), attempt.StartRequest{
		QuizID:    c.Param("id"),
		StudentID: caller(c).UserID,
		Password:  req.Password,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	out := StartAttemptResponse{
		AttemptID:        resp.Attempt.AttemptID,
		AttemptNumber:    resp.Attempt.AttemptNumber,
		StartedAt:        resp.Attempt.StartedAt,
		TimeLimitMinutes: resp.Attempt.TimeLimitMinutes,
		Resumed:          resp.Resumed,
		Questions:        make([]QuestionView, 0, len(resp.Questions)),
	}
	for _, q := range resp.Questions {
		out.Questions = append(out.Questions, questionView(q))
	}

	c.JSON(http.StatusCreated, out)
}

func (a *API) submitAttempt(c *gin.Context) {
	var req SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	answers := make([]attempt.SubmitAnswer, 0, len(req.Answers))
	for _, in := range req.Answers {
		answers = append(answers, attempt.SubmitAnswer{
			QuestionID:       in.QuestionID,
			Text:             in.Answer,
			SelectedOptions:  in.SelectedOptions,
			TimeSpentSeconds: in.TimeSpentSeconds,
		})
	}

	resp, err := a.attempts.Submit(c.Request.Context(), attempt.SubmitRequest{
		QuizID:    c.Param("id"),
		StudentID: caller(c).UserID,
		Answers:   answers,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	out := SubmitAttemptResponse{Status: string(resp.Attempt.Status)}
	if resp.ShowResults {
		total := resp.Attempt.TotalScore.InexactFloat64()
		max := resp.Attempt.MaxScore.InexactFloat64()
		pct := resp.Attempt.Percentage
		out.TotalScore = &total
		out.MaxScore = &max
		out.Percentage = &pct
		out.Grade = resp.Attempt.Grade
	}

	c.JSON(http.StatusOK, out)
}

func (a *API) saveAnswers(c *gin.Context) {
	var req SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	answers := make([]attempt.SubmitAnswer, 0, len(req.Answers))
	for _, in := range req.Answers {
		answers = append(answers, attempt.SubmitAnswer{
			QuestionID:       in.QuestionID,
			Text:             in.Answer,
			SelectedOptions:  in.SelectedOptions,
			TimeSpentSeconds: in.TimeSpentSeconds,
		})
	}

	err := a.attempts.SaveAnswers(c.Request.Context(), attempt.SaveAnswersRequest{
		AttemptID: c.Param("id"),
		StudentID: caller(c).UserID,
		Answers:   answers,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) getAttempt(c *gin.Context) {
	id := caller(c)
	att, err := a.attempts.Get(c.Request.Context(), attempt.GetRequest{
		AttemptID:  c.Param("id"),
		StudentID:  id.UserID,
		Instructor: id.Instructor(),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, attemptView(*att))
}

func (a *API) listAttempts(c *gin.Context) {
	attempts, err := a.attempts.List(c.Request.Context(), attempt.ListRequest{
		QuizID:    c.Param("id"),
		StudentID: caller(c).UserID,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]AttemptView, 0, len(attempts))
	for _, att := range attempts {
		out = append(out, attemptView(att))
	}

	c.JSON(http.StatusOK, gin.H{"attempts": out})
}

func (a *API) getQuiz(c *gin.Context) {
	quiz, err := a.catalog.GetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}

	out := gin.H{
		"quizId":           quiz.QuizID,
		"courseId":         quiz.CourseID,
		"title":            quiz.Title,
		"timeLimitMinutes": quiz.TimeLimitMinutes,
		"attemptsAllowed":  quiz.AttemptsAllowed,
		"startAt":          quiz.StartAt,
		"endAt":            quiz.EndAt,
		"requirePassword":  quiz.RequirePassword,
		"active":           quiz.Active,
		"totalPoints":      quiz.TotalPoints.InexactFloat64(),
		"questionCount":    len(quiz.Questions),
	}

	c.JSON(http.StatusOK, out)
}

func (a *API) listCourseQuizzes(c *gin.Context) {
	quizzes, err := a.catalog.ListCourseQuizzes(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		renderError(c, err)
		return
	}

	out := make([]gin.H, 0, len(quizzes))
	for _, quiz := range quizzes {
		out = append(out, gin.H{
			"quizId":           quiz.QuizID,
			"title":            quiz.Title,
			"timeLimitMinutes": quiz.TimeLimitMinutes,
			"attemptsAllowed":  quiz.AttemptsAllowed,
			"startAt":          quiz.StartAt,
			"endAt":            quiz.EndAt,
			"active":           quiz.Active,
		})
	}

	c.JSON(http.StatusOK, gin.H{"quizzes": out})
}

type (
	CreateOptionInput struct {
		Text    string `json:"text" binding:"required"`
		Correct bool   `json:"correct"`
	}

	CreateQuestionInput struct {
		Type          string              `json:"type" binding:"required"`
		Text          string              `json:"text" binding:"required"`
		Options       []CreateOptionInput `json:"options"`
		CorrectAnswer string              `json:"correctAnswer"`
		Points        float64             `json:"points" binding:"required"`
		Explanation   string              `json:"explanation"`
	}

	CreateQuizRequest struct {
		CourseID  string                `json:"courseId" binding:"required"`
		Title     string                `json:"title" binding:"required"`
		Questions []CreateQuestionInput `json:"questions" binding:"required"`

		TimeLimitMinutes int       `json:"timeLimitMinutes" binding:"required"`
		AttemptsAllowed  int       `json:"attemptsAllowed" binding:"required"`
		StartAt          time.Time `json:"startAt" binding:"required"`
		EndAt            time.Time `json:"endAt" binding:"required"`

		RandomizeQuestions bool   `json:"randomizeQuestions"`
		RandomizeOptions   bool   `json:"randomizeOptions"`
		ShowResults        bool   `json:"showResults"`
		ShowCorrectAnswers bool   `json:"showCorrectAnswers"`
		RequirePassword    bool   `json:"requirePassword"`
		Password           string `json:"password"`

		Active bool `json:"active"`
	}
)

func (a *API) createQuiz(c *gin.Context) {
	var req CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	create := catalog.CreateQuizRequest{
		CourseID: req.CourseID,
		Title:    req.Title,

		TimeLimitMinutes: req.TimeLimitMinutes,
		AttemptsAllowed:  req.AttemptsAllowed,
		StartAt:          req.StartAt,
		EndAt:            req.EndAt,

		RandomizeQuestions: req.RandomizeQuestions,
		RandomizeOptions:   req.RandomizeOptions,
		ShowResults:        req.ShowResults,
		ShowCorrectAnswers: req.ShowCorrectAnswers,
		RequirePassword:    req.RequirePassword,
		Password:           req.Password,

		Active: req.Active,
	}
	for _, q := range req.Questions {
		cq := catalog.CreateQuestion{
			Type:          domain.QuestionType(q.Type),
			Text:          q.Text,
			CorrectAnswer: q.CorrectAnswer,
			Points:        decimal.NewFromFloat(q.Points),
			Explanation:   q.Explanation,
		}
		for _, o := range q.Options {
			cq.Options = append(cq.Options, catalog.CreateOption{
				Text:    o.Text,
				Correct: o.Correct,
			})
		}
		create.Questions = append(create.Questions, cq)
	}

	quiz, err := a.catalog.CreateQuiz(c.Request.Context(), create)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"quizId":      quiz.QuizID,
		"totalPoints": quiz.TotalPoints.InexactFloat64(),
	})
}

type GradeEssayRequest struct {
	QuestionID string  `json:"questionId" binding:"required"`
	Points     float64 `json:"points"`
}

func (a *API) gradeEssay(c *gin.Context) {
	var req GradeEssayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	att, err := a.attempts.GradeEssay(c.Request.Context(), attempt.GradeEssayRequest{
		AttemptID:  c.Param("id"),
		QuestionID: req.QuestionID,
		Points:     decimal.NewFromFloat(req.Points),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, attemptView(*att))
}

func (a *API) getProgress(c *gin.Context) {
	p, err := a.progress.GetProgress(c.Request.Context(), progress.GetProgressRequest{
		StudentID: caller(c).UserID,
		CourseID:  c.Param("courseId"),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, progressView(p))
}

func (a *API) getLeaderboard(c *gin.Context) {
	l, err := a.progress.GetLeaderboard(c.Request.Context(), progress.GetLeaderboardRequest{
		CourseID: c.Param("courseId"),
	})
	if err != nil {
		renderError(c, err)
		return
	}

	entries := make([]gin.H, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, gin.H{
			"studentId":       e.StudentID,
			"overallProgress": e.OverallProgress,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"courseId": l.CourseID,
		"entries":  entries,
	})
}

func questionView(q domain.Question) QuestionView {
	v := QuestionView{
		QuestionID: q.QuestionID,
		Type:       string(q.Type),
		Text:       q.Text,
		Points:     q.Points.InexactFloat64(),
	}
	for _, o := range q.Options {
		v.Options = append(v.Options, OptionView{OptionID: o.OptionID, Text: o.Text})
	}
	return v
}

func attemptView(att domain.Attempt) AttemptView {
	return AttemptView{
		AttemptID:        att.AttemptID,
		QuizID:           att.QuizID,
		AttemptNumber:    att.AttemptNumber,
		Status:           string(att.Status),
		StartedAt:        att.StartedAt,
		CompletedAt:      att.CompletedAt,
		TotalScore:       att.TotalScore.InexactFloat64(),
		MaxScore:         att.MaxScore.InexactFloat64(),
		Percentage:       att.Percentage,
		Grade:            att.Grade,
		TimeSpentSeconds: att.TimeSpentSeconds,
	}
}

func progressView(p *domain.Progress) gin.H {
	materials := make([]gin.H, 0, len(p.Materials))
	for _, m := range p.Materials {
		materials = append(materials, gin.H{
			"materialId": m.MaterialID,
			"percent":    m.Percent,
			"viewedAt":   m.ViewedAt,
		})
	}

	assignments := make([]gin.H, 0, len(p.Assignments))
	for _, a := range p.Assignments {
		assignments = append(assignments, gin.H{
			"assignmentId": a.AssignmentID,
			"status":       a.Status,
			"updatedAt":    a.UpdatedAt,
		})
	}

	quizzes := make([]gin.H, 0, len(p.Quizzes))
	for _, q := range p.Quizzes {
		quizzes = append(quizzes, gin.H{
			"quizId":         q.QuizID,
			"bestPercentage": q.BestPercentage,
			"attempts":       q.Attempts,
		})
	}

	achievements := make([]gin.H, 0, len(p.Achievements))
	for _, a := range p.Achievements {
		achievements = append(achievements, gin.H{
			"code":     a.Code,
			"earnedAt": a.EarnedAt,
		})
	}

	return gin.H{
		"studentId":        p.StudentID,
		"courseId":         p.CourseID,
		"overallProgress":  p.OverallProgress,
		"timeSpentSeconds": p.TimeSpentSeconds,
		"streak":           p.Streak,
		"materials":        materials,
		"assignments":      assignments,
		"quizzes":          quizzes,
		"achievements":     achievements,
	}
}
