package scoring_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/assess/internal/domain"
	"github.com/opencampus/assess/internal/scoring"
)

// twoChoiceQuiz is a quiz with 2 multiple-choice questions worth 5
// points each; option "a" is correct on both.
func twoChoiceQuiz() *domain.Quiz {
	question := func(id string) domain.Question {
		return domain.Question{
			QuestionID: id,
			Type:       domain.QuestionMultipleChoice,
			Text:       "pick one",
			Points:     decimal.NewFromInt(5),
			Options: []domain.Option{
				{OptionID: id + "-a", Text: "right", Correct: true},
				{OptionID: id + "-b", Text: "wrong"},
			},
		}
	}

	quiz := &domain.Quiz{
		QuizID:    "quiz-1",
		Questions: []domain.Question{question("q1"), question("q2")},
	}
	quiz.TotalPoints = scoring.TotalPoints(quiz.Questions)
	return quiz
}

func TestScoreAnswers(t *testing.T) {
	type outputs struct {
		totalScore string
		percentage int
		grade      string
	}

	tests := map[string]struct {
		answers []domain.Answer
		want    outputs
	}{
		"both answers correct scores full marks": {
			answers: []domain.Answer{
				{QuestionID: "q1", SelectedOptions: []string{"q1-a"}},
				{QuestionID: "q2", SelectedOptions: []string{"q2-a"}},
			},
			want: outputs{totalScore: "10", percentage: 100, grade: "A+"},
		},

		"one answer correct scores half marks": {
			answers: []domain.Answer{
				{QuestionID: "q1", SelectedOptions: []string{"q1-a"}},
				{QuestionID: "q2", SelectedOptions: []string{"q2-b"}},
			},
			want: outputs{totalScore: "5", percentage: 50, grade: "C-"},
		},

		"selecting every option is not correct": {
			answers: []domain.Answer{
				{QuestionID: "q1", SelectedOptions: []string{"q1-a", "q1-b"}},
			},
			want: outputs{totalScore: "0", percentage: 0, grade: "F"},
		},

		"duplicate selections never help": {
			answers: []domain.Answer{
				{QuestionID: "q1", SelectedOptions: []string{"q1-b", "q1-b"}},
			},
			want: outputs{totalScore: "0", percentage: 0, grade: "F"},
		},

		"no answers scores zero": {
			answers: nil,
			want:    outputs{totalScore: "0", percentage: 0, grade: "F"},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			quiz := twoChoiceQuiz()

			att := &domain.Attempt{MaxScore: quiz.TotalPoints}
			att.Answers = scoring.ScoreAnswers(quiz, tt.answers)
			scoring.Recompute(att)

			assert.Equal(t, tt.want.totalScore, att.TotalScore.String())
			assert.Equal(t, tt.want.percentage, att.Percentage)
			assert.Equal(t, tt.want.grade, att.Grade)
		})
	}
}

func TestScoreAnswers_ShortAnswer(t *testing.T) {
	quiz := &domain.Quiz{
		Questions: []domain.Question{{
			QuestionID:    "q1",
			Type:          domain.QuestionShortAnswer,
			CorrectAnswer: "Photosynthesis",
			Points:        decimal.NewFromInt(3),
		}},
	}

	tests := map[string]struct {
		text        string
		wantCorrect bool
	}{
		"exact match":                 {text: "Photosynthesis", wantCorrect: true},
		"case insensitive":            {text: "photosynthesis", wantCorrect: true},
		"surrounding whitespace":      {text: "  photosynthesis \n", wantCorrect: true},
		"different answer":            {text: "respiration", wantCorrect: false},
		"no partial credit on prefix": {text: "photo", wantCorrect: false},
		"empty answer":                {text: "", wantCorrect: false},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			scored := scoring.ScoreAnswers(quiz, []domain.Answer{{QuestionID: "q1", Text: tt.text}})

			require.Len(t, scored, 1)
			require.NotNil(t, scored[0].Correct)
			assert.Equal(t, tt.wantCorrect, *scored[0].Correct)

			wantPoints := "0"
			if tt.wantCorrect {
				wantPoints = "3"
			}
			assert.Equal(t, wantPoints, scored[0].PointsEarned.String())
		})
	}
}

func TestScoreAnswers_EssayStaysUngraded(t *testing.T) {
	quiz := &domain.Quiz{
		Questions: []domain.Question{{
			QuestionID: "q1",
			Type:       domain.QuestionEssay,
			Points:     decimal.NewFromInt(10),
		}},
	}

	scored := scoring.ScoreAnswers(quiz, []domain.Answer{{QuestionID: "q1", Text: "long prose"}})

	require.Len(t, scored, 1)
	assert.Nil(t, scored[0].Correct, "essay correctness stays pending until an instructor grades it")
	assert.True(t, scored[0].PointsEarned.IsZero())
}

func TestScoreAnswers_UnknownQuestionEarnsNothing(t *testing.T) {
	quiz := twoChoiceQuiz()

	scored := scoring.ScoreAnswers(quiz, []domain.Answer{{QuestionID: "ghost", SelectedOptions: []string{"x"}}})

	require.Len(t, scored, 1)
	require.NotNil(t, scored[0].Correct)
	assert.False(t, *scored[0].Correct)
	assert.True(t, scored[0].PointsEarned.IsZero())
}

func TestPercentage(t *testing.T) {
	tests := map[string]struct {
		total, max int64
		want       int
	}{
		"full marks":         {total: 10, max: 10, want: 100},
		"half marks":         {total: 5, max: 10, want: 50},
		"rounds up":          {total: 2, max: 3, want: 67},
		"rounds down":        {total: 1, max: 3, want: 33},
		"zero max is zero":   {total: 5, max: 0, want: 0},
		"clamped at hundred": {total: 15, max: 10, want: 100},
		"negative clamped":   {total: -5, max: 10, want: 0},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := scoring.Percentage(decimal.NewFromInt(tt.total), decimal.NewFromInt(tt.max))
			assert.Equal(t, tt.want, got)

			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		percentage int
		want       string
	}{
		{100, "A+"}, {90, "A+"},
		{89, "A"}, {85, "A"},
		{84, "A-"}, {80, "A-"},
		{79, "B+"}, {75, "B+"},
		{74, "B"}, {70, "B"},
		{69, "B-"}, {65, "B-"},
		{64, "C+"}, {60, "C+"},
		{59, "C"}, {55, "C"},
		{54, "C-"}, {50, "C-"},
		{49, "D"}, {45, "D"},
		{44, "F"}, {0, "F"},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, scoring.Grade(tt.percentage), "percentage=%d", tt.percentage)
	}
}

// Grade must be a non-decreasing step function of percentage: a
// strictly higher percentage never earns a lower letter.
func TestGrade_Monotonic(t *testing.T) {
	rank := map[string]int{
		"F": 0, "D": 1, "C-": 2, "C": 3, "C+": 4,
		"B-": 5, "B": 6, "B+": 7, "A-": 8, "A": 9, "A+": 10,
	}

	prev := rank[scoring.Grade(0)]
	for p := 1; p <= 100; p++ {
		cur, ok := rank[scoring.Grade(p)]
		require.True(t, ok, "unknown grade %q", scoring.Grade(p))
		assert.GreaterOrEqualf(t, cur, prev, "grade dropped at percentage=%d", p)
		prev = cur
	}
}
