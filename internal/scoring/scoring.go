// Package scoring computes per-answer correctness, point totals,
// percentage and grade letter for a quiz attempt. It is a pure function
// of the quiz definition and the attempt's answers; it never touches
// storage and is invoked by the attempt manager before any write.
package scoring

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opencampus/assess/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// gradeLadder holds inclusive lower bounds, evaluated top-down, first
// match wins.
var gradeLadder = []struct {
	min    int
	letter string
}{
	{90, "A+"},
	{85, "A"},
	{80, "A-"},
	{75, "B+"},
	{70, "B"},
	{65, "B-"},
	{60, "C+"},
	{55, "C"},
	{50, "C-"},
	{45, "D"},
}

// ScoreAnswers fills Correct and PointsEarned on every answer from the
// quiz's answer key. Essay answers are left ungraded: nil correctness
// and zero points until an instructor grades them.
func ScoreAnswers(quiz *domain.Quiz, answers []domain.Answer) []domain.Answer {
	questions := make(map[string]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questions[q.QuestionID] = q
	}

	scored := make([]domain.Answer, len(answers))
	for i, a := range answers {
		scored[i] = scoreAnswer(questions, a)
	}

	return scored
}

func scoreAnswer(questions map[string]domain.Question, a domain.Answer) domain.Answer {
	a.Correct = nil
	a.PointsEarned = decimal.Zero

	q, ok := questions[a.QuestionID]
	if !ok {
		// Answer to a question that is not part of the quiz earns nothing.
		correct := false
		a.Correct = &correct
		return a
	}

	switch q.Type {
	case domain.QuestionMultipleChoice, domain.QuestionTrueFalse:
		correct := matchOptions(a.SelectedOptions, q.Options)
		a.Correct = &correct
		if correct {
			a.PointsEarned = q.Points
		}

	case domain.QuestionShortAnswer:
		correct := matchShortAnswer(a.Text, q.CorrectAnswer)
		a.Correct = &correct
		if correct {
			a.PointsEarned = q.Points
		}

	case domain.QuestionEssay:
		// Pending manual grading.
	}

	return a
}

// matchOptions reports whether the selected option set exactly equals
// the set of options flagged correct. Duplicate selections never help.
func matchOptions(selected []string, options []domain.Option) bool {
	want := make(map[string]struct{})
	for _, o := range options {
		if o.Correct {
			want[o.OptionID] = struct{}{}
		}
	}

	got := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		got[id] = struct{}{}
	}

	if len(got) != len(want) || len(want) == 0 {
		return false
	}
	for id := range want {
		if _, ok := got[id]; !ok {
			return false
		}
	}

	return true
}

// matchShortAnswer compares submitted text with the canonical answer,
// case-insensitively and with surrounding whitespace trimmed. No
// partial credit.
func matchShortAnswer(text, canonical string) bool {
	if strings.TrimSpace(canonical) == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(canonical))
}

// Recompute derives TotalScore, Percentage and Grade from the attempt's
// already-pointed answers. It is the only scoring step re-run after an
// instructor grades an essay answer.
func Recompute(att *domain.Attempt) {
	total := decimal.Zero
	for _, a := range att.Answers {
		total = total.Add(a.PointsEarned)
	}

	att.TotalScore = total
	att.Percentage = Percentage(total, att.MaxScore)
	att.Grade = Grade(att.Percentage)
}

// Percentage returns round(total/max*100) clamped to [0, 100].
func Percentage(total, max decimal.Decimal) int {
	if max.LessThanOrEqual(decimal.Zero) {
		return 0
	}

	p := total.Div(max).Mul(hundred).Round(0).IntPart()
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(p)
}

// Grade maps a percentage to its letter bucket.
func Grade(percentage int) string {
	for _, g := range gradeLadder {
		if percentage >= g.min {
			return g.letter
		}
	}
	return "F"
}

// TotalPoints sums question point values; quiz definitions must persist
// this derived value, never a caller-supplied one.
func TotalPoints(questions []domain.Question) decimal.Decimal {
	total := decimal.Zero
	for _, q := range questions {
		total = total.Add(q.Points)
	}
	return total
}
