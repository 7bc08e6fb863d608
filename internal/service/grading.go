package service

import (
	"github.com/examforge/exam-engine/internal/model"
)

// Grade scores an attempt's final selection set. A question earns one point
// when its recorded selection exactly equals the hidden correct answer
// (case-sensitive string match); unanswered and mismatched questions earn
// nothing. Grading is total and deterministic — the same selections always
// produce the same score.
func Grade(questions []model.AttemptQuestion) (score int, percentage float64) {
	for _, q := range questions {
		if q.SelectedOption != nil && *q.SelectedOption == q.CorrectAnswer {
			score++
		}
	}
	if len(questions) == 0 {
		return 0, 0
	}
	return score, 100 * float64(score) / float64(len(questions))
}
