package service

import (
	"math/rand/v2"

	"github.com/examforge/exam-engine/internal/model"
)

// Assembler samples and shuffles catalog questions into the ordered question
// sequence of a new attempt.
type Assembler struct{}

// Assemble picks exactly count distinct questions from the pool, uniformly
// and without replacement, and freezes each one with an independently
// shuffled option order. The correct answer is carried by value, so the
// shuffle can never misalign it. Positions 0..count-1 are fixed for the life
// of the attempt.
func (Assembler) Assemble(pool []model.CatalogQuestion, count int) ([]model.AttemptQuestion, error) {
	if count <= 0 || len(pool) < count {
		return nil, model.ErrInsufficientQuestions
	}

	picks := rand.Perm(len(pool))[:count]

	questions := make([]model.AttemptQuestion, count)
	for i, pick := range picks {
		src := pool[pick]

		options := make([]string, len(src.Options))
		copy(options, src.Options)
		rand.Shuffle(len(options), func(a, b int) {
			options[a], options[b] = options[b], options[a]
		})

		questions[i] = model.AttemptQuestion{
			QuestionID:    src.ID,
			QuestionText:  src.QuestionText,
			ImageURL:      src.ImageURL,
			Options:       options,
			CorrectAnswer: src.CorrectAnswer,
			IndexInExam:   i,
		}
	}

	return questions, nil
}
