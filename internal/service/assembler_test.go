package service

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examforge/exam-engine/internal/model"
)

func makePool(n int) []model.CatalogQuestion {
	pool := make([]model.CatalogQuestion, n)
	for i := range pool {
		pool[i] = model.CatalogQuestion{
			ID:            int64(i + 1),
			QuestionText:  fmt.Sprintf("question %d", i+1),
			Options:       []string{"alpha", "beta", "gamma", "delta"},
			CorrectAnswer: "beta",
		}
	}
	return pool
}

func TestAssembleCountAndOrder(t *testing.T) {
	var asm Assembler
	questions, err := asm.Assemble(makePool(40), 10)
	require.NoError(t, err)
	require.Len(t, questions, 10)

	for i, q := range questions {
		assert.Equal(t, i, q.IndexInExam)
	}
}

func TestAssemblePicksDistinctQuestions(t *testing.T) {
	var asm Assembler
	questions, err := asm.Assemble(makePool(20), 20)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for _, q := range questions {
		assert.False(t, seen[q.QuestionID], "question %d picked twice", q.QuestionID)
		seen[q.QuestionID] = true
	}
}

func TestAssembleShufflePreservesOptionSet(t *testing.T) {
	var asm Assembler
	pool := makePool(5)
	questions, err := asm.Assemble(pool, 5)
	require.NoError(t, err)

	want := append([]string(nil), pool[0].Options...)
	sort.Strings(want)

	for _, q := range questions {
		got := append([]string(nil), q.Options...)
		sort.Strings(got)
		assert.Equal(t, want, got, "shuffle must permute options, not alter them")
		assert.Equal(t, "beta", q.CorrectAnswer, "correct answer carried by value")
	}
}

func TestAssembleShuffleLeavesPoolIntact(t *testing.T) {
	var asm Assembler
	pool := makePool(3)
	original := append([]string(nil), pool[0].Options...)

	_, err := asm.Assemble(pool, 3)
	require.NoError(t, err)

	assert.Equal(t, original, pool[0].Options, "pool options must not be shuffled in place")
}

func TestAssembleInsufficientPool(t *testing.T) {
	var asm Assembler

	_, err := asm.Assemble(makePool(5), 10)
	assert.True(t, errors.Is(err, model.ErrInsufficientQuestions))

	_, err = asm.Assemble(makePool(5), 0)
	assert.True(t, errors.Is(err, model.ErrInsufficientQuestions))

	_, err = asm.Assemble(nil, 1)
	assert.True(t, errors.Is(err, model.ErrInsufficientQuestions))
}
