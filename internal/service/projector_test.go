package service

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examforge/exam-engine/internal/model"
)

func sampleAttempt() *model.Attempt {
	score := 1
	pct := 50.0
	return &model.Attempt{
		ID:              uuid.New(),
		StudentID:       7,
		Status:          model.AttemptStatusSubmitted,
		StartedAt:       time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		EndsAt:          time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		DurationSeconds: 1800,
		TotalQuestions:  2,
		Score:           &score,
		Percentage:      &pct,
		TabSwitches:     3,
		Questions: []model.AttemptQuestion{
			{
				QuestionID:     11,
				QuestionText:   "first",
				Options:        []string{"a", "b"},
				CorrectAnswer:  "hidden-secret-a",
				SelectedOption: strptr("a"),
				Flagged:        true,
				IndexInExam:    0,
			},
			{
				QuestionID:    12,
				QuestionText:  "second",
				Options:       []string{"c", "d"},
				CorrectAnswer: "hidden-secret-d",
				IndexInExam:   1,
			},
		},
	}
}

func TestQuestionViewsNeverExposeCorrectAnswer(t *testing.T) {
	var p ResultProjector
	a := sampleAttempt()

	for _, include := range []bool{false, true} {
		views := p.QuestionViews(a, include)
		raw, err := json.Marshal(views)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "hidden-secret",
			"serialized view leaked a correct answer (includeSelections=%v)", include)
	}
}

func TestQuestionViewsSelectionVisibility(t *testing.T) {
	var p ResultProjector
	a := sampleAttempt()

	start := p.QuestionViews(a, false)
	require.Len(t, start, 2)
	assert.Nil(t, start[0].SelectedOption)
	assert.False(t, start[0].Flagged)

	resume := p.QuestionViews(a, true)
	require.NotNil(t, resume[0].SelectedOption)
	assert.Equal(t, "a", *resume[0].SelectedOption)
	assert.True(t, resume[0].Flagged)
	assert.Nil(t, resume[1].SelectedOption)
}

func TestSummarize(t *testing.T) {
	var p ResultProjector
	a := sampleAttempt()

	summary := p.Summarize(a)
	assert.Equal(t, a.ID, summary.AttemptID)
	assert.Equal(t, 1, summary.Score)
	assert.Equal(t, 50.0, summary.Percentage)
	assert.Equal(t, 3, summary.TabSwitches)

	raw, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "hidden-secret"))
	assert.False(t, strings.Contains(string(raw), "selected_option"))
}

func TestProgressPayloadPassThreshold(t *testing.T) {
	var p ResultProjector
	a := sampleAttempt()

	payload := p.ProgressPayload(a, 60)
	require.NotNil(t, payload.Passed)
	assert.False(t, *payload.Passed, "50%% must not pass a 60%% threshold")

	payload = p.ProgressPayload(a, 50)
	require.NotNil(t, payload.Passed)
	assert.True(t, *payload.Passed, "threshold is inclusive")

	assert.Equal(t, a.StudentID, payload.StudentID)
	assert.Equal(t, 1, payload.Score)
}
