package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examforge/exam-engine/internal/model"
)

func boolptr(b bool) *bool { return &b }

func TestDedupeAnswersKeepsLastWrite(t *testing.T) {
	batch := []*model.AutosavedAnswer{
		{AttemptID: "a", QuestionID: 1, SelectedOption: "first"},
		{AttemptID: "a", QuestionID: 2, SelectedOption: "other"},
		{AttemptID: "a", QuestionID: 1, SelectedOption: "second"},
		{AttemptID: "b", QuestionID: 1, SelectedOption: "unrelated"},
		{AttemptID: "a", QuestionID: 1, SelectedOption: "final", Flagged: boolptr(true)},
	}

	out := dedupeAnswers(batch)
	require.Len(t, out, 3)

	// First-seen order preserved, payload replaced by the newest write.
	assert.Equal(t, "a", out[0].AttemptID)
	assert.Equal(t, int64(1), out[0].QuestionID)
	assert.Equal(t, "final", out[0].SelectedOption)
	require.NotNil(t, out[0].Flagged)
	assert.True(t, *out[0].Flagged)

	assert.Equal(t, "other", out[1].SelectedOption)
	assert.Equal(t, "unrelated", out[2].SelectedOption)
}

func TestDedupeAnswersEmpty(t *testing.T) {
	assert.Empty(t, dedupeAnswers(nil))
}

func TestFoldEvents(t *testing.T) {
	batch := []*model.IntegrityEvent{
		{AttemptID: "a", EventType: model.IntegrityEventTabSwitch},
		{AttemptID: "a", EventType: model.IntegrityEventTabSwitch},
		{AttemptID: "b", EventType: model.IntegrityEventFocusLoss},
		{AttemptID: "a", EventType: model.IntegrityEventFullscreenExit},
		{AttemptID: "b", EventType: model.IntegrityEventFocusLoss},
		{AttemptID: "a", EventType: "SOMETHING_UNKNOWN"},
	}

	deltas := foldEvents(batch)
	require.Len(t, deltas, 2)

	assert.Equal(t, "a", deltas[0].attemptID)
	assert.Equal(t, 2, deltas[0].tabSwitches)
	assert.Equal(t, 0, deltas[0].focusLosses)
	assert.Equal(t, 1, deltas[0].fullscreenExits)

	assert.Equal(t, "b", deltas[1].attemptID)
	assert.Equal(t, 2, deltas[1].focusLosses)
	assert.Equal(t, 0, deltas[1].tabSwitches)
}

func TestFoldEventsEmpty(t *testing.T) {
	assert.Empty(t, foldEvents(nil))
}
