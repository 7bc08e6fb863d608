package service

import (
	"fmt"

	"github.com/examforge/exam-engine/internal/model"
)

// ResultProjector shapes outward-facing views of an attempt. Every view it
// produces is built field by field — the hidden correct answer has no path
// out of the aggregate through this type.
type ResultProjector struct{}

// QuestionViews projects the attempt's ordered question sequence for the
// client. Selections and flags are included only when includeSelections is
// set (resume views); the start view ships them blank.
func (ResultProjector) QuestionViews(a *model.Attempt, includeSelections bool) []model.QuestionView {
	views := make([]model.QuestionView, len(a.Questions))
	for i, q := range a.Questions {
		v := model.QuestionView{
			Index:        q.IndexInExam,
			QuestionID:   q.QuestionID,
			QuestionText: q.QuestionText,
			ImageURL:     q.ImageURL,
			Options:      q.Options,
		}
		if includeSelections {
			v.SelectedOption = q.SelectedOption
			v.Flagged = q.Flagged
		}
		views[i] = v
	}
	return views
}

// Summarize projects a finalized attempt into its result summary: score,
// timing, and integrity counters, never per-question detail.
func (ResultProjector) Summarize(a *model.Attempt) model.ResultSummary {
	summary := model.ResultSummary{
		AttemptID:       a.ID,
		StudentID:       a.StudentID,
		StartedAt:       a.StartedAt,
		EndsAt:          a.EndsAt,
		DurationSeconds: a.DurationSeconds,
		TotalQuestions:  a.TotalQuestions,
		Status:          a.Status,
		TabSwitches:     a.TabSwitches,
		FocusLosses:     a.FocusLosses,
		FullscreenExits: a.FullscreenExits,
	}
	if a.Score != nil {
		summary.Score = *a.Score
	}
	if a.Percentage != nil {
		summary.Percentage = *a.Percentage
	}
	return summary
}

// ProgressPayload builds the Student Progress feed entry for a finalized
// attempt. The pass flag is computed against the configured threshold.
func (p ResultProjector) ProgressPayload(a *model.Attempt, passPercent float64) model.ProgressUpdate {
	summary := p.Summarize(a)
	passed := summary.Percentage >= passPercent

	return model.ProgressUpdate{
		StudentID:  a.StudentID,
		CourseID:   a.CategoryID,
		Score:      summary.Score,
		Percentage: summary.Percentage,
		Passed:     &passed,
		Notes: fmt.Sprintf("Timed exam %s: %d/%d correct (%s)",
			a.ID, summary.Score, a.TotalQuestions, a.Status),
	}
}
