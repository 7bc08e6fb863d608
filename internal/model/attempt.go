package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states.
//
// Transitions are monotonic and terminal: ACTIVE → SUBMITTED or ACTIVE →
// EXPIRED. An attempt never leaves a terminal state.
type AttemptStatus string

const (
	AttemptStatusActive    AttemptStatus = "ACTIVE"
	AttemptStatusSubmitted AttemptStatus = "SUBMITTED"
	AttemptStatusExpired   AttemptStatus = "EXPIRED"
)

// Terminal reports whether the status is one of the two final states.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusExpired
}

// Attempt is one student's instance of a timed exam, from start to
// finalization. It owns its ordered question sequence outright; questions
// carry no back-reference to the attempt.
type Attempt struct {
	ID              uuid.UUID     `json:"id"`
	StudentID       int64         `json:"student_id"`
	Status          AttemptStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	EndsAt          time.Time     `json:"ends_at"`
	DurationSeconds int           `json:"duration_seconds"`
	TotalQuestions  int           `json:"total_questions"`
	Score           *int          `json:"score,omitempty"`
	Percentage      *float64      `json:"percentage,omitempty"`
	IPAddress       string        `json:"ip_address,omitempty"`
	UserAgent       string        `json:"user_agent,omitempty"`
	TabSwitches     int           `json:"tab_switches"`
	FocusLosses     int           `json:"focus_losses"`
	FullscreenExits int           `json:"fullscreen_exits"`
	CategoryID      *int64        `json:"category_id,omitempty"`
	LevelID         *int64        `json:"level_id,omitempty"`
	FinalizedAt     *time.Time    `json:"finalized_at,omitempty"`

	// Version guards finalization: only the writer holding the current
	// version commits the terminal status + score.
	Version int `json:"-"`

	Questions []AttemptQuestion `json:"-"`
}

// AttemptQuestion is a single question frozen into an attempt. The option
// order is a shuffled permutation fixed at assembly; CorrectAnswer is copied
// by value so shuffling can never misalign it. It is never serialized — every
// outward view is built explicitly without it.
type AttemptQuestion struct {
	QuestionID     int64    `json:"question_id"`
	QuestionText   string   `json:"question_text"`
	ImageURL       string   `json:"image_url,omitempty"`
	Options        []string `json:"options"`
	CorrectAnswer  string   `json:"-"`
	SelectedOption *string  `json:"selected_option,omitempty"`
	Flagged        bool     `json:"flagged"`
	IndexInExam    int      `json:"index"`
}

// IntegrityEventType enumerates client-reported anti-cheat signals. They are
// an audit channel only and never influence grading.
type IntegrityEventType string

const (
	IntegrityEventTabSwitch      IntegrityEventType = "TAB_SWITCH"
	IntegrityEventFocusLoss      IntegrityEventType = "FOCUS_LOSS"
	IntegrityEventFullscreenExit IntegrityEventType = "FULLSCREEN_EXIT"
)

// ────────────────────────────────────────────────────────────────────────────
// Request payloads
// ────────────────────────────────────────────────────────────────────────────

// StartAttemptRequest is the payload for starting a new attempt.
type StartAttemptRequest struct {
	Count           int    `json:"count" binding:"required,min=1,max=200"`
	DurationSeconds int    `json:"duration_seconds" binding:"required,min=1,max=28800"`
	CategoryID      *int64 `json:"category_id" binding:"omitempty,min=1"`
	LevelID         *int64 `json:"level_id" binding:"omitempty,min=1"`
}

// AnswerSubmission is a single answer inside a submit payload.
type AnswerSubmission struct {
	QuestionID     int64  `json:"question_id" binding:"required,min=1"`
	SelectedOption string `json:"selected_option" binding:"required,max=2000"`
}

// SubmitAnswersRequest is the payload for submitting an attempt.
type SubmitAnswersRequest struct {
	Answers            []AnswerSubmission `json:"answers" binding:"dive"`
	FlaggedQuestionIDs []int64            `json:"flagged_question_ids"`
}

// AutosaveAnswerRequest records a single in-progress selection.
type AutosaveAnswerRequest struct {
	QuestionID     int64  `json:"question_id" binding:"required,min=1"`
	SelectedOption string `json:"selected_option" binding:"required,max=2000"`
	Flagged        *bool  `json:"flagged" binding:"omitempty"`
}

// IntegrityEventRequest reports a single anti-cheat signal.
type IntegrityEventRequest struct {
	EventType IntegrityEventType `json:"event_type" binding:"required,oneof=TAB_SWITCH FOCUS_LOSS FULLSCREEN_EXIT"`
}

// ────────────────────────────────────────────────────────────────────────────
// Client-facing views (correct answers stripped)
// ────────────────────────────────────────────────────────────────────────────

// QuestionView is an attempt question as shown to the student. There is no
// correct-answer field on this type at all.
type QuestionView struct {
	Index          int      `json:"index"`
	QuestionID     int64    `json:"question_id"`
	QuestionText   string   `json:"question_text"`
	ImageURL       string   `json:"image_url,omitempty"`
	Options        []string `json:"options"`
	SelectedOption *string  `json:"selected_option,omitempty"`
	Flagged        bool     `json:"flagged"`
}

// StartResult is returned from a successful attempt start.
type StartResult struct {
	AttemptID       uuid.UUID      `json:"attempt_id"`
	StartedAt       time.Time      `json:"started_at"`
	EndsAt          time.Time      `json:"ends_at"`
	DurationSeconds int            `json:"duration_seconds"`
	TotalQuestions  int            `json:"total_questions"`
	Questions       []QuestionView `json:"questions"`
}

// AttemptView is the resumable view of a student's current attempt.
type AttemptView struct {
	AttemptID        uuid.UUID      `json:"attempt_id"`
	Status           AttemptStatus  `json:"status"`
	StartedAt        time.Time      `json:"started_at"`
	EndsAt           time.Time      `json:"ends_at"`
	DurationSeconds  int            `json:"duration_seconds"`
	RemainingSeconds float64        `json:"remaining_seconds"`
	TotalQuestions   int            `json:"total_questions"`
	Questions        []QuestionView `json:"questions"`
}

// SubmitResult is returned from a finalizing submit call.
type SubmitResult struct {
	AttemptID      uuid.UUID     `json:"attempt_id"`
	Score          int           `json:"score"`
	TotalQuestions int           `json:"total_questions"`
	Percentage     float64       `json:"percentage"`
	Status         AttemptStatus `json:"status"`
}

// ResultSummary is the outward-facing projection of a finalized attempt.
// It carries integrity counters but never per-question selections or
// correct answers.
type ResultSummary struct {
	AttemptID       uuid.UUID     `json:"attempt_id"`
	StudentID       int64         `json:"student_id"`
	StartedAt       time.Time     `json:"started_at"`
	EndsAt          time.Time     `json:"ends_at"`
	DurationSeconds int           `json:"duration_seconds"`
	TotalQuestions  int           `json:"total_questions"`
	Score           int           `json:"score"`
	Percentage      float64       `json:"percentage"`
	Status          AttemptStatus `json:"status"`
	TabSwitches     int           `json:"tab_switches"`
	FocusLosses     int           `json:"focus_losses"`
	FullscreenExits int           `json:"fullscreen_exits"`
}
