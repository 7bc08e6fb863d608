package model

// Queue payloads exchanged between the HTTP layer and the background
// persistence workers through Redis. Shapes are part of the queue contract —
// change them in lockstep with the workers.

// AutosavedAnswer is one in-progress selection awaiting batched persistence.
type AutosavedAnswer struct {
	AttemptID      string `json:"attempt_id"`
	QuestionID     int64  `json:"question_id"`
	SelectedOption string `json:"selected_option"`
	Flagged        *bool  `json:"flagged,omitempty"`
}

// IntegrityEvent is one client-reported anti-cheat signal awaiting batched
// counter accumulation.
type IntegrityEvent struct {
	AttemptID  string             `json:"attempt_id"`
	EventType  IntegrityEventType `json:"event_type"`
	OccurredAt int64              `json:"occurred_at"`
}
