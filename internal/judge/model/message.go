package model

import lessonmodel "lessonjudge/internal/lesson/model"

// VerdictEventType identifies a verdict event.
type VerdictEventType string

const (
	// VerdictEventFinal is published once per finished run.
	VerdictEventFinal VerdictEventType = "final"
)

// VerdictEvent is the broker payload consumed by the attempt-recording
// collaborator. It decides XP and storage.
type VerdictEvent struct {
	Type      VerdictEventType             `json:"type"`
	RunID     string                       `json:"runId"`
	StepID    string                       `json:"stepId"`
	UserID    string                       `json:"userId,omitempty"`
	Passed    bool                         `json:"passed"`
	Results   []lessonmodel.TestCaseResult `json:"results"`
	CreatedAt int64                        `json:"createdAt"`
}
