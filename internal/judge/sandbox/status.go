package sandbox

import (
	"context"

	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/lesson/model"
)

// StatusUpdate carries intermediate judge status data.
type StatusUpdate struct {
	RunID      string
	StepID     string
	Status     result.JudgeStatus
	Language   model.Language
	TotalTests int
	DoneTests  int
	ReceivedAt int64
	FinishedAt int64
}

// StatusReporter persists intermediate status updates.
type StatusReporter interface {
	ReportStatus(ctx context.Context, update StatusUpdate) error
}
