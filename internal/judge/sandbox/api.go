// Package sandbox runs a submission's test cases in isolated interpreters and
// aggregates their outcome.
package sandbox

import (
	"context"

	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/spec"
	"lessonjudge/internal/lesson/model"
)

// Service is the high-level sandbox entrypoint used by the judge layer.
type Service interface {
	Judge(ctx context.Context, req EvalRequest) (result.JudgeResult, error)
	Kill(ctx context.Context, runID string) error
}

// EvalRequest contains all data needed to judge one submission.
type EvalRequest struct {
	// RunID identifies the run for cancellation and logs. Generated when empty.
	RunID    string
	StepID   string
	Language model.Language
	Source   string
	// TestCases are evaluated against one shared compilation. IDs must be
	// non-empty and unique.
	TestCases []model.TestCase
	// Limits override the dialect's task profile.
	Limits     spec.ResourceLimit
	ReceivedAt int64
}
