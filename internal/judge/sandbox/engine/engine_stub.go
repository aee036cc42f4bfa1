//go:build !linux

package engine

import (
	"context"

	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/spec"
	appErr "lessonjudge/pkg/errors"
)

type stubEngine struct{}

func newProcessEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, evalSpec spec.EvalSpec) (result.RunResult, error) {
	return result.RunResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("process sandbox is only supported on linux")
}

func (s *stubEngine) KillRun(ctx context.Context, runID string) error {
	return appErr.New(appErr.JudgeSystemError).WithMessage("process sandbox is only supported on linux")
}
