// Package engine executes one evaluation inside an isolated interpreter.
package engine

import (
	"context"

	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/spec"
	appErr "lessonjudge/pkg/errors"
)

// Engine executes an EvalSpec inside an isolated sandbox. A returned error
// means the sandbox itself failed; failures of the submission are reported
// through the result verdict.
type Engine interface {
	Run(ctx context.Context, evalSpec spec.EvalSpec) (result.RunResult, error)
	KillRun(ctx context.Context, runID string) error
}

// NewEngine creates the engine selected by cfg.Mode.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	switch cfg.Mode {
	case "", ModeInterp:
		return newInterpEngine(), nil
	case ModeProcess:
		return newProcessEngine(cfg, resolver)
	default:
		return nil, appErr.Newf(appErr.InvalidParams, "unknown sandbox mode: %s", cfg.Mode)
	}
}

func validateEvalSpec(evalSpec spec.EvalSpec) error {
	if evalSpec.TestCase.ID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if evalSpec.Compilation.Language == "" {
		return appErr.ValidationError("language", "required")
	}
	return nil
}
