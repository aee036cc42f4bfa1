package runner

import (
	"context"
	"math"
	"time"

	"lessonjudge/internal/judge/compiler"
	"lessonjudge/internal/judge/sandbox/engine"
	"lessonjudge/internal/judge/sandbox/observer"
	"lessonjudge/internal/judge/sandbox/profile"
	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/spec"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// DefaultRunner compiles with the compiler service and evaluates through the
// sandbox engine.
type DefaultRunner struct {
	comp    Compiler
	eng     engine.Engine
	metrics observer.MetricsRecorder
}

// NewRunner creates a new runner backed by the sandbox engine.
func NewRunner(comp Compiler, eng engine.Engine) *DefaultRunner {
	return NewRunnerWithObserver(comp, eng, observer.NoopMetricsRecorder{})
}

// NewRunnerWithObserver creates a new runner with metrics hooks.
func NewRunnerWithObserver(comp Compiler, eng engine.Engine, metrics observer.MetricsRecorder) *DefaultRunner {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &DefaultRunner{comp: comp, eng: eng, metrics: metrics}
}

func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (compiler.CompilationContext, result.CompileResult, error) {
	if req.Language.ID == "" {
		return compiler.CompilationContext{}, result.CompileResult{}, appErr.ValidationError("language", "required")
	}
	if r.comp == nil {
		return compiler.CompilationContext{}, result.CompileResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("compiler is not initialized")
	}
	start := time.Now()
	cc := r.comp.Compile(ctx, req.Source, req.Language.ID)
	res := result.CompileResult{
		OK:            !cc.HasTypeErrors,
		HasTypeErrors: cc.HasTypeErrors,
		Errors:        len(cc.Errors()),
		Warnings:      len(cc.Warnings()),
		TimeMs:        time.Since(start).Milliseconds(),
	}
	r.metrics.ObserveCompile(ctx, string(req.Language.ID), res.OK, res.TimeMs)
	logger.Debug(ctx, "submission compiled",
		zap.String("run_id", req.RunID),
		zap.String("language", string(req.Language.ID)),
		zap.Int("errors", res.Errors),
		zap.Int("warnings", res.Warnings),
	)
	return cc, res, nil
}

func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.RunResult, error) {
	if err := validateRunRequest(req); err != nil {
		return result.RunResult{}, err
	}
	if r.eng == nil {
		return result.RunResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("sandbox engine is not initialized")
	}

	evalSpec := spec.EvalSpec{
		RunID:       req.RunID,
		TestCase:    req.TestCase,
		Compilation: req.Compilation,
		Profile:     profile.Name(req.Language.ID, req.Profile.TaskType),
		Limits:      applyLimits(req.Limits, req.Profile.DefaultLimits, req.Language),
	}

	runRes, runErr := r.eng.Run(ctx, evalSpec)
	if runErr != nil {
		r.metrics.ObserveRun(ctx, string(req.Language.ID), string(result.VerdictSE), runRes.TimeMs, runRes.MemoryKB)
		msg := runRes.Message
		if msg == "" {
			msg = appErr.GetError(runErr).Message
		}
		return result.RunResult{
			TestID:      req.TestCase.ID,
			Description: req.TestCase.Description,
			Verdict:     result.VerdictSE,
			Message:     msg,
			TimeMs:      runRes.TimeMs,
		}, runErr
	}
	r.metrics.ObserveRun(ctx, string(req.Language.ID), string(runRes.Verdict), runRes.TimeMs, runRes.MemoryKB)
	return runRes, nil
}

func (r *DefaultRunner) Kill(ctx context.Context, runID string) error {
	if r.eng == nil {
		return appErr.New(appErr.JudgeSystemError).WithMessage("sandbox engine is not initialized")
	}
	return r.eng.KillRun(ctx, runID)
}

func validateRunRequest(req RunRequest) error {
	if req.TestCase.ID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language", "required")
	}
	if req.Profile.TaskType == "" {
		return appErr.ValidationError("task_profile", "required")
	}
	return nil
}

func applyLimits(override, defaults spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	return applyMultipliers(defaults.Merge(override), lang)
}

func applyMultipliers(limits spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, lang.TimeMultiplier)
	limits.WallTimeMs = scaleLimit(limits.WallTimeMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}
