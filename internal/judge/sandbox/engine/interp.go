package engine

import (
	"context"
	"sync"

	"lessonjudge/internal/judge/sandbox/jsvm"
	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/spec"
	appErr "lessonjudge/pkg/errors"
)

// interpEngine evaluates in-process. Every run gets its own interpreter and
// is cancelled through its context.
type interpEngine struct {
	registryM sync.Mutex
	registry  map[string]map[uint64]context.CancelFunc
	seq       uint64
}

func newInterpEngine() *interpEngine {
	return &interpEngine{registry: make(map[string]map[uint64]context.CancelFunc)}
}

func (e *interpEngine) Run(ctx context.Context, evalSpec spec.EvalSpec) (result.RunResult, error) {
	if err := validateEvalSpec(evalSpec); err != nil {
		return result.RunResult{}, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	id := e.register(evalSpec.RunID, cancel)
	defer e.unregister(evalSpec.RunID, id)

	res := jsvm.Evaluate(runCtx, evalSpec)
	if res.Verdict == result.VerdictSE && ctx.Err() != nil {
		return res, appErr.SandboxError(ctx.Err(), "run")
	}
	return res, nil
}

func (e *interpEngine) KillRun(ctx context.Context, runID string) error {
	if runID == "" {
		return appErr.ValidationError("run_id", "required")
	}
	e.registryM.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.registry[runID]))
	for _, c := range e.registry[runID] {
		cancels = append(cancels, c)
	}
	e.registryM.Unlock()
	for _, c := range cancels {
		c()
	}
	return nil
}

func (e *interpEngine) register(runID string, cancel context.CancelFunc) uint64 {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	e.seq++
	if e.registry[runID] == nil {
		e.registry[runID] = make(map[uint64]context.CancelFunc)
	}
	e.registry[runID][e.seq] = cancel
	return e.seq
}

func (e *interpEngine) unregister(runID string, id uint64) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	delete(e.registry[runID], id)
	if len(e.registry[runID]) == 0 {
		delete(e.registry, runID)
	}
}
