package service

import (
	"lessonjudge/internal/judge/compiler"
	"lessonjudge/internal/judge/sandbox"
	"lessonjudge/internal/judge/sandbox/config"
	"lessonjudge/internal/judge/sandbox/engine"
	"lessonjudge/internal/judge/sandbox/observer"
	"lessonjudge/internal/judge/sandbox/runner"
	"lessonjudge/internal/judge/validator"
)

// PipelineConfig selects the compiler and sandbox used for evaluation.
type PipelineConfig struct {
	Compiler compiler.Config `json:",optional" yaml:"compiler"`
	Sandbox  engine.Config   `json:",optional" yaml:"sandbox"`
	// Parallelism bounds concurrent test cases per submission. Zero means NumCPU.
	Parallelism int `json:",optional" yaml:"parallelism"`
}

// Pipeline is the constructed evaluation stack shared by the HTTP service and
// the batch reporter.
type Pipeline struct {
	Worker    *sandbox.Worker
	Validator *validator.Validator
}

// NewPipeline builds the compiler, sandbox engine, runner and validator.
// A nil metrics recorder disables metrics.
func NewPipeline(cfg PipelineConfig, metrics observer.MetricsRecorder) (*Pipeline, error) {
	comp, err := compiler.New(cfg.Compiler)
	if err != nil {
		return nil, err
	}
	repo := config.NewDefaultRepository()
	eng, err := engine.NewEngine(cfg.Sandbox, repo)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	worker := sandbox.NewWorker(runner.NewRunnerWithObserver(comp, eng, metrics), repo, repo)
	worker.SetParallelism(cfg.Parallelism)
	return &Pipeline{Worker: worker, Validator: validator.New(comp)}, nil
}
