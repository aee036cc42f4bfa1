package runner

import (
	"context"

	"lessonjudge/internal/judge/compiler"
	"lessonjudge/internal/judge/sandbox/profile"
	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/spec"
	"lessonjudge/internal/lesson/model"
)

// CompileRequest describes one compilation task.
type CompileRequest struct {
	RunID    string
	Language profile.LanguageSpec
	Source   string
}

// RunRequest describes the evaluation of one test case against a compiled
// submission.
type RunRequest struct {
	RunID       string
	TestCase    model.TestCase
	Language    profile.LanguageSpec
	Profile     profile.TaskProfile
	Compilation compiler.CompilationContext
	Limits      spec.ResourceLimit
}

// Runner orchestrates compile and run workflows.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (compiler.CompilationContext, result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.RunResult, error)
	Kill(ctx context.Context, runID string) error
}

// Compiler lowers a submission for the sandbox.
type Compiler interface {
	Compile(ctx context.Context, source string, lang model.Language) compiler.CompilationContext
}
