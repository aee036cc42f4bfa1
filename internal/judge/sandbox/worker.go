package sandbox

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"lessonjudge/internal/judge/sandbox/config"
	"lessonjudge/internal/judge/sandbox/profile"
	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/runner"
	"lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/contextkey"
	"lessonjudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Worker is the sandbox scheduling unit. It compiles a submission once and
// evaluates every test case against that compilation concurrently.
type Worker struct {
	runner         runner.Runner
	langRepo       config.LanguageSpecRepository
	profileRepo    config.TaskProfileRepository
	statusReporter StatusReporter
	parallelism    int
}

var _ Service = (*Worker)(nil)

// NewWorker creates a new worker with required dependencies.
func NewWorker(
	runner runner.Runner,
	langRepo config.LanguageSpecRepository,
	profileRepo config.TaskProfileRepository,
) *Worker {
	return &Worker{
		runner:      runner,
		langRepo:    langRepo,
		profileRepo: profileRepo,
		parallelism: runtime.NumCPU(),
	}
}

// SetStatusReporter injects a status reporter for intermediate updates.
func (w *Worker) SetStatusReporter(reporter StatusReporter) {
	w.statusReporter = reporter
}

// SetParallelism bounds how many test cases of one submission run at once.
func (w *Worker) SetParallelism(n int) {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	w.parallelism = n
}

// Judge implements Service.
func (w *Worker) Judge(ctx context.Context, req EvalRequest) (result.JudgeResult, error) {
	return w.Execute(ctx, req)
}

// Kill cancels every evaluation of a run.
func (w *Worker) Kill(ctx context.Context, runID string) error {
	if w.runner == nil {
		return appErr.New(appErr.JudgeSystemError).WithMessage("worker dependencies are not initialized")
	}
	return w.runner.Kill(ctx, runID)
}

// Execute runs a full judge workflow for one submission. Failures of single
// test cases, including sandbox failures, are recorded on the result; an
// error is returned only when the run as a whole could not proceed. Tests
// still pending when ctx's deadline passes are recorded as TLE.
func (w *Worker) Execute(ctx context.Context, req EvalRequest) (result.JudgeResult, error) {
	if req.Language == "" {
		req.Language = model.LanguageTypeScript
	}
	if err := validateEvalRequest(req); err != nil {
		return result.JudgeResult{}, err
	}
	if w.runner == nil || w.langRepo == nil || w.profileRepo == nil {
		return result.JudgeResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("worker dependencies are not initialized")
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	ctx = contextkey.With(ctx, contextkey.RunID, req.RunID)
	if req.ReceivedAt == 0 {
		req.ReceivedAt = time.Now().Unix()
	}

	lang, err := w.langRepo.GetLanguageSpec(ctx, req.Language)
	if err != nil {
		return result.JudgeResult{}, err
	}
	evalProfile, err := w.profileRepo.GetTaskProfile(ctx, profile.TaskTypeEval, lang.ID)
	if err != nil {
		return result.JudgeResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "load eval profile failed")
	}

	resultBase := result.JudgeResult{
		RunID:      req.RunID,
		StepID:     req.StepID,
		Status:     result.StatusRunning,
		Language:   lang.ID,
		Timestamps: result.Timestamps{ReceivedAt: req.ReceivedAt},
	}
	totalTests := len(req.TestCases)

	w.reportStatus(ctx, req, result.StatusCompiling, totalTests, 0)
	compilation, compileRes, err := w.runner.Compile(ctx, runner.CompileRequest{
		RunID:    req.RunID,
		Language: lang,
		Source:   req.Source,
	})
	if err != nil {
		resultBase.Status = result.StatusFailed
		resultBase.Verdict = result.VerdictSE
		return resultBase, err
	}
	resultBase.Compile = &compileRes

	// Compile errors do not stop the run: test cases may assert on the
	// diagnostics themselves.
	w.reportStatus(ctx, req, result.StatusRunning, totalTests, 0)

	var (
		mu        sync.Mutex
		doneTests int
		byID      = make(map[string]result.RunResult, totalTests)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)
	for _, tc := range req.TestCases {
		g.Go(func() error {
			var runRes result.RunResult
			if gctx.Err() != nil {
				runRes = timedOut(tc, result.RunResult{})
			} else {
				tctx := contextkey.With(gctx, contextkey.TestID, tc.ID)
				var runErr error
				runRes, runErr = w.runner.Run(tctx, runner.RunRequest{
					RunID:       req.RunID,
					TestCase:    tc,
					Language:    lang,
					Profile:     evalProfile,
					Compilation: compilation,
					Limits:      req.Limits,
				})
				switch {
				case runErr != nil && gctx.Err() != nil:
					runRes = timedOut(tc, runRes)
				case runErr != nil:
					logger.Warn(contextkey.With(ctx, contextkey.TestID, tc.ID), "test case evaluation failed", zap.Error(runErr))
					runRes.TestID = tc.ID
					runRes.Description = tc.Description
					runRes.Passed = false
					runRes.Verdict = result.VerdictSE
				}
			}
			mu.Lock()
			byID[tc.ID] = runRes
			doneTests++
			done := doneTests
			mu.Unlock()
			w.reportStatus(ctx, req, result.StatusRunning, totalTests, done)
			return nil
		})
	}
	_ = g.Wait()

	tests := make([]result.RunResult, 0, totalTests)
	summary := result.SummaryStat{}
	for _, tc := range req.TestCases {
		runRes := byID[tc.ID]
		tests = append(tests, runRes)
		summary.TotalTimeMs += runRes.TimeMs
		if runRes.MemoryKB > summary.MaxMemoryKB {
			summary.MaxMemoryKB = runRes.MemoryKB
		}
		if runRes.Passed {
			summary.PassedTests++
		} else if summary.FailedTestID == "" {
			summary.FailedTestID = runRes.TestID
		}
	}

	resultBase.Tests = tests
	resultBase.Summary = summary
	resultBase.Verdict = result.Overall(tests)
	resultBase.Status = result.StatusFinished
	resultBase.Timestamps.FinishedAt = time.Now().Unix()
	// An expired run deadline is a verdict, not a failure: the tests it cut
	// short are already TLE. Explicit cancellation still fails the run.
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		resultBase.Status = result.StatusFailed
		w.reportStatus(ctx, req, result.StatusFailed, totalTests, doneTests)
		return resultBase, appErr.Wrap(err, appErr.Timeout)
	}
	w.reportStatus(context.WithoutCancel(ctx), req, result.StatusFinished, totalTests, doneTests)
	return resultBase, nil
}

// timedOut records a test the run deadline stopped or never started.
func timedOut(tc model.TestCase, partial result.RunResult) result.RunResult {
	return result.RunResult{
		TestID:      tc.ID,
		Description: tc.Description,
		Verdict:     result.VerdictTLE,
		Message:     "Test timeout",
		TimeMs:      partial.TimeMs,
		MemoryKB:    partial.MemoryKB,
		Logs:        partial.Logs,
	}
}

func (w *Worker) reportStatus(ctx context.Context, req EvalRequest, status result.JudgeStatus, totalTests, doneTests int) {
	if w.statusReporter == nil {
		return
	}
	update := StatusUpdate{
		RunID:      req.RunID,
		StepID:     req.StepID,
		Status:     status,
		Language:   req.Language,
		TotalTests: totalTests,
		DoneTests:  doneTests,
		ReceivedAt: req.ReceivedAt,
	}
	if status == result.StatusFinished || status == result.StatusFailed {
		update.FinishedAt = time.Now().Unix()
	}
	if err := w.statusReporter.ReportStatus(ctx, update); err != nil {
		logger.Warn(ctx, "report status failed", zap.Error(err))
	}
}

func validateEvalRequest(req EvalRequest) error {
	seen := make(map[string]struct{}, len(req.TestCases))
	for _, tc := range req.TestCases {
		if tc.ID == "" {
			return appErr.New(appErr.InvalidParams).WithMessage("test case id is required").WithDetail("field", "test_id")
		}
		if _, ok := seen[tc.ID]; ok {
			return appErr.New(appErr.TestCaseDuplicate).WithMessagef("duplicate test case id %q", tc.ID)
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}
