package sandbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lessonjudge/internal/judge/compiler"
	"lessonjudge/internal/judge/sandbox"
	"lessonjudge/internal/judge/sandbox/config"
	"lessonjudge/internal/judge/sandbox/engine"
	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/runner"
	"lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
)

type fakeRunner struct {
	mu        sync.Mutex
	compiles  int
	runs      []string
	runErrFor string
	verdicts  map[string]result.Verdict
	// block makes every evaluation wait for its context, like a hung loop.
	block bool
}

func (f *fakeRunner) Compile(ctx context.Context, req runner.CompileRequest) (compiler.CompilationContext, result.CompileResult, error) {
	f.mu.Lock()
	f.compiles++
	f.mu.Unlock()
	return compiler.CompilationContext{SourceCode: req.Source, Language: req.Language.ID, CompiledOutput: req.Source}, result.CompileResult{OK: true}, nil
}

func (f *fakeRunner) Run(ctx context.Context, req runner.RunRequest) (result.RunResult, error) {
	f.mu.Lock()
	f.runs = append(f.runs, req.TestCase.ID)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return result.RunResult{TestID: req.TestCase.ID, Verdict: result.VerdictSE, Message: ctx.Err().Error()}, appErr.SandboxError(ctx.Err(), "run")
	}
	if req.TestCase.ID == f.runErrFor {
		return result.RunResult{TestID: req.TestCase.ID, Verdict: result.VerdictSE, Message: "helper crashed"}, errors.New("helper crashed")
	}
	verdict := result.VerdictAC
	if v, ok := f.verdicts[req.TestCase.ID]; ok {
		verdict = v
	}
	return result.RunResult{
		TestID:      req.TestCase.ID,
		Description: req.TestCase.Description,
		Passed:      verdict == result.VerdictAC,
		Verdict:     verdict,
		TimeMs:      2,
	}, nil
}

func (f *fakeRunner) Kill(ctx context.Context, runID string) error { return nil }

type recordingReporter struct {
	mu      sync.Mutex
	updates []sandbox.StatusUpdate
}

func (r *recordingReporter) ReportStatus(ctx context.Context, update sandbox.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	return nil
}

func newWorker(r runner.Runner) *sandbox.Worker {
	repo := config.NewDefaultRepository()
	return sandbox.NewWorker(r, repo, repo)
}

func cases(ids ...string) []model.TestCase {
	out := make([]model.TestCase, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.TestCase{ID: id, Description: "test " + id, TestFunction: "true"})
	}
	return out
}

func TestExecuteCompilesOnceAndKeepsOrder(t *testing.T) {
	fr := &fakeRunner{verdicts: map[string]result.Verdict{"b": result.VerdictWA}}
	w := newWorker(fr)
	w.SetParallelism(3)
	rep := &recordingReporter{}
	w.SetStatusReporter(rep)

	res, err := w.Execute(context.Background(), sandbox.EvalRequest{StepID: "s1", Source: "let x = 1;", TestCases: cases("c", "a", "b", "d")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.compiles != 1 {
		t.Fatalf("expected one compilation, got %d", fr.compiles)
	}
	if len(fr.runs) != 4 {
		t.Fatalf("expected 4 runs, got %d", len(fr.runs))
	}
	order := []string{"c", "a", "b", "d"}
	for i, tr := range res.Tests {
		if tr.TestID != order[i] {
			t.Fatalf("expected test %s at %d, got %s", order[i], i, tr.TestID)
		}
	}
	if res.Verdict != result.VerdictWA || res.Summary.FailedTestID != "b" || res.Summary.PassedTests != 3 {
		t.Fatalf("unexpected aggregate: %+v", res)
	}
	if res.RunID == "" || res.Language != model.LanguageTypeScript || res.Status != result.StatusFinished {
		t.Fatalf("unexpected identity: %+v", res)
	}
	tr := res.TestResult()
	if tr.Passed || tr.StepID != "s1" || len(tr.Failed()) != 1 {
		t.Fatalf("unexpected test result: %+v", tr)
	}

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if len(rep.updates) < 3 {
		t.Fatalf("expected status updates, got %d", len(rep.updates))
	}
	if rep.updates[0].Status != result.StatusCompiling {
		t.Fatalf("expected first status Compiling, got %s", rep.updates[0].Status)
	}
	last := rep.updates[len(rep.updates)-1]
	if last.Status != result.StatusFinished || last.DoneTests != 4 || last.TotalTests != 4 || last.FinishedAt == 0 {
		t.Fatalf("unexpected final update: %+v", last)
	}
}

func TestExecuteRecordsSandboxFailure(t *testing.T) {
	fr := &fakeRunner{runErrFor: "b"}
	res, err := newWorker(fr).Execute(context.Background(), sandbox.EvalRequest{TestCases: cases("a", "b")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tests[1].Verdict != result.VerdictSE || res.Tests[1].Passed || res.Tests[1].Description != "test b" {
		t.Fatalf("expected SE result for b, got %+v", res.Tests[1])
	}
	if !res.Tests[0].Passed {
		t.Fatalf("expected a to pass, got %+v", res.Tests[0])
	}
}

func TestExecuteRunDeadlineMarksTestsTimedOut(t *testing.T) {
	fr := &fakeRunner{block: true}
	w := newWorker(fr)
	w.SetParallelism(1)
	rep := &recordingReporter{}
	w.SetStatusReporter(rep)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := w.Execute(ctx, sandbox.EvalRequest{StepID: "s1", TestCases: cases("a", "b", "c", "d")})
	if err != nil {
		t.Fatalf("expected results without error, got %v", err)
	}
	if res.Status != result.StatusFinished || res.Verdict != result.VerdictTLE || len(res.Tests) != 4 {
		t.Fatalf("expected finished TLE run with 4 tests, got %+v", res)
	}
	for i, tr := range res.Tests {
		if tr.TestID != []string{"a", "b", "c", "d"}[i] || tr.Verdict != result.VerdictTLE || tr.Message != "Test timeout" || tr.Passed {
			t.Fatalf("expected TLE for test %d, got %+v", i, tr)
		}
	}
	if res.Tests[3].Description != "test d" {
		t.Fatalf("expected description on unstarted test, got %+v", res.Tests[3])
	}
	if res.Summary.FailedTestID != "a" {
		t.Fatalf("expected first failing test a, got %q", res.Summary.FailedTestID)
	}
	last := rep.updates[len(rep.updates)-1]
	if last.Status != result.StatusFinished {
		t.Fatalf("expected final status Finished, got %+v", last)
	}
}

func TestExecuteCancelledRunFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newWorker(&fakeRunner{block: true}).Execute(ctx, sandbox.EvalRequest{TestCases: cases("a", "b")})
	if !appErr.Is(err, appErr.Timeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if res.Status != result.StatusFailed || len(res.Tests) != 2 || res.Tests[1].Verdict != result.VerdictTLE {
		t.Fatalf("expected failed run keeping test results, got %+v", res)
	}
}

func TestExecuteRejectsBadTestIDs(t *testing.T) {
	w := newWorker(&fakeRunner{})
	_, err := w.Execute(context.Background(), sandbox.EvalRequest{TestCases: cases("a", "a")})
	if !appErr.Is(err, appErr.TestCaseDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	_, err = w.Execute(context.Background(), sandbox.EvalRequest{TestCases: cases("")})
	if !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected invalid params, got %v", err)
	}
	_, err = w.Execute(context.Background(), sandbox.EvalRequest{Language: "cobol", TestCases: cases("a")})
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected unsupported language, got %v", err)
	}
}

func TestExecuteWithoutTestCases(t *testing.T) {
	res, err := newWorker(&fakeRunner{}).Execute(context.Background(), sandbox.EvalRequest{Source: "let x = 1;"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Verdict != result.VerdictAC || !res.TestResult().Passed {
		t.Fatalf("expected vacuous pass, got %+v", res)
	}
}

func realWorker(t *testing.T) *sandbox.Worker {
	t.Helper()
	comp, err := compiler.New(compiler.Config{})
	if err != nil {
		t.Fatalf("new compiler: %v", err)
	}
	repo := config.NewDefaultRepository()
	eng, err := engine.NewEngine(engine.Config{Mode: engine.ModeInterp}, repo)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return sandbox.NewWorker(runner.NewRunner(comp, eng), repo, repo)
}

func TestExecuteEndToEnd(t *testing.T) {
	w := realWorker(t)
	res, err := w.Execute(context.Background(), sandbox.EvalRequest{
		StepID:   "numbers",
		Language: model.LanguageTypeScript,
		Source:   "let x: number = 5;",
		TestCases: []model.TestCase{
			{ID: "has-five", Description: "source contains 5", TestFunction: "code.includes('5')"},
			{ID: "boom", Description: "throws", TestFunction: "throw new Error('boom')"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := res.TestResult()
	if tr.Passed {
		t.Fatalf("expected failure, got %+v", tr)
	}
	if !tr.Results[0].Passed {
		t.Fatalf("expected first test to pass, got %+v", tr.Results[0])
	}
	if tr.Results[1].Passed || tr.Results[1].ErrorMessage != "boom" || tr.Results[1].Verdict != result.VerdictRE {
		t.Fatalf("unexpected second result: %+v", tr.Results[1])
	}
	if res.Compile == nil || !res.Compile.OK {
		t.Fatalf("expected successful compile, got %+v", res.Compile)
	}
}

func TestExecuteEndToEndTimeout(t *testing.T) {
	w := realWorker(t)
	res, err := w.Execute(context.Background(), sandbox.EvalRequest{
		Language:  model.LanguageJavaScript,
		Source:    "let x = 1;",
		TestCases: []model.TestCase{{ID: "loop", Description: "hangs", TestFunction: "while (true) {}"}},
		Limits:    sandboxLimits(300),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Tests[0].Verdict != result.VerdictTLE || res.Tests[0].Message != "Test timeout" {
		t.Fatalf("expected TLE, got %+v", res.Tests[0])
	}
}

func TestExecuteEndToEndRunDeadline(t *testing.T) {
	w := realWorker(t)
	w.SetParallelism(1)
	tcs := make([]model.TestCase, 0, 6)
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6"} {
		tcs = append(tcs, model.TestCase{ID: id, Description: "check " + id, TestFunction: "i === 0"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	res, err := w.Execute(ctx, sandbox.EvalRequest{
		Language:  model.LanguageJavaScript,
		Source:    "let i = 0; while (i < 10) {}",
		TestCases: tcs,
		Limits:    sandboxLimits(30000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := res.TestResult()
	if tr.Passed || len(tr.Results) != 6 {
		t.Fatalf("expected 6 failing results, got %+v", tr)
	}
	for _, r := range tr.Results {
		if r.Verdict != result.VerdictTLE || r.ErrorMessage != "Test timeout" {
			t.Fatalf("expected TLE for %s, got %+v", r.TestID, r)
		}
	}
}
