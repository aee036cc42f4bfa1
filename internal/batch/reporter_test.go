package batch_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lessonjudge/internal/batch"
	judgemodel "lessonjudge/internal/judge/model"
	"lessonjudge/internal/judge/sandbox/engine"
	"lessonjudge/internal/judge/service"
	"lessonjudge/internal/lesson/corpus"
	"lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
)

func newJudge(t *testing.T, concurrency int) *service.Service {
	t.Helper()
	p, err := service.NewPipeline(service.PipelineConfig{Sandbox: engine.Config{Mode: engine.ModeInterp}}, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	svc, err := service.NewService(service.Config{
		Judge:          p.Worker,
		Validator:      p.Validator,
		RunTimeout:     10 * time.Second,
		QueueWait:      time.Minute,
		MaxConcurrency: concurrency,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func tsStep(id string, order int, solution string, tests ...model.TestCase) model.Step {
	return model.Step{ID: id, Order: order, Solution: solution, TestCases: tests, Language: model.LanguageTypeScript}
}

func tc(id, desc, body string) model.TestCase {
	return model.TestCase{ID: id, Description: desc, TestFunction: body}
}

func threeStepLesson(id string) model.Lesson {
	return model.Lesson{
		ID:    id,
		Title: "Lesson " + id,
		Steps: []model.Step{
			tsStep(id+"-1", 1, "let a: number = 1;", tc("t1", "a is one", "return a === 1;")),
			tsStep(id+"-2", 2, "let s: string = 'hi';", tc("t1", "s is hi", "return s === 'hi';")),
			tsStep(id+"-3", 3, "function twice(n: number): number { return n * 2; }", tc("t1", "twice doubles", "twice(4) === 8")),
		},
	}
}

func TestReporterAllStepsPass(t *testing.T) {
	course := model.Course{Lessons: []model.Lesson{threeStepLesson("l1"), threeStepLesson("l2")}}
	rep := batch.NewReporter(newJudge(t, 2), batch.Options{Parallel: 2}).Run(context.Background(), course)

	want := batch.Summary{TotalLessons: 2, TotalSteps: 6, PassedSteps: 6, FailedSteps: 0, SuccessRate: 100}
	if rep.Summary != want {
		t.Fatalf("expected %+v, got %+v (failures %+v)", want, rep.Summary, rep.Failures)
	}
	if !rep.Passed() || len(rep.Failures) != 0 {
		t.Fatalf("expected a clean report, got %+v", rep.Failures)
	}
}

func TestReporterRecordsFailingTest(t *testing.T) {
	lesson := threeStepLesson("l1")
	lesson.Steps[1] = tsStep("l1-2", 2, "let a: number = 1;",
		tc("t1", "a is one", "return a === 1;"),
		tc("t2", "a is two", "return a === 2;"),
	)
	course := model.Course{Lessons: []model.Lesson{lesson}}
	rep := batch.NewReporter(newJudge(t, 1), batch.Options{}).Run(context.Background(), course)

	if rep.Summary.FailedSteps != 1 || rep.Summary.PassedSteps != 2 {
		t.Fatalf("unexpected summary %+v", rep.Summary)
	}
	if rep.Summary.FailedSteps != rep.Summary.TotalSteps-rep.Summary.PassedSteps {
		t.Fatalf("summary counts do not add up: %+v", rep.Summary)
	}
	if len(rep.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", rep.Failures)
	}
	f := rep.Failures[0]
	if f.LessonID != "l1" || f.StepID != "l1-2" || f.StepOrder != 2 || f.Error != "" {
		t.Fatalf("unexpected failure entry %+v", f)
	}
	var failing []string
	for _, r := range f.TestResults {
		if !r.Passed {
			failing = append(failing, r.Description)
		}
	}
	if len(failing) != 1 || failing[0] != "a is two" {
		t.Fatalf("expected the failing description to be listed, got %v", failing)
	}
	if f.CodeValidation == nil || !f.CodeValidation.Valid {
		t.Fatalf("expected the static check to pass, got %+v", f.CodeValidation)
	}
}

func TestReporterKeepsResultsOfTimedOutStep(t *testing.T) {
	tests := make([]model.TestCase, 0, 6)
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6"} {
		tests = append(tests, tc(id, "check "+id, "return i === 0;"))
	}
	lesson := model.Lesson{ID: "loops", Title: "Loops", Steps: []model.Step{
		tsStep("loops-1", 1, "let i = 0; while (i < 10) {}", tests...),
	}}
	rep := batch.NewReporter(newJudge(t, 1), batch.Options{StepTimeout: 500 * time.Millisecond}).
		Run(context.Background(), model.Course{Lessons: []model.Lesson{lesson}})

	if len(rep.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", rep.Failures)
	}
	f := rep.Failures[0]
	if f.Error != "" || len(f.TestResults) != 6 {
		t.Fatalf("expected six test results and no step error, got %+v", f)
	}
	for _, r := range f.TestResults {
		if r.Verdict != model.VerdictTLE || r.ErrorMessage != "Test timeout" {
			t.Fatalf("expected TLE for %s, got %+v", r.TestID, r)
		}
	}
}

func TestReporterFailsOnStaticErrors(t *testing.T) {
	course := model.Course{Lessons: []model.Lesson{{
		ID:    "bad",
		Title: "Type error",
		Steps: []model.Step{tsStep("bad-1", 1, "let x: number = '5';", tc("t1", "mentions five", "return code.includes('5');"))},
	}}}
	rep := batch.NewReporter(newJudge(t, 1), batch.Options{}).Run(context.Background(), course)
	if rep.Passed() {
		t.Fatalf("expected failure for a solution with type errors")
	}
	f := rep.Failures[0]
	if f.CodeValidation == nil || f.CodeValidation.Valid || len(f.CodeValidation.Errors) == 0 {
		t.Fatalf("expected code validation errors, got %+v", f.CodeValidation)
	}
}

// TestShippedCurriculumPasses guards the embedded lessons: every authored
// solution must pass its own tests.
func TestShippedCurriculumPasses(t *testing.T) {
	course, err := corpus.Default()
	if err != nil {
		t.Fatalf("load curriculum: %v", err)
	}
	rep := batch.NewReporter(newJudge(t, 4), batch.Options{Parallel: 4}).Run(context.Background(), course)
	if !rep.Passed() {
		data, _ := json.MarshalIndent(rep.Failures, "", "  ")
		t.Fatalf("expected every step to pass, got %d failures:\n%s", rep.Summary.FailedSteps, data)
	}
	if rep.Summary.TotalSteps != course.StepCount() || rep.Summary.SuccessRate != 100 {
		t.Fatalf("unexpected summary %+v", rep.Summary)
	}
}

type fakeJudge struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeJudge) Validate(ctx context.Context, source, language string) (model.ValidationResult, error) {
	return model.ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}, nil
}

func (f *fakeJudge) Run(ctx context.Context, req judgemodel.RunRequest) (judgemodel.RunResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.StepID)
	f.mu.Unlock()
	switch req.SourceCode {
	case "panic":
		panic("boom")
	case "error":
		return judgemodel.RunResponse{}, appErr.New(appErr.JudgeQueueFull).WithMessage("judge is at capacity")
	case "slow":
		time.Sleep(20 * time.Millisecond)
	}
	res := model.TestResult{StepID: req.StepID, Passed: true}
	for _, c := range req.TestCases {
		res.Results = append(res.Results, model.TestCaseResult{TestID: c.ID, Description: c.Description, Passed: true})
	}
	return judgemodel.RunResponse{TestResult: res}, nil
}

func TestReporterIsolatesStepFailures(t *testing.T) {
	steps := []model.Step{
		{ID: "s1", Order: 1, Solution: "slow"},
		{ID: "s2", Order: 2, Solution: "panic"},
		{ID: "s3", Order: 3, Solution: "error"},
		{ID: "s4", Order: 4, Solution: "ok"},
	}
	course := model.Course{Lessons: []model.Lesson{{ID: "l", Title: "Mixed", Steps: steps}}}
	judge := &fakeJudge{}
	rep := batch.NewReporter(judge, batch.Options{Parallel: 3}).Run(context.Background(), course)

	if len(judge.calls) != 4 {
		t.Fatalf("expected every step to run, got %v", judge.calls)
	}
	if rep.Summary.TotalSteps != 4 || rep.Summary.PassedSteps != 2 || rep.Summary.FailedSteps != 2 {
		t.Fatalf("unexpected summary %+v", rep.Summary)
	}
	for i, o := range rep.Steps {
		if o.Step.ID != steps[i].ID {
			t.Fatalf("expected corpus order, got %s at %d", o.Step.ID, i)
		}
	}
	if rep.Failures[0].StepID != "s2" || !strings.Contains(rep.Failures[0].Error, "boom") {
		t.Fatalf("expected panic recorded for s2, got %+v", rep.Failures[0])
	}
	if rep.Failures[1].StepID != "s3" || rep.Failures[1].Error != "judge is at capacity" {
		t.Fatalf("expected judge error recorded for s3, got %+v", rep.Failures[1])
	}
}

func TestReportWriteFile(t *testing.T) {
	course := model.Course{Lessons: []model.Lesson{{ID: "l", Steps: []model.Step{{ID: "s"}}}}}
	rep := batch.Build(course, []batch.StepOutcome{{Lesson: course.Lessons[0], Step: course.Lessons[0].Steps[0], Passed: true}},
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	path := filepath.Join(t.TempDir(), "out", "report.json")
	if err := rep.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["timestamp"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp %v", decoded["timestamp"])
	}
	summary := decoded["summary"].(map[string]interface{})
	if summary["successRate"].(float64) != 100 || summary["totalLessons"].(float64) != 1 {
		t.Fatalf("unexpected summary %v", summary)
	}
	if failures, ok := decoded["failures"].([]interface{}); !ok || len(failures) != 0 {
		t.Fatalf("expected empty failures array, got %v", decoded["failures"])
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if err := rep.WriteFile(filepath.Join(blocker, "report.json")); !appErr.Is(err, appErr.ReportWriteFailed) {
		t.Fatalf("expected report write failure, got %v", err)
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	rep := batch.Build(model.Course{}, nil, time.Now())
	if rep.Summary.SuccessRate != 0 || !rep.Passed() {
		t.Fatalf("unexpected empty report %+v", rep.Summary)
	}
	if rep.Failures == nil {
		t.Fatalf("expected non-nil failures slice")
	}
}
