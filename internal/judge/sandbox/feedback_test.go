package sandbox_test

import (
	"strings"
	"testing"

	"lessonjudge/internal/judge/sandbox"
	"lessonjudge/internal/judge/sandbox/spec"
	"lessonjudge/internal/lesson/model"
)

func sandboxLimits(wallMs int64) spec.ResourceLimit {
	return spec.ResourceLimit{WallTimeMs: wallMs}
}

func TestFormatResults(t *testing.T) {
	res := model.TestResult{
		Passed: false,
		Results: []model.TestCaseResult{
			{TestID: "a", Description: "renders", Passed: true},
			{TestID: "b", Description: "counts", Passed: false, ErrorMessage: "expected 1"},
		},
	}
	out := sandbox.FormatResults(res)
	want := "❌ Some tests failed\n\n✅ Test 1: renders\n\n❌ Test 2: counts\n   Error: expected 1\n\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}

	passed := sandbox.FormatResults(model.TestResult{Passed: true})
	if !strings.HasPrefix(passed, "✅ All tests passed!") {
		t.Fatalf("unexpected summary %q", passed)
	}
}

func TestHintFor(t *testing.T) {
	res := model.TestResult{Results: []model.TestCaseResult{
		{TestID: "a", Passed: false, ErrorMessage: "no button"},
		{TestID: "b", Passed: true},
		{TestID: "c", Passed: false},
	}}
	got := sandbox.HintFor(res, model.TestCase{ID: "a", Description: "Button should have onClick"})
	if got != "no button\n\nHint: Ensure the element has the required attribute or property." {
		t.Fatalf("unexpected hint %q", got)
	}
	if got := sandbox.HintFor(res, model.TestCase{ID: "b", Description: "should render"}); got != "" {
		t.Fatalf("expected empty hint for passing test, got %q", got)
	}
	if got := sandbox.HintFor(res, model.TestCase{ID: "c", Description: "uses useState"}); got != "Test failed\n\nHint: Remember to import and use the useState hook." {
		t.Fatalf("unexpected hint %q", got)
	}
	if got := sandbox.HintFor(res, model.TestCase{ID: "missing"}); got != "" {
		t.Fatalf("expected empty hint, got %q", got)
	}
}
