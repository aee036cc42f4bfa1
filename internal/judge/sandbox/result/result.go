// Package result defines sandbox evaluation results and verdict mapping.
package result

import "lessonjudge/internal/lesson/model"

// JudgeStatus represents the lifecycle state of a submission.
type JudgeStatus string

const (
	StatusPending   JudgeStatus = "Pending"
	StatusCompiling JudgeStatus = "Compiling"
	StatusRunning   JudgeStatus = "Running"
	StatusFinished  JudgeStatus = "Finished"
	StatusFailed    JudgeStatus = "Failed"
)

// Verdict represents the final outcome of one evaluation.
type Verdict = model.Verdict

const (
	VerdictAC  = model.VerdictAC
	VerdictWA  = model.VerdictWA
	VerdictTLE = model.VerdictTLE
	VerdictMLE = model.VerdictMLE
	VerdictRE  = model.VerdictRE
	VerdictCE  = model.VerdictCE
	VerdictSE  = model.VerdictSE
)

// RunResult captures the outcome of evaluating one test case.
type RunResult struct {
	TestID      string  `json:"testId"`
	Description string  `json:"description,omitempty"`
	Passed      bool    `json:"passed"`
	Verdict     Verdict `json:"verdict"`
	Message     string  `json:"message,omitempty"`
	TimeMs      int64   `json:"timeMs"`
	MemoryKB    int64   `json:"memoryKb,omitempty"`
	// Logs holds console output written by the submission, truncated.
	Logs []string `json:"logs,omitempty"`
}

// CompileResult summarizes the compilation stage.
type CompileResult struct {
	OK            bool  `json:"ok"`
	HasTypeErrors bool  `json:"hasTypeErrors"`
	Errors        int   `json:"errors"`
	Warnings      int   `json:"warnings"`
	TimeMs        int64 `json:"timeMs"`
}

// SummaryStat captures aggregate statistics across test cases.
type SummaryStat struct {
	TotalTimeMs  int64  `json:"totalTimeMs"`
	MaxMemoryKB  int64  `json:"maxMemoryKb"`
	PassedTests  int    `json:"passedTests"`
	FailedTestID string `json:"failedTestId,omitempty"`
}

// Timestamps captures submission lifecycle timestamps.
type Timestamps struct {
	ReceivedAt int64 `json:"receivedAt"`
	FinishedAt int64 `json:"finishedAt"`
}

// JudgeResult is the unified response structure for a submission.
type JudgeResult struct {
	RunID      string         `json:"runId"`
	StepID     string         `json:"stepId"`
	Status     JudgeStatus    `json:"status"`
	Verdict    Verdict        `json:"verdict"`
	Language   model.Language `json:"language"`
	Compile    *CompileResult `json:"compile,omitempty"`
	Tests      []RunResult    `json:"tests"`
	Summary    SummaryStat    `json:"summary"`
	Timestamps Timestamps     `json:"timestamps"`
}

// TestResult converts the sandbox view into the lesson-facing result. Timing
// stays on JudgeResult so equal submissions give equal TestResults.
func (r JudgeResult) TestResult() model.TestResult {
	out := model.TestResult{StepID: r.StepID, Results: make([]model.TestCaseResult, 0, len(r.Tests))}
	for _, t := range r.Tests {
		res := model.TestCaseResult{
			TestID:      t.TestID,
			Description: t.Description,
			Passed:      t.Passed,
			Verdict:     t.Verdict,
		}
		if !t.Passed {
			res.ErrorMessage = t.Message
		}
		out.Results = append(out.Results, res)
	}
	out.Passed = model.AllPassed(out.Results)
	return out
}

// Overall picks the verdict reported for a whole submission: AC when every
// test passed, otherwise the verdict of the first failing test.
func Overall(tests []RunResult) Verdict {
	for _, t := range tests {
		if !t.Passed {
			return t.Verdict
		}
	}
	return VerdictAC
}
