package model

import lessonmodel "lessonjudge/internal/lesson/model"

// RunRequest asks the engine to run a submission against test cases.
type RunRequest struct {
	RunID      string                 `json:"runId,omitempty"`
	StepID     string                 `json:"stepId"`
	UserID     string                 `json:"userId,omitempty"`
	Language   string                 `json:"language"`
	SourceCode string                 `json:"sourceCode"`
	TestCases  []lessonmodel.TestCase `json:"testCases"`
}

// ValidateRequest asks for a static check of a submission.
type ValidateRequest struct {
	Language   string `json:"language"`
	SourceCode string `json:"sourceCode"`
}

// RunResponse is the engine's reply to a RunRequest.
type RunResponse struct {
	RunID string `json:"runId"`
	lessonmodel.TestResult
	// Feedback is the human-readable summary of the results.
	Feedback string `json:"feedback"`
}
