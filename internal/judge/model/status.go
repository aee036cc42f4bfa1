// Package model defines the judge service's request, status and event types.
package model

import (
	"lessonjudge/internal/judge/sandbox/result"
	lessonmodel "lessonjudge/internal/lesson/model"
)

// JudgeStatusResponse is the cached run status returned to API clients.
type JudgeStatusResponse struct {
	RunID        string                `json:"runId"`
	StepID       string                `json:"stepId,omitempty"`
	Status       result.JudgeStatus    `json:"status"`
	Verdict      result.Verdict        `json:"verdict,omitempty"`
	Language     lessonmodel.Language  `json:"language"`
	Summary      result.SummaryStat    `json:"summary"`
	Compile      *result.CompileResult `json:"compile,omitempty"`
	Tests        []result.RunResult    `json:"tests,omitempty"`
	Timestamps   result.Timestamps     `json:"timestamps"`
	Progress     Progress              `json:"progress"`
	ErrorCode    int                   `json:"errorCode,omitempty"`
	ErrorMessage string                `json:"errorMessage,omitempty"`
}

// Progress represents judge progress.
type Progress struct {
	TotalTests int `json:"totalTests"`
	DoneTests  int `json:"doneTests"`
}
