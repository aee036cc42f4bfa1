// Package batch re-validates every authored solution in a lesson corpus and
// produces a ValidationReport.
package batch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
)

// DefaultReportPath is where the JSON report is written when no path is given.
const DefaultReportPath = "./lesson-validation-report.json"

// Summary aggregates step counts. FailedSteps is always TotalSteps - PassedSteps.
type Summary struct {
	TotalLessons int     `json:"totalLessons"`
	TotalSteps   int     `json:"totalSteps"`
	PassedSteps  int     `json:"passedSteps"`
	FailedSteps  int     `json:"failedSteps"`
	SuccessRate  float64 `json:"successRate"`
}

// Failure describes one step whose solution did not validate.
type Failure struct {
	LessonID       string                  `json:"lessonId"`
	LessonTitle    string                  `json:"lessonTitle"`
	StepID         string                  `json:"stepId"`
	StepOrder      int                     `json:"stepOrder"`
	Error          string                  `json:"error,omitempty"`
	TestResults    []model.TestCaseResult  `json:"testResults,omitempty"`
	CodeValidation *model.ValidationResult `json:"codeValidation,omitempty"`
}

// StepOutcome is the result of validating one step.
type StepOutcome struct {
	Lesson         model.Lesson
	Step           model.Step
	Passed         bool
	Error          string
	TestResult     *model.TestResult
	CodeValidation *model.ValidationResult
}

func (o StepOutcome) failure() Failure {
	f := Failure{
		LessonID:       o.Lesson.ID,
		LessonTitle:    o.Lesson.Title,
		StepID:         o.Step.ID,
		StepOrder:      o.Step.Order,
		Error:          o.Error,
		CodeValidation: o.CodeValidation,
	}
	if o.TestResult != nil {
		f.TestResults = o.TestResult.Results
	}
	return f
}

// Report is the outcome of one batch run. It is not modified after Build.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Failures  []Failure `json:"failures"`

	// Steps holds every outcome in corpus order.
	Steps []StepOutcome `json:"-"`
}

// Passed reports whether every step validated.
func (r *Report) Passed() bool {
	return r.Summary.FailedSteps == 0
}

// Build aggregates outcomes, which must be in corpus order.
func Build(course model.Course, outcomes []StepOutcome, at time.Time) *Report {
	rep := &Report{
		Timestamp: at.UTC(),
		Failures:  []Failure{},
		Steps:     outcomes,
	}
	rep.Summary.TotalLessons = len(course.Lessons)
	rep.Summary.TotalSteps = len(outcomes)
	for _, o := range outcomes {
		if o.Passed {
			rep.Summary.PassedSteps++
			continue
		}
		rep.Failures = append(rep.Failures, o.failure())
	}
	rep.Summary.FailedSteps = rep.Summary.TotalSteps - rep.Summary.PassedSteps
	if rep.Summary.TotalSteps > 0 {
		rep.Summary.SuccessRate = float64(rep.Summary.PassedSteps) / float64(rep.Summary.TotalSteps) * 100
	}
	return rep
}

// Marshal encodes the report as indented JSON.
func (r *Report) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ReportWriteFailed, "encode report")
	}
	return data, nil
}

// WriteFile writes the JSON report to path, creating parent directories.
func (r *Report) WriteFile(path string) error {
	if path == "" {
		path = DefaultReportPath
	}
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return appErr.Wrapf(err, appErr.ReportWriteFailed, "create report directory %s", dir)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return appErr.Wrapf(err, appErr.ReportWriteFailed, "write report %s", path)
	}
	return nil
}
