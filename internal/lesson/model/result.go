package model

// Verdict classifies a single test outcome.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictRE  Verdict = "RE"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictCE  Verdict = "CE"
	VerdictSE  Verdict = "SE"
)

// TestCaseResult is the outcome of one test case.
type TestCaseResult struct {
	TestID       string  `json:"testId"`
	Description  string  `json:"description"`
	Passed       bool    `json:"passed"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	Verdict      Verdict `json:"verdict,omitempty"`
}

// TestResult aggregates all test case outcomes for one submission.
// Passed is true only when every result passed.
type TestResult struct {
	StepID  string           `json:"stepId"`
	Passed  bool             `json:"passed"`
	Results []TestCaseResult `json:"results"`
}

// Failed returns the results that did not pass, in order.
func (r TestResult) Failed() []TestCaseResult {
	var out []TestCaseResult
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// AllPassed reports whether every result passed.
func AllPassed(results []TestCaseResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// ValidationResult is the output of the static validator.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
