// Package model defines the lesson corpus consumed by the judge.
package model

import "strings"

// Language is the dialect a step's code is written in.
type Language string

const (
	LanguageTypeScript Language = "typescript"
	LanguageJavaScript Language = "javascript"
	LanguageTSX        Language = "tsx"
	LanguageJSX        Language = "jsx"
)

// ParseLanguage normalizes a dialect name. Empty input means typescript.
func ParseLanguage(s string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ts", "typescript":
		return LanguageTypeScript, true
	case "js", "javascript":
		return LanguageJavaScript, true
	case "tsx":
		return LanguageTSX, true
	case "jsx":
		return LanguageJSX, true
	default:
		return "", false
	}
}

// Typed reports whether the dialect is statically type checked.
func (l Language) Typed() bool {
	return l == LanguageTypeScript || l == LanguageTSX
}

// Markup reports whether the dialect carries component markup.
func (l Language) Markup() bool {
	return l == LanguageJSX || l == LanguageTSX
}

// FileName is the synthetic file name used in diagnostics.
func (l Language) FileName() string {
	switch l {
	case LanguageJavaScript:
		return "submission.js"
	case LanguageJSX:
		return "submission.jsx"
	case LanguageTSX:
		return "submission.tsx"
	default:
		return "submission.ts"
	}
}

// Difficulty labels a lesson.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// TestCase is one assertion authored for a step.
type TestCase struct {
	ID           string `json:"id" yaml:"id"`
	Description  string `json:"description" yaml:"description"`
	TestFunction string `json:"testFunction" yaml:"testFunction"`
	ErrorMessage string `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
}

// Step is one exercise inside a lesson.
type Step struct {
	ID          string     `json:"id" yaml:"id"`
	Order       int        `json:"order" yaml:"order"`
	Instruction string     `json:"instruction" yaml:"instruction"`
	Hint        string     `json:"hint,omitempty" yaml:"hint,omitempty"`
	StarterCode string     `json:"starterCode" yaml:"starterCode"`
	Solution    string     `json:"solution" yaml:"solution"`
	TestCases   []TestCase `json:"testCases" yaml:"testCases"`
	Language    Language   `json:"language" yaml:"language"`
}

// Lesson groups ordered steps.
type Lesson struct {
	ID         string     `json:"id" yaml:"id"`
	ModuleID   string     `json:"moduleId" yaml:"moduleId"`
	Title      string     `json:"title" yaml:"title"`
	Order      int        `json:"order" yaml:"order"`
	XPReward   int        `json:"xpReward" yaml:"xpReward"`
	Difficulty Difficulty `json:"difficulty" yaml:"difficulty"`
	Steps      []Step     `json:"steps" yaml:"steps"`
}

// Course is the ordered corpus of lessons.
type Course struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Lessons []Lesson `json:"lessons" yaml:"lessons"`
}

// StepCount returns the number of steps across all lessons.
func (c Course) StepCount() int {
	n := 0
	for _, l := range c.Lessons {
		n += len(l.Steps)
	}
	return n
}
