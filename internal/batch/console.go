package batch

import (
	"fmt"
	"io"
	"strings"

	"lessonjudge/internal/judge/sandbox"
	"lessonjudge/internal/lesson/model"

	"github.com/fatih/color"
)

var rule = strings.Repeat("=", 60)

// Console prints batch progress and the final summary.
type Console struct {
	out     io.Writer
	colored bool
}

// NewConsole creates a console writing to out. colored forces ANSI colours
// on or off regardless of the terminal.
func NewConsole(out io.Writer, colored bool) *Console {
	return &Console{out: out, colored: colored}
}

func (c *Console) paint(attrs ...color.Attribute) *color.Color {
	p := color.New(attrs...)
	if c.colored {
		p.EnableColor()
	} else {
		p.DisableColor()
	}
	return p
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// Banner prints the run header.
func (c *Console) Banner(course model.Course) {
	c.paint(color.Bold).Fprintln(c.out, "🚀 Lesson Validation")
	c.printf("%s\n\n", strings.Repeat("=", 42))
	c.printf("Total Lessons to Validate: %d\n", len(course.Lessons))
}

// Lessons prints per-step outcomes grouped by lesson, in corpus order.
func (c *Console) Lessons(rep *Report) {
	red := c.paint(color.FgRed)
	green := c.paint(color.FgGreen)
	current := ""
	for _, o := range rep.Steps {
		if o.Lesson.ID != current {
			current = o.Lesson.ID
			c.printf("\n📚 Validating Lesson: %s (%s)\n", o.Lesson.Title, o.Lesson.ID)
			c.printf("   Difficulty: %s | XP: %d | Steps: %d\n", o.Lesson.Difficulty, o.Lesson.XPReward, len(o.Lesson.Steps))
		}
		if o.Passed {
			green.Fprintf(c.out, "   ✅ Step %d passed all tests\n", o.Step.Order)
			continue
		}
		red.Fprintf(c.out, "   ❌ Step %d FAILED\n", o.Step.Order)
		if o.Error != "" {
			red.Fprintf(c.out, "      Error: %s\n", o.Error)
		}
		if o.TestResult != nil {
			for _, tr := range o.TestResult.Failed() {
				msg := tr.ErrorMessage
				if msg == "" {
					msg = "Failed"
				}
				red.Fprintf(c.out, "      ❌ %s: %s\n", tr.Description, msg)
			}
		}
		if o.CodeValidation != nil && !o.CodeValidation.Valid {
			for _, e := range o.CodeValidation.Errors {
				red.Fprintf(c.out, "      ❌ Code Error: %s\n", e)
			}
		}
	}
}

// Summary prints the totals and the detail of every failed step.
func (c *Console) Summary(rep *Report) {
	s := rep.Summary
	c.printf("\n\n%s\n", rule)
	c.paint(color.Bold).Fprintln(c.out, "📊 VALIDATION SUMMARY")
	c.printf("%s\n", rule)
	c.printf("Total Lessons:    %d\n", s.TotalLessons)
	c.printf("Total Steps:      %d\n", s.TotalSteps)
	c.paint(color.FgGreen).Fprintf(c.out, "Passed Steps:     %d ✅\n", s.PassedSteps)
	failed := c.paint(color.FgGreen)
	if s.FailedSteps > 0 {
		failed = c.paint(color.FgRed)
	}
	failed.Fprintf(c.out, "Failed Steps:     %d ❌\n", s.FailedSteps)
	c.printf("Success Rate:     %.2f%%\n", s.SuccessRate)
	c.printf("%s\n", rule)

	if len(rep.Failures) == 0 {
		c.paint(color.FgGreen, color.Bold).Fprintln(c.out, "\n🎉 ALL TESTS PASSED! 🎉")
		c.printf("All lessons are working correctly!\n")
	} else {
		red := c.paint(color.FgRed, color.Bold)
		red.Fprintln(c.out, "\n❌ FAILED STEPS:")
		c.printf("%s\n", strings.Repeat("-", 60))
		for _, f := range rep.Failures {
			c.failure(f)
		}
	}
	c.printf("\n%s\n", rule)
}

func (c *Console) failure(f Failure) {
	c.printf("\nLesson: %s (%s)\n", f.LessonTitle, f.LessonID)
	c.printf("Step: %s (Order: %d)\n", f.StepID, f.StepOrder)
	if f.Error != "" {
		c.paint(color.FgRed).Fprintf(c.out, "Error: %s\n", f.Error)
	}
	if len(f.TestResults) > 0 {
		res := model.TestResult{StepID: f.StepID, Passed: model.AllPassed(f.TestResults), Results: f.TestResults}
		c.printf("%s", sandbox.FormatResults(res))
	}
	if v := f.CodeValidation; v != nil && !v.Valid {
		c.printf("Code Validation Errors:\n")
		for _, e := range v.Errors {
			c.printf("  - %s\n", e)
		}
		if len(v.Warnings) > 0 {
			c.printf("Warnings:\n")
			for _, w := range v.Warnings {
				c.printf("  - %s\n", w)
			}
		}
	}
}

// Exported prints where the JSON report went.
func (c *Console) Exported(path string) {
	c.printf("\n📄 Validation report exported to: %s\n", path)
}

// Uploaded prints where the report artifact was stored.
func (c *Console) Uploaded(bucket, key string) {
	c.printf("☁️  Report uploaded to: %s/%s\n", bucket, key)
}

// Fatal prints an error that aborted the run.
func (c *Console) Fatal(err error) {
	c.paint(color.FgRed, color.Bold).Fprintf(c.out, "❌ Fatal error during validation: %v\n", err)
}
