package sandbox

import (
	"fmt"
	"strings"

	"lessonjudge/internal/lesson/model"
)

type hint struct {
	keyword string
	tip     string
}

// Matched in order against the lowercased test description.
var hints = []hint{
	{"should exist", "Make sure you have declared the component with the correct name."},
	{"should render", "Check that your component returns valid JSX."},
	{"should display", "Verify that you are rendering the correct text or elements."},
	{"should have", "Ensure the element has the required attribute or property."},
	{"onclick", "Make sure you have added an onClick handler to the button."},
	{"usestate", "Remember to import and use the useState hook."},
	{"props", "Check that you are correctly accessing and using props."},
	{"classname", "Verify that the className attribute is set correctly."},
}

// HintFor returns the failure message of tc with a contextual hint appended.
// It returns "" when tc passed or has no result.
func HintFor(res model.TestResult, tc model.TestCase) string {
	var failed *model.TestCaseResult
	for i := range res.Results {
		if res.Results[i].TestID == tc.ID {
			failed = &res.Results[i]
			break
		}
	}
	if failed == nil || failed.Passed {
		return ""
	}
	msg := failed.ErrorMessage
	if msg == "" {
		msg = "Test failed"
	}
	desc := strings.ToLower(tc.Description)
	for _, h := range hints {
		if strings.Contains(desc, h.keyword) {
			return msg + "\n\nHint: " + h.tip
		}
	}
	return msg
}

// FormatResults renders a human-readable summary of res.
func FormatResults(res model.TestResult) string {
	var b strings.Builder
	if res.Passed {
		b.WriteString("✅ All tests passed!\n\n")
	} else {
		b.WriteString("❌ Some tests failed\n\n")
	}
	for i, r := range res.Results {
		icon := "✅"
		if !r.Passed {
			icon = "❌"
		}
		fmt.Fprintf(&b, "%s Test %d: %s\n", icon, i+1, r.Description)
		if !r.Passed && r.ErrorMessage != "" {
			fmt.Fprintf(&b, "   Error: %s\n", r.ErrorMessage)
		}
		b.WriteString("\n")
	}
	return b.String()
}
