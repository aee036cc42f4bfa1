package compiler

import "regexp"

type hint struct {
	pattern *regexp.Regexp
	help    string
}

var hints = []hint{
	{regexp.MustCompile(`Property '.+' does not exist`), "Make sure you've defined all properties in your interface or type."},
	{regexp.MustCompile(`Type '.+' is not assignable`), "Check that your types match correctly. You may need to use type assertions or fix your type definitions."},
	{regexp.MustCompile(`Cannot find name`), "This variable or type is not defined. Make sure you've declared it or imported it."},
	{regexp.MustCompile(`Expected .+ arguments, but got`), "Check the number of parameters in your function call."},
	{regexp.MustCompile(`Object is possibly 'undefined'`), "Add a null check or use optional chaining (?.) to handle undefined values."},
	{regexp.MustCompile(`Object is possibly 'null'`), "Add a null check before accessing this property."},
	{regexp.MustCompile(`'const' declarations must be initialized|The constant ".+" must be initialized`), "You need to provide an initial value when using const."},
	{regexp.MustCompile(`implicitly has an 'any(\[\])?' type`), "Add a type annotation to this parameter."},
	{regexp.MustCompile(`Type annotation needed`), "TypeScript can't infer the type here. Add an explicit type annotation."},
}

const defaultHint = "Check the TypeScript error message above and review your type definitions."

// HelpFor maps a diagnostic message to a short learner-facing hint.
func HelpFor(message string) string {
	for _, h := range hints {
		if h.pattern.MatchString(message) {
			return h.help
		}
	}
	return defaultHint
}
