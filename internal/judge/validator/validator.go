// Package validator statically checks a submission without running it.
package validator

import (
	"context"
	"regexp"
	"strings"

	"lessonjudge/internal/judge/compiler"
	"lessonjudge/internal/lesson/model"
)

const (
	MsgEmpty         = "Code cannot be empty"
	MsgAnyType       = `Use of "any" type detected. Try to use more specific types.`
	MsgDynamicCode   = "Use of eval() or Function() is not allowed for security reasons."
	MsgNoExport      = "No export statement found. Make sure to export your component."
	MsgClassNoExtend = "Class component detected without extends. Make sure to extend React.Component."
)

var tsDirective = regexp.MustCompile(`(//|/\*)\s*@ts-(ignore|nocheck|expect-error)`)

// Compiler produces diagnostics for a submission.
type Compiler interface {
	Compile(ctx context.Context, source string, lang model.Language) compiler.CompilationContext
}

// Validator reports problems in a submission independently of its tests.
type Validator struct {
	comp Compiler
}

// New creates a validator backed by comp.
func New(comp Compiler) *Validator {
	return &Validator{comp: comp}
}

// Validate checks source written in lang. An empty lang means typescript.
// The result is valid only when no errors were found.
func (v *Validator) Validate(ctx context.Context, source string, lang model.Language) model.ValidationResult {
	if lang == "" {
		lang = model.LanguageTypeScript
	}
	errs := []string{}
	warnings := []string{}

	if strings.TrimSpace(source) == "" {
		errs = append(errs, MsgEmpty)
	}

	cc := v.comp.Compile(ctx, source, lang)
	for _, d := range cc.Diagnostics {
		switch d.Category {
		case compiler.CategoryError:
			errs = append(errs, d.Message)
		case compiler.CategoryWarning:
			warnings = append(warnings, d.Message)
		}
	}

	toks := compiler.Scan(source)
	if lang.Typed() && (usesAny(toks) || tsDirective.MatchString(source)) {
		warnings = append(warnings, MsgAnyType)
	}
	if usesDynamicCode(toks) {
		errs = append(errs, MsgDynamicCode)
	}
	if lang.Markup() && strings.TrimSpace(source) != "" {
		if !hasIdent(toks, "export") {
			warnings = append(warnings, MsgNoExport)
		}
		if hasIdent(toks, "class") && !hasIdent(toks, "extends") {
			warnings = append(warnings, MsgClassNoExtend)
		}
	}

	return model.ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// usesAny finds `any` in a type position: after a colon, `as`, a type
// argument bracket or a union/intersection operator.
func usesAny(toks []compiler.Token) bool {
	for i, t := range toks {
		if t.Kind != compiler.TokenIdent || t.Text != "any" || i == 0 {
			continue
		}
		prev := toks[i-1]
		switch prev.Text {
		case ":", "as", "<", ",", "|", "&":
			return true
		case "=":
			if isTypeAlias(toks, i-1) {
				return true
			}
		}
	}
	return false
}

func isTypeAlias(toks []compiler.Token, eq int) bool {
	return eq >= 2 && toks[eq-2].Text == "type" && toks[eq-1].Kind == compiler.TokenIdent
}

// dynamicCodeNames are the globals that compile strings into code.
var dynamicCodeNames = map[string]bool{"eval": true, "Function": true}

// usesDynamicCode flags any reference to eval or Function, whether called,
// aliased, assigned, read as a property (globalThis.eval) or computed
// (globalThis["eval"]), plus the constructor route (fn.constructor("...")).
func usesDynamicCode(toks []compiler.Token) bool {
	for i, t := range toks {
		switch t.Kind {
		case compiler.TokenIdent:
			if dynamicCodeNames[t.Text] {
				return true
			}
			if t.Text == "constructor" && i > 0 && i+1 < len(toks) &&
				(toks[i-1].Text == "." || toks[i-1].Text == "?.") && toks[i+1].Text == "(" {
				return true
			}
		case compiler.TokenString, compiler.TokenTemplate:
			if i > 0 && i+1 < len(toks) && toks[i-1].Text == "[" && toks[i+1].Text == "]" &&
				(dynamicCodeNames[t.Value] || t.Value == "constructor") {
				return true
			}
		}
	}
	return false
}

func hasIdent(toks []compiler.Token, name string) bool {
	for _, t := range toks {
		if t.Kind == compiler.TokenIdent && t.Text == name {
			return true
		}
	}
	return false
}
