package validator_test

import (
	"context"
	"testing"

	"lessonjudge/internal/judge/compiler"
	"lessonjudge/internal/judge/validator"
	"lessonjudge/internal/lesson/model"
)

func newValidator(t *testing.T) *validator.Validator {
	t.Helper()
	c, err := compiler.New(compiler.Config{})
	if err != nil {
		t.Fatalf("new compiler: %v", err)
	}
	return validator.New(c)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestValidateClean(t *testing.T) {
	res := newValidator(t).Validate(context.Background(), "let x: number = 5;", "")
	if !res.Valid || len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("expected clean result, got %+v", res)
	}
}

func TestValidateEmpty(t *testing.T) {
	res := newValidator(t).Validate(context.Background(), "   \n", model.LanguageTypeScript)
	if res.Valid || !contains(res.Errors, validator.MsgEmpty) {
		t.Fatalf("expected empty error, got %+v", res)
	}
}

func TestValidateTypeError(t *testing.T) {
	res := newValidator(t).Validate(context.Background(), "let x: number = '5';", model.LanguageTypeScript)
	if res.Valid || len(res.Errors) == 0 {
		t.Fatalf("expected invalid result, got %+v", res)
	}
	if res.Errors[0] != "Type 'string' is not assignable to type 'number'." {
		t.Fatalf("unexpected error %q", res.Errors[0])
	}
}

func TestValidateAnyWarning(t *testing.T) {
	v := newValidator(t)
	for _, src := range []string{
		"let data: any = 1;",
		"const n = (1 as any) + 1;",
		"const m: Record<string, any> = {};",
		"// @ts-ignore\nlet y: number = 1;",
		"type Loose = any;",
	} {
		res := v.Validate(context.Background(), src, model.LanguageTypeScript)
		if !contains(res.Warnings, validator.MsgAnyType) {
			t.Fatalf("expected any warning for %q, got %+v", src, res)
		}
	}
	res := v.Validate(context.Background(), "const label = 'any value'; // any", model.LanguageTypeScript)
	if contains(res.Warnings, validator.MsgAnyType) {
		t.Fatalf("unexpected any warning: %+v", res)
	}
}

func TestValidateDynamicCode(t *testing.T) {
	v := newValidator(t)
	for _, src := range []string{
		"eval('1 + 1');",
		"const f = new Function('return 1');",
		"const g = Function('return 2');",
		"const run = (0, eval); run('1 + 1');",
		"globalThis[\"eval\"]('1 + 1');",
		"globalThis[`Function`]('return 1')();",
		"const F = Function; new F('return 1')();",
		"globalThis.eval = function () { return true; };",
		"var eval = () => true;",
		"const h = (() => {}).constructor('return 3');",
		"const k = [].map['constructor']('return 4');",
	} {
		res := v.Validate(context.Background(), src, model.LanguageJavaScript)
		if res.Valid || !contains(res.Errors, validator.MsgDynamicCode) {
			t.Fatalf("expected dynamic code error for %q, got %+v", src, res)
		}
	}
	for _, src := range []string{
		"// eval(x)\nconst s = 'new Function()';",
		"const evaluate = (x) => x * 2;\nconst label = obj['eval-mode'];",
		"class Box { constructor(size) { this.size = size; } }",
	} {
		if res := v.Validate(context.Background(), src, model.LanguageJavaScript); !res.Valid {
			t.Fatalf("expected %q to be accepted, got %+v", src, res)
		}
	}
}

func TestValidateMarkupWarnings(t *testing.T) {
	v := newValidator(t)
	res := v.Validate(context.Background(), "function App() { return <div />; }", model.LanguageJSX)
	if !res.Valid || !contains(res.Warnings, validator.MsgNoExport) {
		t.Fatalf("expected export warning, got %+v", res)
	}
	res = v.Validate(context.Background(), "export class App { render() { return <div />; } }", model.LanguageJSX)
	if !contains(res.Warnings, validator.MsgClassNoExtend) {
		t.Fatalf("expected class warning, got %+v", res)
	}
	res = v.Validate(context.Background(), "export default function App() { return <div />; }", model.LanguageTSX)
	if !res.Valid || len(res.Warnings) != 0 {
		t.Fatalf("expected clean component, got %+v", res)
	}
}

func TestTypeErrorsImplyInvalid(t *testing.T) {
	c, _ := compiler.New(compiler.Config{})
	v := validator.New(c)
	for _, src := range []string{"let x: number = '5';", "function add(a, b) { return a + b; }", "const y;"} {
		cc := c.Compile(context.Background(), src, model.LanguageTypeScript)
		if !cc.HasTypeErrors {
			t.Fatalf("expected type errors for %q", src)
		}
		if res := v.Validate(context.Background(), src, model.LanguageTypeScript); res.Valid {
			t.Fatalf("expected invalid for %q", src)
		}
	}
}
