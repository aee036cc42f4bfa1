package jsvm_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"lessonjudge/internal/judge/compiler"
	"lessonjudge/internal/judge/sandbox/jsvm"
	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/spec"
	"lessonjudge/internal/lesson/model"
)

func compile(t *testing.T, source string, lang model.Language) compiler.CompilationContext {
	t.Helper()
	c, err := compiler.New(compiler.Config{})
	if err != nil {
		t.Fatalf("new compiler: %v", err)
	}
	return c.Compile(context.Background(), source, lang)
}

func evaluate(t *testing.T, source string, lang model.Language, body string) result.RunResult {
	t.Helper()
	return jsvm.Evaluate(context.Background(), spec.EvalSpec{
		RunID:       "run-1",
		TestCase:    model.TestCase{ID: "t1", Description: "test", TestFunction: body},
		Compilation: compile(t, source, lang),
		Limits:      spec.ResourceLimit{WallTimeMs: 2000},
	})
}

func expectVerdict(t *testing.T, res result.RunResult, verdict result.Verdict, message string) {
	t.Helper()
	if res.Verdict != verdict {
		t.Fatalf("expected verdict %s, got %s (%q)", verdict, res.Verdict, res.Message)
	}
	if res.Passed != (verdict == result.VerdictAC) {
		t.Fatalf("passed flag %v does not match verdict %s", res.Passed, verdict)
	}
	if message != "" && res.Message != message {
		t.Fatalf("expected message %q, got %q", message, res.Message)
	}
}

func TestEvaluateExpressionBody(t *testing.T) {
	res := evaluate(t, "let x: number = 5;", model.LanguageTypeScript, "code.includes('5')")
	expectVerdict(t, res, result.VerdictAC, "")
	if res.TestID != "t1" || res.Description != "test" {
		t.Fatalf("unexpected identity: %+v", res)
	}
}

func TestEvaluateReturnBody(t *testing.T) {
	src := "function add(a: number, b: number): number {\n  return a + b;\n}"
	res := evaluate(t, src, model.LanguageTypeScript, "return add(2, 3) === 5;")
	expectVerdict(t, res, result.VerdictAC, "")
}

func TestEvaluateSeesTopLevelBindings(t *testing.T) {
	src := "const greeting = 'hi';\nlet count: number = 2;\nclass Box { size = 3; }"
	res := evaluate(t, src, model.LanguageTypeScript, "greeting === 'hi' && count === 2 && new Box().size === 3")
	expectVerdict(t, res, result.VerdictAC, "")
}

func TestEvaluateIgnoresReplacedGlobalEval(t *testing.T) {
	src := "let x: number = 1;\nglobalThis.eval = function () { return true; };"

	res := evaluate(t, src, model.LanguageTypeScript, `code.includes("42")`)
	expectVerdict(t, res, result.VerdictWA, "Test assertion failed")

	res = evaluate(t, src, model.LanguageTypeScript, "x === 2")
	expectVerdict(t, res, result.VerdictWA, "")

	res = evaluate(t, src, model.LanguageTypeScript, "x === 1 && typeof assert === 'function'")
	expectVerdict(t, res, result.VerdictAC, "")
}

func TestEvaluateMarkupIgnoresReplacedGlobalEval(t *testing.T) {
	src := "function Greeting() { return <h1>Hi</h1>; }\nglobalThis.eval = () => function Fake() { return null; };"
	res := evaluate(t, src, model.LanguageJSX, "Component.name === 'Greeting' && screen.getByText('Hi').tagName === 'H1'")
	expectVerdict(t, res, result.VerdictAC, "")
}

func TestEvaluateThrownError(t *testing.T) {
	res := evaluate(t, "let x = 1;", model.LanguageJavaScript, "throw new Error('boom')")
	expectVerdict(t, res, result.VerdictRE, "boom")
}

func TestEvaluateFalsyResult(t *testing.T) {
	res := evaluate(t, "let x = 1;", model.LanguageJavaScript, "x === 2")
	expectVerdict(t, res, result.VerdictWA, "Test assertion failed")

	custom := jsvm.Evaluate(context.Background(), spec.EvalSpec{
		TestCase:    model.TestCase{ID: "t2", TestFunction: "return false;", ErrorMessage: "x should be 2"},
		Compilation: compile(t, "let x = 1;", model.LanguageJavaScript),
	})
	expectVerdict(t, custom, result.VerdictWA, "x should be 2")
}

func TestEvaluateAssertHelpers(t *testing.T) {
	res := evaluate(t, "let name = 'Ada';", model.LanguageJavaScript,
		"assert(includes(name, 'A'), 'missing A');\nassert(matches(name, /^a/), 'should start lowercase');\nreturn true;")
	expectVerdict(t, res, result.VerdictWA, "should start lowercase")

	typed := evaluate(t, "let total: number = 1;", model.LanguageTypeScript, "hasType(code, 'number') && !hasTypeErrors && diagnostics.length === 0")
	expectVerdict(t, typed, result.VerdictAC, "")
}

func TestEvaluateDiagnosticsVisible(t *testing.T) {
	res := evaluate(t, "let x: number = '5';", model.LanguageTypeScript,
		"hasTypeErrors && diagnostics[0].code === 2322 && diagnostics[0].category === 'error'")
	expectVerdict(t, res, result.VerdictAC, "")
}

func TestEvaluateFunctionAndPromiseResults(t *testing.T) {
	fn := evaluate(t, "const n = 3;", model.LanguageJavaScript, "() => n === 3")
	expectVerdict(t, fn, result.VerdictAC, "")

	async := evaluate(t, "const load = () => Promise.resolve(42);", model.LanguageJavaScript,
		"const v = await load();\nreturn v === 42;")
	expectVerdict(t, async, result.VerdictAC, "")

	rejected := evaluate(t, "const n = 1;", model.LanguageJavaScript, "return Promise.reject(new Error('nope'));")
	expectVerdict(t, rejected, result.VerdictRE, "nope")

	pending := evaluate(t, "const n = 1;", model.LanguageJavaScript, "return new Promise(() => {});")
	expectVerdict(t, pending, result.VerdictRE, "")
}

func TestEvaluateTimeout(t *testing.T) {
	start := time.Now()
	res := jsvm.Evaluate(context.Background(), spec.EvalSpec{
		TestCase:    model.TestCase{ID: "loop", TestFunction: "while (true) {}"},
		Compilation: compile(t, "let x = 1;", model.LanguageJavaScript),
		Limits:      spec.ResourceLimit{WallTimeMs: 200},
	})
	expectVerdict(t, res, result.VerdictTLE, "Test timeout")
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected interrupt near the limit, took %s", elapsed)
	}
}

func TestEvaluateTimeoutDuringLoad(t *testing.T) {
	res := jsvm.Evaluate(context.Background(), spec.EvalSpec{
		TestCase:    model.TestCase{ID: "load", TestFunction: "true"},
		Compilation: compile(t, "for (;;) {}", model.LanguageJavaScript),
		Limits:      spec.ResourceLimit{WallTimeMs: 200},
	})
	expectVerdict(t, res, result.VerdictTLE, "Test timeout")
}

func TestEvaluateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := jsvm.Evaluate(ctx, spec.EvalSpec{
		TestCase:    model.TestCase{ID: "c", TestFunction: "true"},
		Compilation: compile(t, "let x = 1;", model.LanguageJavaScript),
	})
	expectVerdict(t, res, result.VerdictSE, "")
}

func TestEvaluateStackOverflow(t *testing.T) {
	res := evaluate(t, "function f(n) { return f(n + 1); }", model.LanguageJavaScript, "f(0)")
	expectVerdict(t, res, result.VerdictRE, "")
}

func TestEvaluateNoHostAccess(t *testing.T) {
	res := evaluate(t, "let x = 1;", model.LanguageJavaScript,
		"typeof setTimeout === 'undefined' && typeof process === 'undefined' && typeof fetch === 'undefined'")
	expectVerdict(t, res, result.VerdictAC, "")

	req := evaluate(t, "const fs = require('fs');", model.LanguageJavaScript, "true")
	expectVerdict(t, req, result.VerdictAC, "")
	if len(req.Logs) != 1 || !strings.Contains(req.Logs[0], "Cannot require 'fs' in sandbox") {
		t.Fatalf("expected load failure to be logged, got %v", req.Logs)
	}
}

func TestEvaluateConsoleCaptured(t *testing.T) {
	res := evaluate(t, "console.log('hello', 1);", model.LanguageJavaScript, "true")
	expectVerdict(t, res, result.VerdictAC, "")
	if len(res.Logs) != 1 || res.Logs[0] != "log: hello 1" {
		t.Fatalf("unexpected logs: %v", res.Logs)
	}
}

const counterSource = `import React, { useState } from 'react';

export default function Counter({ start = 0 }: { start?: number }) {
  const [count, setCount] = useState(start);
  return (
    <div>
      <p>Count: {count}</p>
      <button onClick={() => setCount(count + 1)}>Increment</button>
    </div>
  );
}
`

func TestEvaluateMarkupCounter(t *testing.T) {
	body := "fireEvent.click(screen.getByRole('button', { name: 'Increment' }));\nreturn getByText('Count: 1') !== null;"
	res := evaluate(t, counterSource, model.LanguageTSX, body)
	expectVerdict(t, res, result.VerdictAC, "")
}

func TestEvaluateMarkupExplicitRender(t *testing.T) {
	body := "const { getByText, container } = render(<Component start={5} />);\nreturn getByText('Count: 5') !== null && container.querySelectorAll('button').length === 1;"
	res := evaluate(t, counterSource, model.LanguageTSX, body)
	expectVerdict(t, res, result.VerdictAC, "")
}

func TestEvaluateMarkupQueryFailure(t *testing.T) {
	res := evaluate(t, counterSource, model.LanguageTSX, "getByText('Count: 9')")
	expectVerdict(t, res, result.VerdictWA, "")
	if !strings.HasPrefix(res.Message, "Unable to find an element with the text: Count: 9") {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestEvaluateMarkupEffectsAndInputs(t *testing.T) {
	src := `function NameForm() {
  const [name, setName] = React.useState('');
  const [title, setTitle] = React.useState('');
  React.useEffect(() => { setTitle('Hello ' + name); }, [name]);
  return (
    <form>
      <label htmlFor="name">Name</label>
      <input id="name" value={name} onChange={(e) => setName(e.target.value)} />
      <h1>{title}</h1>
    </form>
  );
}`
	body := `fireEvent.change(screen.getByLabelText('Name'), { target: { value: 'Ada' } });
return screen.getByRole('heading', { level: 1 }).textContent === 'Hello Ada';`
	res := evaluate(t, src, model.LanguageJSX, body)
	expectVerdict(t, res, result.VerdictAC, "")
}

func TestEvaluateMarkupWithoutComponent(t *testing.T) {
	res := evaluate(t, "const value = 1;", model.LanguageJSX, "screen.getByText('x')")
	expectVerdict(t, res, result.VerdictCE, "Failed to compile the code. Make sure you export a valid React component.")

	codeOnly := evaluate(t, "const value = 1;", model.LanguageJSX, "code.includes('value')")
	expectVerdict(t, codeOnly, result.VerdictAC, "")
}

func TestEvaluateMarkupNamedComponent(t *testing.T) {
	src := "function Helper() { return null; }\nfunction Greeting() { return <h2>Hello</h2>; }"
	res := evaluate(t, src, model.LanguageJSX, "Component.name === 'Greeting' && screen.getByText('Hello').tagName === 'H2'")
	expectVerdict(t, res, result.VerdictAC, "")
}

func TestEvaluateMarkupIsolatedBetweenRuns(t *testing.T) {
	for i := 0; i < 2; i++ {
		res := evaluate(t, counterSource, model.LanguageTSX, "screen.getAllByRole('button').length === 1")
		expectVerdict(t, res, result.VerdictAC, "")
	}
}
