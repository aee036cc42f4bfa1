// Package jsvm evaluates one test case against a compiled submission inside a
// fresh embedded JavaScript interpreter.
//
// The interpreter has no filesystem, network, timer or environment bindings.
// Each call to Evaluate builds a new runtime and drops it afterwards.
package jsvm

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lessonjudge/internal/judge/compiler"
	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/spec"

	"github.com/dop251/goja"
)

const (
	maxCallStack = 2048
	maxLogLines  = 50
	maxLogBytes  = 16 * 1024

	defaultFailure   = "Test assertion failed"
	timeoutMessage   = "Test timeout"
	componentFailure = "Failed to compile the code. Make sure you export a valid React component."
)

var (
	//go:embed harness/prelude.js
	preludeSource string
	//go:embed harness/dom.js
	domSource string

	harnessOnce sync.Once
	preludeProg *goja.Program
	domProg     *goja.Program
	harnessErr  error

	errEvalTimeout = errors.New("evaluation timed out")
)

// testParams are the names bound inside every test function, in order.
var testParams = []string{
	"code", "userCode", "compiledJS", "diagnostics", "hasTypeErrors",
	"assert", "includes", "matches", "hasType",
	"render", "screen", "fireEvent", "waitFor",
	"getByText", "queryByText", "getByRole", "queryByRole", "getByTestId",
	"container", "Component", "React", "within", "act", "document",
}

func loadHarness() error {
	harnessOnce.Do(func() {
		preludeProg, harnessErr = goja.Compile("prelude.js", preludeSource, false)
		if harnessErr != nil {
			return
		}
		domProg, harnessErr = goja.Compile("dom.js", domSource, false)
	})
	return harnessErr
}

// Evaluate runs es.TestCase against es.Compilation. It never returns an
// error: every failure is reported through the verdict.
func Evaluate(ctx context.Context, es spec.EvalSpec) result.RunResult {
	start := time.Now()
	res := evaluate(ctx, es)
	res.TestID = es.TestCase.ID
	res.Description = es.TestCase.Description
	res.TimeMs = time.Since(start).Milliseconds()
	res.Passed = res.Verdict == result.VerdictAC
	return res
}

type session struct {
	vm      *goja.Runtime
	console *console
	es      spec.EvalSpec
	// eval is the intrinsic eval, read before the submission can replace
	// the global binding.
	eval goja.Value
}

func evaluate(ctx context.Context, es spec.EvalSpec) result.RunResult {
	if err := loadHarness(); err != nil {
		return systemError(fmt.Sprintf("load harness: %v", err))
	}
	if err := ctx.Err(); err != nil {
		return systemError(err.Error())
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	vm.SetMaxCallStackSize(maxCallStack)

	timer := time.AfterFunc(es.Limits.WallTime(), func() {
		vm.Interrupt(errEvalTimeout)
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	s := &session{vm: vm, console: newConsole(), es: es, eval: vm.GlobalObject().Get("eval")}
	res := s.run()
	res.Logs = s.console.lines
	return res
}

func (s *session) run() result.RunResult {
	vm := s.vm
	lang := s.es.Compilation.Language
	markup := lang.Markup()

	if err := s.installGlobals(); err != nil {
		return s.classify(err)
	}
	helpers, err := vm.RunProgram(preludeProg)
	if err != nil {
		return s.classify(err)
	}
	var harness *goja.Object
	if markup {
		v, err := vm.RunProgram(domProg)
		if err != nil {
			return s.classify(err)
		}
		harness = v.ToObject(vm)
	} else {
		_ = vm.Set("require", func(call goja.FunctionCall) goja.Value {
			panic(vm.NewGoError(fmt.Errorf("Cannot require '%s' in sandbox", call.Argument(0).String())))
		})
	}

	compiled := s.es.Compilation.CompiledOutput
	loaded := compiled != ""
	if loaded {
		if _, err := vm.RunScript(lang.FileName(), compiled); err != nil {
			if interrupted(err) {
				return s.classify(err)
			}
			loaded = false
			s.console.add("error", "Failed to load submission: "+errorMessage(vm, err))
		}
	}

	args := make(map[string]goja.Value, len(testParams))
	h := helpers.ToObject(vm)
	for _, name := range []string{"assert", "includes", "matches", "hasType"} {
		args[name] = h.Get(name)
	}
	args["code"] = vm.ToValue(s.es.Compilation.SourceCode)
	args["userCode"] = args["code"]
	args["compiledJS"] = vm.ToValue(compiled)
	args["diagnostics"] = s.diagnostics()
	args["hasTypeErrors"] = vm.ToValue(s.es.Compilation.HasTypeErrors)

	if markup {
		bindings, component, err := s.mount(harness, compiled, loaded)
		if err != nil {
			return s.classify(err)
		}
		for _, name := range []string{"render", "screen", "fireEvent", "waitFor", "getByText", "queryByText",
			"getByRole", "queryByRole", "getByTestId", "container", "within", "act"} {
			args[name] = bindings.Get(name)
		}
		args["Component"] = component
		args["React"] = harness.Get("React")
		args["document"] = harness.Get("document")
		defer s.cleanup(harness)
	}

	fn, err := s.testFunction(markup)
	if err != nil {
		return runtimeError(errorMessage(vm, err))
	}
	values := make([]goja.Value, 0, len(testParams)+1)
	for _, name := range testParams {
		v, ok := args[name]
		if !ok || v == nil {
			v = goja.Undefined()
		}
		values = append(values, v)
	}
	if fn.body != "" {
		values = append(values, s.eval, vm.ToValue(fn.body))
	}
	out, err := fn.call(goja.Undefined(), values...)
	if err != nil {
		return s.classify(err)
	}
	if call, ok := goja.AssertFunction(out); ok {
		out, err = call(goja.Undefined())
		if err != nil {
			return s.classify(err)
		}
	}
	return s.settle(out)
}

func (s *session) installGlobals() error {
	vm := s.vm
	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	if err := vm.Set("module", module); err != nil {
		return err
	}
	if err := vm.Set("exports", exports); err != nil {
		return err
	}
	return vm.Set("console", s.console.object(vm))
}

func (s *session) diagnostics() goja.Value {
	items := make([]interface{}, 0, len(s.es.Compilation.Diagnostics))
	for _, d := range s.es.Compilation.Diagnostics {
		items = append(items, map[string]interface{}{
			"category": string(d.Category),
			"code":     d.Code,
			"message":  d.Message,
			"line":     d.Line,
			"column":   d.Column,
		})
	}
	return s.vm.NewArray(items...)
}

// mount resolves the submission's component and prepares the test DOM.
func (s *session) mount(harness *goja.Object, compiled string, loaded bool) (*goja.Object, goja.Value, error) {
	vm := s.vm
	component := goja.Null()
	failure := ""
	if !loaded {
		failure = componentFailure
	} else {
		resolve, ok := goja.AssertFunction(harness.Get("resolveComponent"))
		if !ok {
			return nil, nil, errors.New("harness is missing resolveComponent")
		}
		names := componentCandidates(compiled)
		items := make([]interface{}, len(names))
		for i, n := range names {
			items[i] = n
		}
		exports := vm.Get("module").ToObject(vm).Get("exports")
		v, err := resolve(goja.Undefined(), exports, vm.NewArray(items...))
		if err != nil {
			return nil, nil, err
		}
		if goja.IsNull(v) || goja.IsUndefined(v) {
			failure = componentFailure
		} else {
			component = v
		}
	}
	setup, ok := goja.AssertFunction(harness.Get("setup"))
	if !ok {
		return nil, nil, errors.New("harness is missing setup")
	}
	bindings, err := setup(goja.Undefined(), component, vm.ToValue(failure))
	if err != nil {
		return nil, nil, err
	}
	return bindings.ToObject(vm), component, nil
}

func (s *session) cleanup(harness *goja.Object) {
	cleanup, ok := goja.AssertFunction(harness.Get("cleanup"))
	if !ok {
		return
	}
	_, _ = cleanup(goja.Undefined())
}

type testFunc struct {
	call goja.Callable
	// body is passed as the trailing argument in expression mode, after
	// the intrinsic eval.
	body string
}

// testFunction compiles the assertion body. Bodies that parse as a script
// are evaluated for their completion value; anything else (return, await)
// becomes the body of an async function.
func (s *session) testFunction(markup bool) (testFunc, error) {
	vm := s.vm
	body := s.es.TestCase.TestFunction
	params := strings.Join(testParams, ", ")

	scriptBody := body
	if markup {
		scriptBody = compiler.TransformTestBody(body)
	}
	if _, err := goja.Compile("test.js", scriptBody, false); err == nil {
		// The eval parameter holds the intrinsic, so the call stays a direct
		// eval over the test scope whatever the submission did to globalThis.
		wrapper := "(function(" + params + ", eval, __body) { return eval(__body); })"
		v, err := vm.RunString(wrapper)
		if err != nil {
			return testFunc{}, err
		}
		call, _ := goja.AssertFunction(v)
		return testFunc{call: call, body: scriptBody}, nil
	}

	wrapped := "(async function(" + params + ") {\n" + body + "\n})"
	if markup {
		wrapped = compiler.TransformTestBody(wrapped)
	}
	v, err := vm.RunScript("test.js", wrapped)
	if err != nil {
		return testFunc{}, err
	}
	call, ok := goja.AssertFunction(v)
	if !ok {
		return testFunc{}, errors.New("test function did not evaluate to a function")
	}
	return testFunc{call: call}, nil
}

// settle inspects the value produced by a test. Promise jobs have already
// drained when control returns to Go, so a pending promise never resolves.
func (s *session) settle(v goja.Value) result.RunResult {
	if v != nil {
		if p, ok := v.Export().(*goja.Promise); ok {
			switch p.State() {
			case goja.PromiseStateFulfilled:
				v = p.Result()
			case goja.PromiseStateRejected:
				return s.classifyValue(p.Result())
			default:
				return runtimeError("Test did not settle: the returned promise never resolved")
			}
		}
	}
	if v == nil || !v.ToBoolean() {
		msg := s.es.TestCase.ErrorMessage
		if msg == "" {
			msg = defaultFailure
		}
		return result.RunResult{Verdict: result.VerdictWA, Message: msg}
	}
	return result.RunResult{Verdict: result.VerdictAC}
}

func interrupted(err error) bool {
	var ie *goja.InterruptedError
	return errors.As(err, &ie)
}

// classify maps an error escaping the interpreter to a verdict.
func (s *session) classify(err error) result.RunResult {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		cause, _ := ie.Value().(error)
		switch {
		case errors.Is(cause, errEvalTimeout), errors.Is(cause, context.DeadlineExceeded):
			return result.RunResult{Verdict: result.VerdictTLE, Message: timeoutMessage}
		case cause != nil:
			return systemError(cause.Error())
		default:
			return systemError("evaluation interrupted")
		}
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return s.classifyValue(ex.Value())
	}
	return runtimeError(err.Error())
}

func (s *session) classifyValue(v goja.Value) result.RunResult {
	msg := valueMessage(s.vm, v)
	switch errorName(s.vm, v) {
	case "AssertionError", "TestingLibraryElementError":
		return result.RunResult{Verdict: result.VerdictWA, Message: msg}
	case "CompilationError":
		return result.RunResult{Verdict: result.VerdictCE, Message: msg}
	}
	if strings.Contains(msg, "Maximum call stack size exceeded") {
		return result.RunResult{Verdict: result.VerdictRE, Message: "Maximum call stack size exceeded"}
	}
	return runtimeError(msg)
}

func errorMessage(vm *goja.Runtime, err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return valueMessage(vm, ex.Value())
	}
	return err.Error()
}

func valueMessage(vm *goja.Runtime, v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "Unknown error"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
	}
	return v.String()
}

func errorName(vm *goja.Runtime, v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return ""
	}
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		return n.String()
	}
	return ""
}

func runtimeError(msg string) result.RunResult {
	return result.RunResult{Verdict: result.VerdictRE, Message: msg}
}

func systemError(msg string) result.RunResult {
	return result.RunResult{Verdict: result.VerdictSE, Message: msg}
}
