// Package compiler parses, type checks and lowers lesson submissions to plain
// JavaScript for the sandbox.
package compiler

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"lessonjudge/internal/lesson/model"
	"lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/logger"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/shlex"
	"go.uber.org/zap"
)

// Category is the severity of a diagnostic.
type Category string

const (
	CategoryError   Category = "error"
	CategoryWarning Category = "warning"
)

// Diagnostic sources.
const (
	SourceSyntax    = "syntax"
	SourceTypeCheck = "typecheck"
	SourceExternal  = "external"
	SourceInternal  = "internal"
)

const defaultCheckerTimeout = 10 * time.Second

// Diagnostic is one compiler message. Line is 1-based, Column is 0-based.
type Diagnostic struct {
	Category Category `json:"category"`
	Code     int      `json:"code"`
	Message  string   `json:"message"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Source   string   `json:"source,omitempty"`
}

// CompilationContext is the outcome of compiling one submission. It is never
// shared between submissions.
type CompilationContext struct {
	SourceCode     string         `json:"sourceCode"`
	Language       model.Language `json:"language"`
	CompiledOutput string         `json:"compiledOutput"`
	Diagnostics    []Diagnostic   `json:"diagnostics"`
	HasTypeErrors  bool           `json:"hasTypeErrors"`
}

// Errors returns the error diagnostics in order.
func (c CompilationContext) Errors() []Diagnostic {
	return c.filter(CategoryError)
}

// Warnings returns the warning diagnostics in order.
func (c CompilationContext) Warnings() []Diagnostic {
	return c.filter(CategoryWarning)
}

func (c CompilationContext) filter(cat Category) []Diagnostic {
	var out []Diagnostic
	for _, d := range c.Diagnostics {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	return out
}

// Config controls the compiler.
type Config struct {
	// ExternalChecker is an optional type-checker command line, e.g.
	// "tsc --noEmit --strict --pretty false". The submission file path is
	// appended, or substituted for a literal {file} argument.
	ExternalChecker string        `json:",optional" yaml:"externalChecker"`
	CheckerTimeout  time.Duration `json:",default=10s" yaml:"checkerTimeout"`
	// WorkDir holds temporary files for the external checker.
	WorkDir string `json:",optional" yaml:"workDir"`
}

// Compiler turns source text into a CompilationContext. It holds no
// per-submission state and is safe for concurrent use.
type Compiler struct {
	cfg     Config
	checker []string
}

// New creates a compiler.
func New(cfg Config) (*Compiler, error) {
	c := &Compiler{cfg: cfg}
	if strings.TrimSpace(cfg.ExternalChecker) != "" {
		args, err := shlex.Split(cfg.ExternalChecker)
		if err != nil {
			return nil, errors.Wrapf(err, errors.InvalidParams, "invalid external checker command %q", cfg.ExternalChecker)
		}
		if len(args) == 0 {
			return nil, errors.Newf(errors.InvalidParams, "external checker command is empty")
		}
		c.checker = args
	}
	if c.cfg.CheckerTimeout <= 0 {
		c.cfg.CheckerTimeout = defaultCheckerTimeout
	}
	return c, nil
}

// Compile parses and lowers source. It never returns an error: every failure
// becomes a diagnostic, and an internal failure yields empty output with
// HasTypeErrors set.
func (c *Compiler) Compile(ctx context.Context, source string, lang model.Language) (out CompilationContext) {
	if lang == "" {
		lang = model.LanguageTypeScript
	}
	out = CompilationContext{SourceCode: source, Language: lang}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "compiler panic", zap.Any("panic", r), zap.String("language", string(lang)))
			out.CompiledOutput = ""
			out.Diagnostics = append(out.Diagnostics, Diagnostic{
				Category: CategoryError,
				Message:  fmt.Sprintf("Compiler failed: %v", r),
				Line:     1,
				Source:   SourceInternal,
			})
			out.HasTypeErrors = true
		}
	}()

	res := api.Transform(source, transformOptions(lang))
	for _, msg := range res.Errors {
		out.Diagnostics = append(out.Diagnostics, fromMessage(msg, CategoryError))
	}
	for _, msg := range res.Warnings {
		out.Diagnostics = append(out.Diagnostics, fromMessage(msg, CategoryWarning))
	}
	if len(res.Errors) == 0 {
		out.CompiledOutput = string(res.Code)
		if lang.Typed() {
			out.Diagnostics = append(out.Diagnostics, c.typeCheck(ctx, source, lang)...)
		}
	}
	for _, d := range out.Diagnostics {
		if d.Category == CategoryError {
			out.HasTypeErrors = true
			break
		}
	}
	return out
}

func transformOptions(lang model.Language) api.TransformOptions {
	opts := api.TransformOptions{
		Loader:      loaderFor(lang),
		Format:      api.FormatCommonJS,
		Target:      api.ES2017,
		Sourcefile:  lang.FileName(),
		JSX:         api.JSXTransform,
		JSXFactory:  "React.createElement",
		JSXFragment: "React.Fragment",
		LogLevel:    api.LogLevelSilent,
	}
	return opts
}

func loaderFor(lang model.Language) api.Loader {
	switch lang {
	case model.LanguageJavaScript:
		return api.LoaderJS
	case model.LanguageJSX:
		return api.LoaderJSX
	case model.LanguageTSX:
		return api.LoaderTSX
	default:
		return api.LoaderTS
	}
}

func fromMessage(msg api.Message, cat Category) Diagnostic {
	d := Diagnostic{Category: cat, Message: msg.Text, Line: 1, Source: SourceSyntax}
	if msg.Location != nil {
		d.Line = msg.Location.Line
		d.Column = msg.Location.Column
	}
	return d
}

// TransformTestBody lowers markup in an assertion body so the interpreter can
// run it. The body is returned unchanged when it does not parse.
func TransformTestBody(body string) string {
	res := api.Transform(body, api.TransformOptions{
		Loader:      api.LoaderJSX,
		Target:      api.ES2017,
		JSX:         api.JSXTransform,
		JSXFactory:  "React.createElement",
		JSXFragment: "React.Fragment",
		LogLevel:    api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return body
	}
	return string(res.Code)
}

func (c *Compiler) typeCheck(ctx context.Context, source string, lang model.Language) []Diagnostic {
	if len(c.checker) > 0 {
		diags, err := c.runExternal(ctx, source, lang)
		if err == nil {
			return diags
		}
		logger.Warn(ctx, "external type checker failed, using builtin checker", zap.Error(err))
	}
	return checkTypes(source)
}

var externalLine = regexp.MustCompile(`^(.*)\((\d+),(\d+)\): (error|warning) TS(\d+): (.*)$`)

func (c *Compiler) runExternal(ctx context.Context, source string, lang model.Language) ([]Diagnostic, error) {
	dir, err := os.MkdirTemp(c.cfg.WorkDir, "lessonjudge-tc-")
	if err != nil {
		return nil, errors.Wrap(err, errors.JudgeSystemError)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, lang.FileName())
	if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
		return nil, errors.Wrap(err, errors.JudgeSystemError)
	}

	args := make([]string, 0, len(c.checker)+1)
	substituted := false
	for _, a := range c.checker {
		if a == "{file}" {
			a = path
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, path)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.CheckerTimeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = dir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout
	runErr := cmd.Run()
	if runCtx.Err() != nil {
		return nil, errors.Wrap(runCtx.Err(), errors.Timeout)
	}
	var exitErr *exec.ExitError
	if runErr != nil && !stderrors.As(runErr, &exitErr) {
		return nil, errors.Wrap(runErr, errors.JudgeSystemError)
	}
	diags := parseExternal(stdout.String())
	if runErr != nil && len(diags) == 0 {
		return nil, errors.Newf(errors.JudgeSystemError, "type checker exited with %d: %s", exitErr.ExitCode(), strings.TrimSpace(stdout.String()))
	}
	return diags, nil
}

func parseExternal(output string) []Diagnostic {
	var diags []Diagnostic
	for _, line := range strings.Split(output, "\n") {
		m := externalLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		ln, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		code, _ := strconv.Atoi(m[5])
		cat := CategoryError
		if m[4] == "warning" {
			cat = CategoryWarning
		}
		diags = append(diags, Diagnostic{
			Category: cat,
			Code:     code,
			Message:  m[6],
			Line:     ln,
			Column:   col - 1,
			Source:   SourceExternal,
		})
	}
	return diags
}
