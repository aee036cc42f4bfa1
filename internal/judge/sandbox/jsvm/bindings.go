package jsvm

import (
	"strings"
	"unicode"

	"lessonjudge/internal/judge/compiler"

	"github.com/dop251/goja"
)

// console collects console output up to maxLogLines/maxLogBytes.
type console struct {
	lines []string
	size  int
}

func newConsole() *console {
	return &console{}
}

func (c *console) add(level, msg string) {
	if len(c.lines) >= maxLogLines || c.size >= maxLogBytes {
		return
	}
	line := level + ": " + msg
	if c.size+len(line) > maxLogBytes {
		line = line[:maxLogBytes-c.size]
	}
	c.size += len(line)
	c.lines = append(c.lines, line)
}

func (c *console) object(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		level := level
		_ = obj.Set(level, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				parts = append(parts, a.String())
			}
			c.add(level, strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	return obj
}

// componentCandidates lists capitalized top-level function, class and
// variable names of compiled output, in declaration order.
func componentCandidates(compiled string) []string {
	toks := compiler.Scan(compiled)
	var names []string
	seen := map[string]bool{}
	depth := 0
	for i, t := range toks {
		if t.Kind == compiler.TokenPunct {
			switch t.Text {
			case "{", "(", "[":
				depth++
			case "}", ")", "]":
				depth--
			}
			continue
		}
		if depth != 0 || t.Kind != compiler.TokenIdent || i+1 >= len(toks) {
			continue
		}
		switch t.Text {
		case "function", "class", "const", "let", "var":
		default:
			continue
		}
		next := toks[i+1]
		if next.Kind == compiler.TokenPunct && next.Text == "*" && i+2 < len(toks) {
			next = toks[i+2]
		}
		if next.Kind != compiler.TokenIdent || next.Text == "" {
			continue
		}
		if r := []rune(next.Text)[0]; !unicode.IsUpper(r) {
			continue
		}
		if !seen[next.Text] {
			seen[next.Text] = true
			names = append(names, next.Text)
		}
	}
	return names
}
