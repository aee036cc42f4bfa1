package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Diagnostic codes mirror the TypeScript compiler's numbering so learners can
// look them up.
const (
	codeNotAssignable      = 2322
	codeImplicitAnyParam   = 7006
	codeImplicitAnyRest    = 7019
	codeImplicitAnyBinding = 7031
)

// primitiveRank orders union members for display; null and undefined print last.
var primitiveRank = map[string]int{
	"any": 0, "unknown": 1, "string": 4, "number": 5, "bigint": 6, "boolean": 7,
	"void": 8, "never": 9, "symbol": 10, "object": 11, "null": 1000, "undefined": 1001,
}

var controlKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true, "with": true, "function": true,
}

type memberKind int

const (
	memberPrimitive memberKind = iota
	memberStringLit
	memberNumberLit
	memberBoolLit
	memberArray
	memberUnknown
)

type typeMember struct {
	kind    memberKind
	name    string // primitive name or literal text
	elem    *tsType
	display string
	order   int
}

type tsType struct {
	members []typeMember
	display string
}

func (t *tsType) known() bool {
	if t == nil || len(t.members) == 0 {
		return false
	}
	for _, m := range t.members {
		if m.kind == memberUnknown {
			return false
		}
		if m.kind == memberArray && !m.elem.known() {
			return false
		}
	}
	return true
}

// couldHaveSingletons follows the compiler's rule for when a literal source
// type is reported without widening. boolean on its own does not count.
func (t *tsType) couldHaveSingletons() bool {
	for _, m := range t.members {
		switch m.kind {
		case memberStringLit, memberNumberLit, memberBoolLit:
			return true
		case memberPrimitive:
			if m.name == "null" || m.name == "undefined" {
				return true
			}
		}
	}
	return false
}

// value is a literal initializer.
type value struct {
	kind  memberKind // memberPrimitive for null/undefined, literal kinds otherwise, memberArray for arrays
	text  string
	elems []value
	tok   Token
}

func (v value) widened() string {
	switch v.kind {
	case memberStringLit:
		return "string"
	case memberNumberLit:
		if strings.HasSuffix(v.text, "n") {
			return "bigint"
		}
		return "number"
	case memberBoolLit:
		return "boolean"
	case memberArray:
		var names []string
		seen := map[string]bool{}
		for _, e := range v.elems {
			w := e.widened()
			if !seen[w] {
				seen[w] = true
				names = append(names, w)
			}
		}
		switch len(names) {
		case 0:
			return "never[]"
		case 1:
			return names[0] + "[]"
		default:
			return "(" + strings.Join(names, " | ") + ")[]"
		}
	default:
		return v.text
	}
}

func (v value) literal() string {
	switch v.kind {
	case memberStringLit:
		return strconv.Quote(v.text)
	case memberArray:
		return v.widened()
	default:
		return v.text
	}
}

func assignable(v value, t *tsType) bool {
	for _, m := range t.members {
		if memberAccepts(m, v) {
			return true
		}
	}
	return false
}

func memberAccepts(m typeMember, v value) bool {
	switch m.kind {
	case memberPrimitive:
		switch m.name {
		case "any", "unknown":
			return true
		case "string":
			return v.kind == memberStringLit
		case "number":
			return v.kind == memberNumberLit && !strings.HasSuffix(v.text, "n")
		case "bigint":
			return v.kind == memberNumberLit && strings.HasSuffix(v.text, "n")
		case "boolean":
			return v.kind == memberBoolLit
		case "null":
			return v.kind == memberPrimitive && v.text == "null"
		case "undefined", "void":
			return v.kind == memberPrimitive && v.text == "undefined"
		case "object":
			return v.kind == memberArray
		}
		return false
	case memberStringLit, memberBoolLit:
		return v.kind == m.kind && v.text == m.name
	case memberNumberLit:
		if v.kind != memberNumberLit {
			return false
		}
		a, errA := strconv.ParseFloat(v.text, 64)
		b, errB := strconv.ParseFloat(m.name, 64)
		return errA == nil && errB == nil && a == b
	case memberArray:
		if v.kind != memberArray {
			return false
		}
		for _, e := range v.elems {
			if !assignable(e, m.elem) {
				return false
			}
		}
		return true
	}
	return true
}

// checker runs the built-in strict checks over a token stream.
type checker struct {
	toks    []Token
	aliases map[string]*tsType
	diags   []Diagnostic
}

// checkTypes applies the strict-mode rules the built-in checker supports:
// literal initializers and returns against declared types (including null and
// undefined), and implicit any on unannotated parameters.
func checkTypes(src string) []Diagnostic {
	c := &checker{toks: Scan(src), aliases: map[string]*tsType{}}
	c.collectAliases()
	c.checkDeclarations()
	c.checkParameters()
	c.checkReturns()
	sort.SliceStable(c.diags, func(i, j int) bool {
		if c.diags[i].Line != c.diags[j].Line {
			return c.diags[i].Line < c.diags[j].Line
		}
		return c.diags[i].Column < c.diags[j].Column
	})
	return c.diags
}

func (c *checker) tok(i int) (Token, bool) {
	if i < 0 || i >= len(c.toks) {
		return Token{}, false
	}
	return c.toks[i], true
}

func (c *checker) is(i int, text string) bool {
	t, ok := c.tok(i)
	return ok && t.Kind != TokenString && t.Kind != TokenTemplate && t.Text == text
}

func (c *checker) report(t Token, code int, format string, args ...interface{}) {
	c.diags = append(c.diags, Diagnostic{
		Category: CategoryError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Line:     t.Line,
		Column:   t.Col - 1,
		Source:   SourceTypeCheck,
	})
}

func (c *checker) collectAliases() {
	for i := 0; i+2 < len(c.toks); i++ {
		if !c.is(i, "type") || c.toks[i+1].Kind != TokenIdent || !c.is(i+2, "=") {
			continue
		}
		if i > 0 && !c.toks[i].NewlineBefore && !c.is(i-1, ";") && !c.is(i-1, "export") && !c.is(i-1, "}") && !c.is(i-1, "declare") {
			continue
		}
		end := c.typeEnd(i+3, false)
		c.aliases[c.toks[i+1].Text] = c.parseType(c.toks[i+3 : end])
	}
}

// typeEnd returns the index just past a type annotation starting at i.
// With stopAtAssign set, a depth-0 '=' also ends the type.
func (c *checker) typeEnd(i int, stopAtAssign bool) int {
	depth := 0
	j := i
	for ; j < len(c.toks); j++ {
		t := c.toks[j]
		if t.Kind == TokenPunct {
			switch t.Text {
			case "(", "[", "{", "<":
				depth++
				continue
			case ")", "]", "}", ">":
				if depth == 0 {
					return j
				}
				depth--
				continue
			}
		}
		if depth > 0 {
			continue
		}
		if t.Kind == TokenPunct && (t.Text == ";" || t.Text == ",") {
			return j
		}
		if stopAtAssign && t.Kind == TokenPunct && t.Text == "=" {
			return j
		}
		if j > i && t.NewlineBefore && !(t.Kind == TokenPunct && t.Text == "|") && !c.is(j-1, "|") {
			return j
		}
	}
	return j
}

func (c *checker) parseType(toks []Token) *tsType {
	parts := splitTopLevel(toks, "|")
	t := &tsType{}
	for idx, part := range parts {
		if len(part) == 0 {
			if idx == 0 {
				continue // leading '|'
			}
			return &tsType{members: []typeMember{{kind: memberUnknown}}}
		}
		m := c.parseMember(part)
		if alias, ok := c.aliases[m.name]; ok && m.kind == memberUnknown && len(part) == 1 {
			for _, am := range alias.members {
				am.display = part[0].Text
				t.members = append(t.members, am)
			}
			continue
		}
		m.order = 100 + idx
		t.members = append(t.members, m)
	}
	t.display = displayUnion(t.members, len(parts) == 1 || (len(parts) == 2 && len(parts[0]) == 0))
	return t
}

func displayUnion(members []typeMember, single bool) string {
	if len(members) == 0 {
		return ""
	}
	if single || len(members) == 1 {
		return members[0].display
	}
	sorted := make([]typeMember, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool { return rank(sorted[i]) < rank(sorted[j]) })
	var out []string
	seen := map[string]bool{}
	for _, m := range sorted {
		if !seen[m.display] {
			seen[m.display] = true
			out = append(out, m.display)
		}
	}
	return strings.Join(out, " | ")
}

func rank(m typeMember) int {
	if m.kind == memberPrimitive {
		if r, ok := primitiveRank[m.name]; ok {
			return r
		}
	}
	return m.order
}

func (c *checker) parseMember(part []Token) typeMember {
	n := len(part)
	if n >= 3 && part[n-2].Text == "[" && part[n-1].Text == "]" {
		inner := part[:n-2]
		if len(inner) >= 2 && inner[0].Text == "(" && inner[len(inner)-1].Text == ")" {
			inner = inner[1 : len(inner)-1]
		}
		elem := c.parseType(inner)
		disp := elem.display
		if len(elem.members) > 1 {
			disp = "(" + disp + ")"
		}
		return typeMember{kind: memberArray, elem: elem, display: disp + "[]"}
	}
	if n >= 4 && part[0].Text == "Array" && part[1].Text == "<" && part[n-1].Text == ">" {
		elem := c.parseType(part[2 : n-1])
		disp := elem.display
		if len(elem.members) > 1 {
			disp = "(" + disp + ")"
		}
		return typeMember{kind: memberArray, elem: elem, display: disp + "[]"}
	}
	if n == 2 && part[0].Text == "-" && part[1].Kind == TokenNumber {
		return typeMember{kind: memberNumberLit, name: "-" + part[1].Text, display: "-" + part[1].Text}
	}
	if n != 1 {
		return typeMember{kind: memberUnknown}
	}
	t := part[0]
	switch t.Kind {
	case TokenString:
		return typeMember{kind: memberStringLit, name: t.Value, display: strconv.Quote(t.Value)}
	case TokenNumber:
		return typeMember{kind: memberNumberLit, name: t.Text, display: t.Text}
	case TokenIdent:
		if _, ok := primitiveRank[t.Text]; ok {
			return typeMember{kind: memberPrimitive, name: t.Text, display: t.Text}
		}
		if t.Text == "true" || t.Text == "false" {
			return typeMember{kind: memberBoolLit, name: t.Text, display: t.Text}
		}
		return typeMember{kind: memberUnknown, name: t.Text, display: t.Text}
	}
	return typeMember{kind: memberUnknown}
}

func splitTopLevel(toks []Token, sep string) [][]Token {
	var parts [][]Token
	depth := 0
	start := 0
	for i, t := range toks {
		if t.Kind != TokenPunct {
			continue
		}
		switch t.Text {
		case "(", "[", "{", "<":
			depth++
		case ")", "]", "}", ">":
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, toks[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, toks[start:])
}

// parseValue reads a literal initializer at i. It returns ok=false when the
// expression is anything other than a self-contained literal.
func (c *checker) parseValue(i int) (value, int, bool) {
	t, ok := c.tok(i)
	if !ok {
		return value{}, i, false
	}
	switch t.Kind {
	case TokenString:
		return value{kind: memberStringLit, text: t.Value, tok: t}, i + 1, true
	case TokenTemplate:
		if strings.Contains(t.Text, "${") {
			return value{}, i, false
		}
		return value{kind: memberStringLit, text: t.Value, tok: t}, i + 1, true
	case TokenNumber:
		return value{kind: memberNumberLit, text: t.Text, tok: t}, i + 1, true
	case TokenIdent:
		switch t.Text {
		case "true", "false":
			return value{kind: memberBoolLit, text: t.Text, tok: t}, i + 1, true
		case "null", "undefined":
			return value{kind: memberPrimitive, text: t.Text, tok: t}, i + 1, true
		}
	case TokenPunct:
		if t.Text == "-" {
			if n, ok := c.tok(i + 1); ok && n.Kind == TokenNumber {
				return value{kind: memberNumberLit, text: "-" + n.Text, tok: t}, i + 2, true
			}
		}
		if t.Text == "[" {
			arr := value{kind: memberArray, tok: t}
			j := i + 1
			for {
				if c.is(j, "]") {
					return arr, j + 1, true
				}
				el, next, ok := c.parseValue(j)
				if !ok || el.kind == memberArray {
					return value{}, i, false
				}
				arr.elems = append(arr.elems, el)
				j = next
				if c.is(j, ",") {
					j++
					continue
				}
				if !c.is(j, "]") {
					return value{}, i, false
				}
			}
		}
	}
	return value{}, i, false
}

// terminates reports whether an expression may end right before index i.
func (c *checker) terminates(i int) bool {
	t, ok := c.tok(i)
	if !ok {
		return true
	}
	if t.Kind == TokenPunct && (t.Text == ";" || t.Text == "," || t.Text == "}" || t.Text == ")") {
		return true
	}
	return t.NewlineBefore && !(t.Kind == TokenPunct && (t.Text == "." || t.Text == "?." || t.Text == "+" || t.Text == "-" || t.Text == "?"))
}

func (c *checker) checkDeclarations() {
	for i := 0; i+3 < len(c.toks); i++ {
		if !(c.is(i, "let") || c.is(i, "const") || c.is(i, "var")) {
			continue
		}
		name := c.toks[i+1]
		if name.Kind != TokenIdent || !c.is(i+2, ":") {
			continue
		}
		end := c.typeEnd(i+3, true)
		if !c.is(end, "=") {
			continue
		}
		typ := c.parseType(c.toks[i+3 : end])
		if !typ.known() {
			continue
		}
		v, next, ok := c.parseValue(end + 1)
		if !ok || !c.terminates(next) {
			continue
		}
		c.checkAssign(name, v, typ)
	}
}

func (c *checker) checkAssign(at Token, v value, typ *tsType) {
	if assignable(v, typ) {
		return
	}
	// Elaborate array literals element by element when the target is a single array type.
	if v.kind == memberArray && len(typ.members) == 1 && typ.members[0].kind == memberArray {
		elemType := typ.members[0].elem
		for _, e := range v.elems {
			if !assignable(e, elemType) {
				c.report(e.tok, codeNotAssignable, "Type '%s' is not assignable to type '%s'.", sourceDisplay(e, elemType), elemType.display)
			}
		}
		return
	}
	c.report(at, codeNotAssignable, "Type '%s' is not assignable to type '%s'.", sourceDisplay(v, typ), typ.display)
}

func sourceDisplay(v value, target *tsType) string {
	if target.couldHaveSingletons() {
		return v.literal()
	}
	return v.widened()
}

// functionStart reports whether the 'function' keyword at i begins a
// declaration or an initializer of an unannotated variable.
func (c *checker) functionStart(i int) bool {
	j := i - 1
	if c.is(j, "async") {
		j--
	}
	prev, ok := c.tok(j)
	if !ok {
		return true
	}
	if prev.Kind == TokenPunct {
		switch prev.Text {
		case ";", "{", "}":
			return true
		case "=":
			return c.unannotatedVar(j - 1)
		}
		return false
	}
	return prev.Text == "export" || prev.Text == "default"
}

// unannotatedVar reports whether i is the name in `let|const|var name =`.
func (c *checker) unannotatedVar(i int) bool {
	t, ok := c.tok(i)
	return ok && t.Kind == TokenIdent && (c.is(i-1, "let") || c.is(i-1, "const") || c.is(i-1, "var"))
}

func (c *checker) matching(open int) int {
	openText := c.toks[open].Text
	closeText := map[string]string{"(": ")", "[": "]", "{": "}", "<": ">"}[openText]
	depth := 0
	for j := open; j < len(c.toks); j++ {
		if c.toks[j].Kind != TokenPunct {
			continue
		}
		switch c.toks[j].Text {
		case openText:
			depth++
		case closeText:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func (c *checker) checkParameters() {
	for i := 0; i < len(c.toks); i++ {
		switch {
		case c.is(i, "function") && c.functionStart(i):
			j := i + 1
			if c.is(j, "*") {
				j++
			}
			if t, ok := c.tok(j); ok && t.Kind == TokenIdent {
				j++
			}
			if c.is(j, "<") {
				if end := c.matching(j); end > 0 {
					j = end + 1
				}
			}
			if c.is(j, "(") {
				if end := c.matching(j); end > 0 {
					c.checkParamList(j+1, end)
				}
			}
		case c.is(i, "=") && c.unannotatedVar(i-1):
			j := i + 1
			if c.is(j, "async") {
				j++
			}
			if t, ok := c.tok(j); ok && t.Kind == TokenIdent && c.is(j+1, "=>") {
				c.report(t, codeImplicitAnyParam, "Parameter '%s' implicitly has an 'any' type.", t.Text)
				continue
			}
			if !c.is(j, "(") {
				continue
			}
			end := c.matching(j)
			if end < 0 {
				continue
			}
			if c.is(end+1, "=>") || (c.is(end+1, ":") && c.arrowAhead(end+2)) {
				c.checkParamList(j+1, end)
			}
		}
	}
}

func (c *checker) arrowAhead(i int) bool {
	depth := 0
	for j := i; j < len(c.toks) && j < i+64; j++ {
		t := c.toks[j]
		if t.Kind != TokenPunct {
			continue
		}
		switch t.Text {
		case "(", "[", "{", "<":
			depth++
		case ")", "]", "}", ">":
			depth--
		case "=>":
			if depth == 0 {
				return true
			}
		case ";":
			return false
		}
	}
	return false
}

func (c *checker) checkParamList(start, end int) {
	for _, p := range splitTopLevel(c.toks[start:end], ",") {
		if len(p) == 0 {
			continue
		}
		rest := false
		if p[0].Text == "..." {
			rest = true
			p = p[1:]
			if len(p) == 0 {
				continue
			}
		}
		if p[0].Text == "{" || p[0].Text == "[" {
			c.checkBindingPattern(p)
			continue
		}
		if p[0].Kind != TokenIdent || p[0].Text == "this" {
			continue
		}
		k := 1
		if k < len(p) && p[k].Text == "?" {
			k++
		}
		if k < len(p) && (p[k].Text == ":" || p[k].Text == "=") {
			continue
		}
		if rest {
			c.report(p[0], codeImplicitAnyRest, "Rest parameter '%s' implicitly has an 'any[]' type.", p[0].Text)
		} else {
			c.report(p[0], codeImplicitAnyParam, "Parameter '%s' implicitly has an 'any' type.", p[0].Text)
		}
	}
}

// checkBindingPattern reports unannotated, undefaulted bindings in a
// destructured parameter such as `{ name, age }`.
func (c *checker) checkBindingPattern(p []Token) {
	depth := 0
	closeAt := -1
	for i, t := range p {
		if t.Kind != TokenPunct {
			continue
		}
		switch t.Text {
		case "{", "[":
			depth++
		case "}", "]":
			depth--
			if depth == 0 && closeAt < 0 {
				closeAt = i
			}
		}
	}
	if closeAt < 0 || closeAt+1 < len(p) {
		// annotated (`{..}: Props`) or defaulted (`{..} = {}`)
		return
	}
	depth = 0
	for i := 0; i < closeAt; i++ {
		t := p[i]
		if t.Kind == TokenPunct {
			switch t.Text {
			case "{", "[":
				depth++
			case "}", "]":
				depth--
			}
			continue
		}
		if depth != 1 || t.Kind != TokenIdent {
			continue
		}
		if i > 0 && p[i-1].Text == ":" {
			if i+1 < len(p) && (p[i+1].Text == "," || p[i+1].Text == "}") {
				c.report(t, codeImplicitAnyBinding, "Binding element '%s' implicitly has an 'any' type.", t.Text)
			}
			continue
		}
		if i+1 < len(p) && (p[i+1].Text == "," || p[i+1].Text == "}" || p[i+1].Text == "]") {
			c.report(t, codeImplicitAnyBinding, "Binding element '%s' implicitly has an 'any' type.", t.Text)
		}
	}
}

type frame struct {
	function bool
	ret      *tsType
}

// checkReturns checks literal return values against a declared return type.
func (c *checker) checkReturns() {
	frames := map[int]frame{}
	for i := 0; i < len(c.toks); i++ {
		if c.is(i, "=>") && c.is(i+1, "{") {
			frames[i+1] = frame{function: true}
			continue
		}
		if !c.is(i, ")") {
			continue
		}
		open := c.openFor(i)
		if open < 0 {
			continue
		}
		isFunction := false
		if prev, ok := c.tok(open - 1); ok && prev.Kind == TokenIdent && !controlKeywords[prev.Text] {
			isFunction = true
		}
		if c.is(open-1, "function") || (c.is(open-2, "function")) {
			isFunction = true
		}
		if !isFunction {
			continue
		}
		switch {
		case c.is(i+1, "{"):
			frames[i+1] = frame{function: true}
		case c.is(i+1, ":") && !c.is(i+2, "{"):
			end := i + 2
			for end < len(c.toks) && !c.is(end, "{") && !c.is(end, ";") && !c.is(end, "=>") {
				end++
			}
			if c.is(end, "{") {
				ret := c.parseType(c.toks[i+2 : end])
				if !ret.known() {
					ret = nil
				}
				frames[end] = frame{function: true, ret: ret}
			}
		}
	}

	var stack []frame
	for i := 0; i < len(c.toks); i++ {
		switch {
		case c.is(i, "{"):
			stack = append(stack, frames[i])
		case c.is(i, "}"):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case c.is(i, "return"):
			var fn *frame
			for k := len(stack) - 1; k >= 0; k-- {
				if stack[k].function {
					fn = &stack[k]
					break
				}
			}
			if fn == nil || fn.ret == nil {
				continue
			}
			if next, ok := c.tok(i + 1); !ok || next.NewlineBefore || c.is(i+1, ";") || c.is(i+1, "}") {
				continue
			}
			v, next, ok := c.parseValue(i + 1)
			if !ok || !c.terminates(next) {
				continue
			}
			c.checkAssign(v.tok, v, fn.ret)
		}
	}
}

// openFor finds the '(' matching the ')' at i.
func (c *checker) openFor(i int) int {
	depth := 0
	for j := i; j >= 0; j-- {
		if c.toks[j].Kind != TokenPunct {
			continue
		}
		switch c.toks[j].Text {
		case ")":
			depth++
		case "(":
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}
