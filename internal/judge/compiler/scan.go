package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a scanned token.
type TokenKind int

const (
	TokenIdent TokenKind = iota
	TokenNumber
	TokenString
	TokenTemplate
	TokenRegex
	TokenPunct
)

// Token is one lexical token of a submission. Comments and whitespace are dropped.
type Token struct {
	Kind TokenKind
	Text string
	// Value is the unquoted content of string tokens.
	Value string
	Line  int
	Col   int
	// NewlineBefore marks a line break between this token and the previous one.
	NewlineBefore bool
}

var puncts = []string{
	">>>=", "...", "===", "!==", "**=", "<<=", ">>=", ">>>", "&&=", "||=", "??=",
	"=>", "==", "!=", "<=", ">=", "&&", "||", "??", "?.", "++", "--", "+=", "-=", "*=", "/=", "%=",
	"&=", "|=", "^=", "<<", ">>", "**",
}

// regexAllowedAfter lists keywords after which a slash starts a regex literal.
var regexAllowedAfter = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true, "new": true,
	"delete": true, "void": true, "throw": true, "case": true, "do": true, "else": true, "yield": true, "await": true,
}

// Scan tokenizes JavaScript/TypeScript source. It never fails: malformed
// input produces best-effort tokens so callers can still inspect the rest.
func Scan(src string) []Token {
	s := &scanner{src: src, line: 1, col: 1}
	return s.run()
}

type scanner struct {
	src     string
	pos     int
	line    int
	col     int
	newline bool
	tokens  []Token
}

func (s *scanner) run() []Token {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\n':
			s.newline = true
			s.advance(1)
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			s.advance(1)
		case c == '/' && s.peek(1) == '/':
			s.skipLineComment()
		case c == '/' && s.peek(1) == '*':
			s.skipBlockComment()
		case c == '"' || c == '\'':
			s.scanString(c)
		case c == '`':
			s.scanTemplate()
		case isDigit(c) || (c == '.' && isDigit(s.peek(1))):
			s.scanNumber()
		case c == '/' && s.regexAllowed():
			s.scanRegex()
		case isIdentStart(c):
			s.scanIdent()
		case c >= utf8.RuneSelf:
			r, size := utf8.DecodeRuneInString(s.src[s.pos:])
			if unicode.IsLetter(r) {
				s.scanIdent()
			} else {
				s.advance(size)
			}
		default:
			s.scanPunct()
		}
	}
	return s.tokens
}

func (s *scanner) peek(n int) byte {
	if s.pos+n < len(s.src) {
		return s.src[s.pos+n]
	}
	return 0
}

func (s *scanner) advance(n int) {
	for i := 0; i < n && s.pos < len(s.src); i++ {
		if s.src[s.pos] == '\n' {
			s.line++
			s.col = 1
		} else {
			s.col++
		}
		s.pos++
	}
}

func (s *scanner) emit(kind TokenKind, start, line, col int, value string) {
	s.tokens = append(s.tokens, Token{
		Kind:          kind,
		Text:          s.src[start:s.pos],
		Value:         value,
		Line:          line,
		Col:           col,
		NewlineBefore: s.newline,
	})
	s.newline = false
}

func (s *scanner) skipLineComment() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.advance(1)
	}
}

func (s *scanner) skipBlockComment() {
	s.advance(2)
	for s.pos < len(s.src) {
		if s.src[s.pos] == '*' && s.peek(1) == '/' {
			s.advance(2)
			return
		}
		if s.src[s.pos] == '\n' {
			s.newline = true
		}
		s.advance(1)
	}
}

func (s *scanner) scanString(quote byte) {
	start, line, col := s.pos, s.line, s.col
	s.advance(1)
	var b strings.Builder
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == quote {
			s.advance(1)
			break
		}
		if c == '\n' {
			// unterminated; stop at end of line
			break
		}
		if c == '\\' && s.pos+1 < len(s.src) {
			b.WriteByte(unescape(s.src[s.pos+1]))
			s.advance(2)
			continue
		}
		b.WriteByte(c)
		s.advance(1)
	}
	s.emit(TokenString, start, line, col, b.String())
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

// scanTemplate consumes a template literal including nested ${...} parts.
// Value is set only for templates without substitutions.
func (s *scanner) scanTemplate() {
	start, line, col := s.pos, s.line, s.col
	s.advance(1)
	var b strings.Builder
	plain := true
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == '`' {
			s.advance(1)
			break
		}
		if c == '\\' && s.pos+1 < len(s.src) {
			b.WriteByte(unescape(s.src[s.pos+1]))
			s.advance(2)
			continue
		}
		if c == '$' && s.peek(1) == '{' {
			plain = false
			s.advance(2)
			s.skipBalanced()
			continue
		}
		b.WriteByte(c)
		s.advance(1)
	}
	value := ""
	if plain {
		value = b.String()
	}
	s.emit(TokenTemplate, start, line, col, value)
}

// skipBalanced skips to the brace closing a template substitution.
func (s *scanner) skipBalanced() {
	depth := 1
	for s.pos < len(s.src) && depth > 0 {
		switch c := s.src[s.pos]; c {
		case '{':
			depth++
		case '}':
			depth--
		case '"', '\'':
			saved := len(s.tokens)
			s.scanString(c)
			s.tokens = s.tokens[:saved]
			continue
		case '`':
			saved := len(s.tokens)
			s.scanTemplate()
			s.tokens = s.tokens[:saved]
			continue
		}
		s.advance(1)
	}
}

func (s *scanner) scanNumber() {
	start, line, col := s.pos, s.line, s.col
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if isDigit(c) || c == '.' || c == '_' || c == 'x' || c == 'X' || c == 'n' ||
			(c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			s.advance(1)
			continue
		}
		if (c == '+' || c == '-') && (s.src[s.pos-1] == 'e' || s.src[s.pos-1] == 'E') {
			s.advance(1)
			continue
		}
		break
	}
	s.emit(TokenNumber, start, line, col, "")
}

func (s *scanner) regexAllowed() bool {
	if len(s.tokens) == 0 {
		return true
	}
	prev := s.tokens[len(s.tokens)-1]
	switch prev.Kind {
	case TokenNumber, TokenString, TokenTemplate, TokenRegex:
		return false
	case TokenIdent:
		return regexAllowedAfter[prev.Text]
	}
	return prev.Text != ")" && prev.Text != "]" && prev.Text != "}"
}

func (s *scanner) scanRegex() {
	start, line, col := s.pos, s.line, s.col
	s.advance(1)
	inClass := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == '\n' {
			break
		}
		if c == '\\' {
			s.advance(2)
			continue
		}
		if c == '[' {
			inClass = true
		} else if c == ']' {
			inClass = false
		} else if c == '/' && !inClass {
			s.advance(1)
			break
		}
		s.advance(1)
	}
	for s.pos < len(s.src) && isIdentPart(s.src[s.pos]) {
		s.advance(1)
	}
	s.emit(TokenRegex, start, line, col, "")
}

func (s *scanner) scanIdent() {
	start, line, col := s.pos, s.line, s.col
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if isIdentPart(c) {
			s.advance(1)
			continue
		}
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s.src[s.pos:])
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				s.pos += size
				s.col++
				continue
			}
		}
		break
	}
	s.emit(TokenIdent, start, line, col, "")
}

func (s *scanner) scanPunct() {
	start, line, col := s.pos, s.line, s.col
	rest := s.src[s.pos:]
	for _, p := range puncts {
		if strings.HasPrefix(rest, p) {
			s.advance(len(p))
			s.emit(TokenPunct, start, line, col, "")
			return
		}
	}
	s.advance(1)
	s.emit(TokenPunct, start, line, col, "")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
