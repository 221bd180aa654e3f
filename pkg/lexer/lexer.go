// Package lexer implements the lexical analyzer for the PEG grammar
// dialect described in spec.md §4.1.
//
// The lexer is a hand-written scanner over a byte cursor. It exposes a
// single "advance to next token" operation (Next); callers that need
// one-token-of-lexical-lookahead without consuming it use Peek, which
// saves and restores the cursor around a scan — the same technique the
// parser's peekt uses one level up, over tokens instead of bytes.
//
// Whitespace and "# ... \n" line comments are skipped before every token;
// they are insignificant everywhere except inside literals, strings and
// character classes, where the scanner switches to escape-aware byte
// consumption instead of the normal token dispatch.
package lexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arkenfold/pegc/pkg/token"
)

// Error is a fatal lexical error: an unrecognized byte, an unterminated
// literal/string/class, or a lone '<' not followed by '-'.
type Error struct {
	Message string
	Pos     token.Position
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (line %d)", e.Message, e.Pos.Line)
}

// Lexer scans PEG source into a flat token stream.
type Lexer struct {
	src  string
	pos  int // byte offset of the next unread byte
	line int
}

// New creates a Lexer over src.
func New(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

func (l *Lexer) cur() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) at(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) eof() bool { return l.pos >= len(l.src) }

func (l *Lexer) advance() {
	if l.pos < len(l.src) {
		if l.src[l.pos] == '\n' {
			l.line++
		}
		l.pos++
	}
}

func (l *Lexer) pposition() token.Position {
	return token.Position{Line: l.line, Offset: l.pos}
}

// skipSpace consumes a maximal run of whitespace and "#"-to-end-of-line
// comments, repeating until neither applies.
func (l *Lexer) skipSpace() {
	for {
		progressed := false
		for !l.eof() && isSpace(l.cur()) {
			l.advance()
			progressed = true
		}
		if !l.eof() && l.cur() == '#' {
			for !l.eof() && l.cur() != '\n' {
				l.advance()
			}
			if !l.eof() {
				l.advance() // consume the newline
			}
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isAlpha(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isAlnum(b byte) bool {
	return isAlpha(b) || (b >= '0' && b <= '9')
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// Peek returns the next token without consuming it, by scanning and then
// restoring the cursor. Used exclusively by the parser's peekt to decide
// whether an IDENT is followed by ARROW.
func (l *Lexer) Peek() (token.Token, error) {
	savedPos, savedLine := l.pos, l.line
	tok, err := l.Next()
	l.pos, l.line = savedPos, savedLine
	return tok, err
}

// Next scans and returns the next token, advancing the cursor past it.
// Once input is exhausted, Next keeps returning an END token.
func (l *Lexer) Next() (token.Token, error) {
	l.skipSpace()
	start := l.pposition()

	if l.eof() {
		return token.Token{Kind: token.END, Pos: start}, nil
	}

	c := l.cur()
	switch {
	case isAlpha(c):
		return l.lexIdent(start)
	case c == '\'':
		return l.lexQuoted(start, '\'', token.LITERAL)
	case c == '"':
		return l.lexQuoted(start, '"', token.STRING)
	case c == '[':
		return l.lexClass(start)
	case c == '<':
		if l.at(1) == '-' {
			l.advance()
			l.advance()
			return token.Token{Kind: token.ARROW, Pos: start}, nil
		}
		return token.Token{}, &Error{Message: "Missing the dash in the arrow", Pos: start}
	case c == '(':
		l.advance()
		return token.Token{Kind: token.OPEN, Pos: start}, nil
	case c == ')':
		l.advance()
		return token.Token{Kind: token.CLOSE, Pos: start}, nil
	case c == '/':
		l.advance()
		return token.Token{Kind: token.PRIORITY, Pos: start}, nil
	case c == '.':
		l.advance()
		return token.Token{Kind: token.DOT, Pos: start}, nil
	case c == '*':
		l.advance()
		return token.Token{Kind: token.STAR, Pos: start}, nil
	case c == '+':
		l.advance()
		return token.Token{Kind: token.PLUS, Pos: start}, nil
	case c == '?':
		l.advance()
		return token.Token{Kind: token.QUESTION, Pos: start}, nil
	case c == '&':
		l.advance()
		return token.Token{Kind: token.AND, Pos: start}, nil
	case c == '!':
		l.advance()
		return token.Token{Kind: token.NOT, Pos: start}, nil
	case c == '^':
		l.advance()
		return token.Token{Kind: token.LABEL, Pos: start}, nil
	case c == ';':
		l.advance()
		return token.Token{Kind: token.QUIET, Pos: start}, nil
	case c == '{':
		l.advance()
		return token.Token{Kind: token.OPLS, Pos: start}, nil
	case c == '}':
		l.advance()
		return token.Token{Kind: token.CLCB, Pos: start}, nil
	case c == '%':
		l.advance()
		if l.cur() == '{' {
			l.advance()
			return token.Token{Kind: token.OPCB, Pos: start}, nil
		}
		return token.Token{Kind: token.OPCAP, Pos: start}, nil
	default:
		return token.Token{}, &Error{Message: fmt.Sprintf("Unexpected char `%c`", c), Pos: start}
	}
}

func (l *Lexer) lexIdent(start token.Position) (token.Token, error) {
	d := l.pos
	for !l.eof() && isAlnum(l.cur()) {
		l.advance()
	}
	return token.Token{Kind: token.IDENT, Payload: l.src[d:l.pos], Pos: start}, nil
}

// lexQuoted scans a 'literal' or "string" body, applying escape rules,
// and returns it as kind (LITERAL or STRING).
func (l *Lexer) lexQuoted(start token.Position, quote byte, kind token.Kind) (token.Token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.eof() {
			return token.Token{}, &Error{Message: "Expected end of string", Pos: start}
		}
		if l.cur() == quote {
			l.advance()
			break
		}
		if l.cur() == '\\' {
			ch, err := l.lexEscape(start)
			if err != nil {
				return token.Token{}, err
			}
			b.WriteRune(ch)
			continue
		}
		b.WriteByte(l.cur())
		l.advance()
	}
	return token.Token{Kind: kind, Payload: b.String(), Pos: start}, nil
}

// lexClass scans a [...] character-class body into its raw source text;
// the parser re-interprets entries (singleton vs. range) and escapes.
func (l *Lexer) lexClass(start token.Position) (token.Token, error) {
	l.advance() // '['
	d := l.pos
	depth := 0
	for {
		if l.eof() {
			return token.Token{}, &Error{Message: "Expected end of class", Pos: start}
		}
		if l.cur() == '\\' {
			l.advance()
			if !l.eof() {
				l.advance()
			}
			continue
		}
		if l.cur() == ']' && depth == 0 {
			break
		}
		l.advance()
	}
	body := l.src[d:l.pos]
	l.advance() // ']'
	return token.Token{Kind: token.CLASS, Payload: body, Pos: start}, nil
}

// lexEscape decodes a single backslash escape starting at the current
// '\\' byte and returns the resulting code point, having consumed it.
func (l *Lexer) lexEscape(start token.Position) (rune, error) {
	l.advance() // '\\'
	if l.eof() {
		return 0, &Error{Message: "Expected end of string", Pos: start}
	}
	c := l.cur()
	switch c {
	case 'n':
		l.advance()
		return '\n', nil
	case 'r':
		l.advance()
		return '\r', nil
	case 't':
		l.advance()
		return '\t', nil
	case '\'':
		l.advance()
		return '\'', nil
	case '"':
		l.advance()
		return '"', nil
	case '[':
		l.advance()
		return '[', nil
	case ']':
		l.advance()
		return ']', nil
	case '-':
		l.advance()
		return '-', nil
	case '\\':
		l.advance()
		return '\\', nil
	case 'x':
		l.advance()
		d := l.pos
		for !l.eof() && isHex(l.cur()) {
			l.advance()
		}
		if l.pos == d {
			return 0, &Error{Message: "Expected hex digits after \\x", Pos: start}
		}
		v, err := strconv.ParseInt(l.src[d:l.pos], 16, 32)
		if err != nil {
			return 0, &Error{Message: "Invalid hex escape", Pos: start}
		}
		return rune(v), nil
	default:
		return 0, &Error{Message: fmt.Sprintf("Unknown escape `\\%c`", c), Pos: start}
	}
}

// ClassEntry re-scans a CLASS token's raw body into ordered entries,
// applying the same escape rules as literals. It is a parser-side helper
// (not part of the lexer's token stream) because the class body was
// captured verbatim by lexClass to keep the lexer itself free of the
// AST-shaped "entry" concept.
type ClassEntry struct {
	Lo, Hi rune // Lo == Hi for a singleton entry
}

// ParseClassBody decodes a CLASS token's raw payload into its ordered
// entries. An empty class ("[]") yields a nil, non-nil-error-free slice.
func ParseClassBody(body string) ([]ClassEntry, error) {
	l := &Lexer{src: body, line: 1}
	var entries []ClassEntry
	for !l.eof() {
		lo, err := l.classChar()
		if err != nil {
			return nil, err
		}
		if l.cur() == '-' && l.at(1) != 0 {
			l.advance()
			hi, err := l.classChar()
			if err != nil {
				return nil, err
			}
			entries = append(entries, ClassEntry{Lo: lo, Hi: hi})
			continue
		}
		entries = append(entries, ClassEntry{Lo: lo, Hi: lo})
	}
	return entries, nil
}

func (l *Lexer) classChar() (rune, error) {
	if l.cur() == '\\' {
		return l.lexEscape(l.pposition())
	}
	r := rune(l.cur())
	l.advance()
	return r, nil
}
