// Package parser implements a recursive-descent parser over the PEG
// grammar dialect (spec.md §4.2), turning a lexer.Lexer's token stream
// into a *ast.Grammar.
//
// The parser keeps exactly one token of ordinary lookahead (cur) plus,
// for a single decision, one lexical lookahead: peekt speculatively
// lexes the token that would follow cur without consuming it, and is
// used exclusively to tell an identifier *use* (IDENT not followed by
// ARROW) apart from the IDENT that starts the next Definition.
//
// Grammar recognized:
//
//	Grammar    <- Definition+ END
//	Definition <- IDENT ARROW Expression
//	Expression <- Sequence (PRIORITY Sequence)*
//	Sequence   <- Prefix*
//	Prefix     <- (AND | NOT)? Labeled
//	Labeled    <- Suffix (LABEL IDENT)?
//	Suffix     <- Primary (QUESTION | STAR | PLUS)?
//	Primary    <- OPCAP IDENT
//	            | IDENT !ARROW
//	            | LITERAL | STRING | CLASS | DOT
//	            | OPEN Expression CLOSE
//	            | OPCB  Expression CLCB
//	            | OPLS  Expression* CLCB
package parser

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/arkenfold/pegc/pkg/ast"
	"github.com/arkenfold/pegc/pkg/lexer"
	"github.com/arkenfold/pegc/pkg/token"
)

// Error is a fatal ParseExpected error: a token mismatch at a given
// source position.
type Error struct {
	Expected string
	Found    token.Kind
	Pos      token.Position
}

func (e *Error) Error() string {
	return fmt.Sprintf("Expected %s but found %s (line %d)", e.Expected, e.Found, e.Pos.Line)
}

// Parser parses a single PEG grammar source string.
type Parser struct {
	lex *lexer.Lexer
	cur token.Token
}

// New creates a Parser over src and primes it with the first token.
// A lex error while priming the first token is returned by New itself.
func New(src string) (*Parser, error) {
	p := &Parser{lex: lexer.New(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return errors.Wrap(err, "lexing grammar source")
	}
	p.cur = tok
	return nil
}

// peekt speculatively lexes the token following cur, without consuming
// it. Used only to resolve the IDENT !ARROW ambiguity in parsePrimary.
func (p *Parser) peekt() (token.Token, error) {
	tok, err := p.lex.Peek()
	if err != nil {
		return token.Token{}, errors.Wrap(err, "lexing lookahead")
	}
	return tok, nil
}

func (p *Parser) expect(kind token.Kind, expected string) (token.Token, error) {
	if p.cur.Kind != kind {
		return token.Token{}, &Error{Expected: expected, Found: p.cur.Kind, Pos: p.cur.Pos}
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

// Parse parses the full grammar: one or more Definitions, then END.
func (p *Parser) Parse() (*ast.Grammar, error) {
	var defs []*ast.Definition
	for p.cur.Kind != token.END {
		def, err := p.parseDefinition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, &Error{Expected: "IDENT", Found: token.END, Pos: p.cur.Pos}
	}
	return ast.NewGrammar(defs), nil
}

func (p *Parser) parseDefinition() (*ast.Definition, error) {
	name, err := p.expect(token.IDENT, "IDENT")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.ARROW, "ARROW"); err != nil {
		return nil, errors.Wrapf(err, "parsing definition %q", name.Payload)
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.Definition{Name: name.Payload, Expr: expr}, nil
}

// parseExpression parses ordered choice. A single alternative is still
// wrapped in *ast.Expression (spec.md §4.2's note): downstream passes
// special-case len(Alternatives) == 1 rather than relying on the parser
// to omit the wrapper.
func (p *Parser) parseExpression() (ast.Node, error) {
	first, err := p.parseSequence()
	if err != nil {
		return nil, err
	}
	alts := []ast.Node{first}
	for p.cur.Kind == token.PRIORITY {
		if err := p.advance(); err != nil {
			return nil, err
		}
		seq, err := p.parseSequence()
		if err != nil {
			return nil, err
		}
		alts = append(alts, seq)
	}
	return &ast.Expression{Alternatives: alts}, nil
}

// parseSequence parses zero or more Prefixes. An empty Sequence (no
// Prefix matched at all) is legal.
func (p *Parser) parseSequence() (ast.Node, error) {
	var children []ast.Node
	for {
		child, ok, err := p.tryParsePrefix()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		children = append(children, child)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &ast.Sequence{Children: children}, nil
}

// tryParsePrefix parses (AND | NOT)? Labeled. ok is false when no
// Primary could be parsed at the current position (end of Sequence).
func (p *Parser) tryParsePrefix() (ast.Node, bool, error) {
	var wrap func(ast.Node) ast.Node
	switch p.cur.Kind {
	case token.AND:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		wrap = func(n ast.Node) ast.Node { return &ast.And{Child: n} }
	case token.NOT:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		wrap = func(n ast.Node) ast.Node { return &ast.Not{Child: n} }
	}

	labeled, ok, err := p.tryParseLabeled()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if wrap != nil {
			return nil, false, &Error{Expected: "primary expression after '&'/'!'", Found: p.cur.Kind, Pos: p.cur.Pos}
		}
		return nil, false, nil
	}
	if wrap != nil {
		labeled = wrap(labeled)
	}
	return labeled, true, nil
}

// tryParseLabeled parses Suffix (LABEL IDENT)?.
func (p *Parser) tryParseLabeled() (ast.Node, bool, error) {
	suffix, ok, err := p.tryParseSuffix()
	if err != nil || !ok {
		return nil, ok, err
	}
	if p.cur.Kind == token.LABEL {
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		name, err := p.expect(token.IDENT, "IDENT")
		if err != nil {
			return nil, false, err
		}
		return &ast.Label{Name: name.Payload, Child: suffix}, true, nil
	}
	return suffix, true, nil
}

// tryParseSuffix parses Primary (QUESTION | STAR | PLUS)?.
func (p *Parser) tryParseSuffix() (ast.Node, bool, error) {
	primary, ok, err := p.tryParsePrimary()
	if err != nil || !ok {
		return nil, ok, err
	}
	switch p.cur.Kind {
	case token.QUESTION:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		return &ast.Question{Child: primary}, true, nil
	case token.STAR:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		return &ast.Star{Child: primary}, true, nil
	case token.PLUS:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		return &ast.Plus{Child: primary}, true, nil
	}
	return primary, true, nil
}

func (p *Parser) tryParsePrimary() (ast.Node, bool, error) {
	switch p.cur.Kind {
	case token.OPCAP:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		name, err := p.expect(token.IDENT, "IDENT")
		if err != nil {
			return nil, false, err
		}
		return &ast.CaptureNode{Ident: &ast.Identifier{Name: name.Payload}}, true, nil

	case token.IDENT:
		peek, err := p.peekt()
		if err != nil {
			return nil, false, err
		}
		if peek.Kind == token.ARROW {
			// This IDENT starts the next Definition, not a reference.
			return nil, false, nil
		}
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		return &ast.Identifier{Name: tok.Payload}, true, nil

	case token.LITERAL:
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		return &ast.Literal{Value: tok.Payload}, true, nil

	case token.STRING:
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		return &ast.String{Value: tok.Payload}, true, nil

	case token.CLASS:
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		entries, err := lexer.ParseClassBody(tok.Payload)
		if err != nil {
			return nil, false, errors.Wrap(err, "parsing character class")
		}
		astEntries := make([]ast.ClassEntry, len(entries))
		for i, e := range entries {
			astEntries[i] = ast.ClassEntry{Lo: e.Lo, Hi: e.Hi}
		}
		return &ast.Class{Entries: astEntries}, true, nil

	case token.DOT:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		return &ast.Dot{}, true, nil

	case token.OPEN:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, false, err
		}
		if _, err := p.expect(token.CLOSE, "CLOSE"); err != nil {
			return nil, false, err
		}
		return expr, true, nil

	case token.OPCB:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, false, err
		}
		if _, err := p.expect(token.CLCB, "CLCB"); err != nil {
			return nil, false, err
		}
		return &ast.CaptureBlock{Child: expr}, true, nil

	case token.OPLS:
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		var children []ast.Node
		for p.cur.Kind != token.CLCB {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, false, err
			}
			children = append(children, expr)
		}
		if _, err := p.expect(token.CLCB, "CLCB"); err != nil {
			return nil, false, err
		}
		return &ast.List{Children: children}, true, nil

	default:
		return nil, false, nil
	}
}
