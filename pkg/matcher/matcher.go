// Package matcher is the reference AST-walking interpreter for PEGs
// (spec.md §4.3). It is the ground truth the bytecode compiler/VM pair
// is checked against (Testable Property 1).
package matcher

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/arkenfold/pegc/pkg/ast"
)

// UnboundError reports a reference to a Definition name the grammar does
// not define. It is fatal to the current match, unlike ordinary PEG
// failure, which simply backtracks.
type UnboundError struct {
	Name string
}

func (e *UnboundError) Error() string {
	return fmt.Sprintf("unbound identifier %q", e.Name)
}

// state carries the grammar and input shared across one Match call; pos
// is the single mutable cursor threaded through every sub-routine.
type state struct {
	grammar *ast.Grammar
	input   []rune
	pos     int
}

// Match evaluates startRule against input and returns whether it
// matched and, if so, the resulting structured value (spec.md §4.3's
// return shape: a rune for Dot and Class, the literal's string for a
// Literal, nil for predicates, or a nested []any for composites).
//
// Match returns a non-nil error only for a fatal condition (an unbound
// identifier); ordinary PEG failure is reported via the bool return,
// never as an error.
func Match(grammar *ast.Grammar, startRule string, input string) (matched bool, value any, err error) {
	body := grammar.Lookup(startRule)
	if body == nil {
		return false, nil, errors.WithStack(&UnboundError{Name: startRule})
	}
	st := &state{grammar: grammar, input: []rune(input)}
	ok, v, err := st.eval(body)
	if err != nil {
		return false, nil, err
	}
	return ok, v, nil
}

func (s *state) eval(n ast.Node) (bool, any, error) {
	switch x := n.(type) {
	case *ast.Dot:
		return s.evalDot()
	case *ast.Literal:
		return s.evalLiteral(x)
	case *ast.String:
		// List-structured atom matching has no flat-character
		// equivalent in the direct matcher; spec.md §4.8 scopes atom
		// matching to the VM's OPEN/CLOSE/ATOM triad. Against plain
		// character input an atom never matches.
		return false, nil, nil
	case *ast.Class:
		return s.evalClass(x)
	case *ast.Identifier:
		return s.evalIdentifier(x)
	case *ast.And:
		return s.evalAnd(x)
	case *ast.Not:
		return s.evalNot(x)
	case *ast.Question:
		return s.evalQuestion(x)
	case *ast.Star:
		return s.evalStar(x)
	case *ast.Plus:
		return s.evalPlus(x)
	case *ast.Sequence:
		return s.evalSequence(x)
	case *ast.Expression:
		return s.evalExpression(x)
	case *ast.CaptureBlock:
		return s.eval(x.Child)
	case *ast.CaptureNode:
		return s.eval(x.Ident)
	case *ast.Label:
		// Label desugars to Expression([Child, Throw(Name)]); in the
		// direct matcher (which has no labeled-failure channel of its
		// own) a Throw always fails ordinarily, so Label behaves like
		// Child alone with backtracking — labeled, non-recoverable
		// failure is a VM-only concept (spec.md §4.6/§7).
		return s.eval(x.Child)
	case *ast.Throw:
		return false, nil, nil
	case *ast.List:
		return s.evalList(x)
	default:
		return false, nil, errors.Errorf("matcher: unknown AST node %T", n)
	}
}

func (s *state) evalDot() (bool, any, error) {
	if s.pos >= len(s.input) {
		return false, nil, nil
	}
	c := s.input[s.pos]
	s.pos++
	return true, c, nil
}

// evalLiteral matches the whole literal atomically: either every
// character matches from the cursor, or none of the cursor advances.
// spec.md §9's open question flags the historical per-character partial
// advance as a bug; this always does the atomic match+restore.
func (s *state) evalLiteral(lit *ast.Literal) (bool, any, error) {
	start := s.pos
	runes := []rune(lit.Value)
	if s.pos+len(runes) > len(s.input) {
		s.pos = start
		return false, nil, nil
	}
	for i, want := range runes {
		if s.input[s.pos+i] != want {
			s.pos = start
			return false, nil, nil
		}
	}
	s.pos += len(runes)
	return true, lit.Value, nil
}

func (s *state) evalClass(cls *ast.Class) (bool, any, error) {
	if s.pos >= len(s.input) {
		return false, nil, nil
	}
	c := s.input[s.pos]
	for _, e := range cls.Entries {
		if c >= e.Lo && c <= e.Hi {
			s.pos++
			return true, c, nil
		}
	}
	return false, nil, nil
}

func (s *state) evalIdentifier(id *ast.Identifier) (bool, any, error) {
	body := s.grammar.Lookup(id.Name)
	if body == nil {
		return false, nil, errors.WithStack(&UnboundError{Name: id.Name})
	}
	return s.eval(body)
}

func (s *state) evalAnd(n *ast.And) (bool, any, error) {
	start := s.pos
	ok, _, err := s.eval(n.Child)
	s.pos = start
	if err != nil {
		return false, nil, err
	}
	return ok, nil, nil
}

func (s *state) evalNot(n *ast.Not) (bool, any, error) {
	start := s.pos
	ok, _, err := s.eval(n.Child)
	s.pos = start
	if err != nil {
		return false, nil, err
	}
	return !ok, nil, nil
}

func (s *state) evalQuestion(n *ast.Question) (bool, any, error) {
	start := s.pos
	ok, v, err := s.eval(n.Child)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		s.pos = start
		return true, nil, nil
	}
	return true, v, nil
}

func (s *state) evalStar(n *ast.Star) (bool, any, error) {
	var out []any
	for {
		start := s.pos
		ok, v, err := s.eval(n.Child)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			s.pos = start
			break
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return true, out, nil
}

func (s *state) evalPlus(n *ast.Plus) (bool, any, error) {
	ok, first, err := s.eval(n.Child)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}
	_, rest, err := s.evalStar(&ast.Star{Child: n.Child})
	if err != nil {
		return false, nil, err
	}
	out := []any{}
	if first != nil {
		out = append(out, first)
	}
	out = append(out, rest.([]any)...)
	return true, out, nil
}

func (s *state) evalSequence(n *ast.Sequence) (bool, any, error) {
	start := s.pos
	var out []any
	for _, child := range n.Children {
		ok, v, err := s.eval(child)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			s.pos = start
			return false, nil, nil
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return true, out, nil
}

func (s *state) evalExpression(n *ast.Expression) (bool, any, error) {
	start := s.pos
	for _, alt := range n.Alternatives {
		ok, v, err := s.eval(alt)
		if err != nil {
			return false, nil, err
		}
		if ok {
			return true, v, nil
		}
		s.pos = start
	}
	return false, nil, nil
}

func (s *state) evalList(n *ast.List) (bool, any, error) {
	// The direct matcher operates over a flat rune sequence; list-
	// structured input is a VM-only extension (spec.md §4.8). A List
	// node against flat input always fails without consuming.
	_ = n
	return false, nil, nil
}
