// Package ast defines the Abstract Syntax Tree node types produced by
// the grammar parser (spec.md §3).
//
// The node set is closed: Node is a sum type over a fixed list of
// variants, and every consumer (the direct matcher, the capture analyzer,
// the bytecode compiler) dispatches on the concrete type with a type
// switch. Adding a node means updating every switch — deliberate, so the
// compiler catches an unhandled variant instead of silently no-opping.
package ast

// Node is the interface implemented by every AST node variant.
type Node interface {
	node()
}

// ClassEntry is one element of a Class node's ordered entry list: either
// a singleton character (Lo == Hi) or an inclusive [Lo, Hi] range.
type ClassEntry struct {
	Lo, Hi rune
}

// Dot matches any single code point.
type Dot struct {
	Capture bool
}

func (*Dot) node() {}

// Literal is a single-quoted character sequence, matched atomically.
type Literal struct {
	Value string

	// Capture marks whether this terminal must emit capture output; set
	// by the capture analyzer (C5), consulted by the compiler (C6).
	Capture bool
}

func (*Literal) node() {}

// String is a double-quoted atom literal: distinct from Literal, matched
// against list-structured input elements rather than the character
// stream (spec.md §4.8).
type String struct {
	Value string
}

func (*String) node() {}

// Class is an ordered, left-to-right character class. Order is
// significant: the first matching entry wins.
type Class struct {
	Entries []ClassEntry
	Capture bool
}

func (*Class) node() {}

// Identifier references a Definition by name.
type Identifier struct {
	Name string
}

func (*Identifier) node() {}

// And is the non-consuming positive predicate &x.
type And struct {
	Child Node
}

func (*And) node() {}

// Not is the non-consuming negative predicate !x.
type Not struct {
	Child Node
}

func (*Not) node() {}

// Question is the optional suffix x?.
type Question struct {
	Child Node
}

func (*Question) node() {}

// Star is the greedy zero-or-more suffix x*.
type Star struct {
	Child Node
}

func (*Star) node() {}

// Plus is the greedy one-or-more suffix x+.
type Plus struct {
	Child Node
}

func (*Plus) node() {}

// Sequence is an ordered list of prefixes evaluated left to right; an
// empty Sequence is legal and always succeeds without consuming input.
type Sequence struct {
	Children []Node
}

func (*Sequence) node() {}

// Expression is ordered choice among alternatives. A single-alternative
// Expression is semantically equivalent to its one child for matching
// purposes (spec.md §3's collapse invariant). The parser always
// constructs the wrapper, even around a single alternative; the
// compiler emits no choice scaffolding for that case, and the capture
// analyzer walks an Expression's alternatives like any other children.
type Expression struct {
	Alternatives []Node
}

func (*Expression) node() {}

// Definition binds Name to Expr within a Grammar.
type Definition struct {
	Name string
	Expr Node
}

func (*Definition) node() {}

// Grammar is the root node: an ordered list of definitions. Lookup by
// name scans that list; duplicate
// names are legal and the later Definition silently overrides the
// earlier one (spec.md §3, confirmed by original_source/peg.py's
// `definitions.update`).
type Grammar struct {
	Definitions []*Definition

	// Overridden lists definition names that appeared more than once, in
	// the order the override happened, purely for non-fatal diagnostics
	// (SPEC_FULL.md's supplemental feature); it does not affect lookup.
	Overridden []string
}

func (*Grammar) node() {}

// Lookup returns the Expr bound to name, or nil if unbound. Later
// definitions with the same name take precedence.
func (g *Grammar) Lookup(name string) Node {
	// Definitions keeps every Definition, duplicates included, so a
	// linear scan from the end returns the last-wins binding without
	// maintaining a separate index on this read path.
	for i := len(g.Definitions) - 1; i >= 0; i-- {
		if g.Definitions[i].Name == name {
			return g.Definitions[i].Expr
		}
	}
	return nil
}

// NewGrammar builds a Grammar from a flat, possibly-duplicate-keyed list
// of definitions in source order, recording overridden names.
func NewGrammar(defs []*Definition) *Grammar {
	seen := make(map[string]bool, len(defs))
	g := &Grammar{Definitions: defs}
	for _, d := range defs {
		if seen[d.Name] {
			g.Overridden = append(g.Overridden, d.Name)
		}
		seen[d.Name] = true
	}
	return g
}

// CaptureBlock demarcates a span whose terminals should emit structured
// capture output: %{ ... }.
type CaptureBlock struct {
	Child Node
}

func (*CaptureBlock) node() {}

// CaptureNode captures a sub-rule invocation as a single unit: %Ident.
// Ident must always be an *Identifier; the compiler asserts this.
type CaptureNode struct {
	Ident *Identifier
}

func (*CaptureNode) node() {}

// Label desugars, at compile time, to an ordered choice between Child
// and a Throw of Name (spec.md §4.5).
type Label struct {
	Name  string
	Child Node
}

func (*Label) node() {}

// Throw raises a non-recoverable labeled failure by name.
type Throw struct {
	Name string
}

func (*Throw) node() {}

// List matches against list-structured (tree-of-atoms) input: OPEN,
// each child in order, CLOSE.
type List struct {
	Children []Node
}

func (*List) node() {}
