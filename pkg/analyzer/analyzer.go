// Package analyzer implements the capture-marking static pass (spec.md
// §4.4) that runs over a grammar before bytecode compilation, so the
// compiler emits CAPCHAR only where a capture operator actually demands
// output.
package analyzer

import "github.com/arkenfold/pegc/pkg/ast"

// Mark walks grammar and sets Literal.Capture / Class.Capture on every
// terminal that must emit capture output, following spec.md §4.4's
// four-step algorithm:
//
//  1. Collect every CaptureBlock reachable outside Not.
//  2. Collect every Identifier reachable outside Not and outside any
//     CaptureBlock: the residual *skip* set, after step 3, names rules
//     used only in non-capturing contexts.
//  3. For each CaptureBlock, remove the identifiers it references (again
//     excluding Not) from skip.
//  4. For each CaptureBlock, mark its terminals (and recursively, the
//     terminals of any non-skip rule it reaches through an Identifier).
func Mark(grammar *ast.Grammar) {
	blocks := collectCaptureBlocks(grammar)
	if len(blocks) == 0 {
		return
	}

	skip := make(map[string]bool)
	for _, def := range grammar.Definitions {
		collectIdentifiers(def.Expr, false, skip)
	}
	for _, block := range blocks {
		referenced := make(map[string]bool)
		collectIdentifiers(block.Child, true, referenced)
		for name := range referenced {
			delete(skip, name)
		}
	}

	visited := make(map[string]bool)
	for _, block := range blocks {
		markTerminals(block.Child, grammar, skip, visited)
	}
}

// collectCaptureBlocks finds every *ast.CaptureBlock reachable from any
// definition, not descending into Not subtrees.
func collectCaptureBlocks(grammar *ast.Grammar) []*ast.CaptureBlock {
	var blocks []*ast.CaptureBlock
	seenDefs := make(map[string]bool)
	var walkDef func(name string)
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		switch x := n.(type) {
		case nil:
			return
		case *ast.Not:
			return // predicate subtrees never produce captures
		case *ast.And:
			walk(x.Child)
		case *ast.Question:
			walk(x.Child)
		case *ast.Star:
			walk(x.Child)
		case *ast.Plus:
			walk(x.Child)
		case *ast.Sequence:
			for _, c := range x.Children {
				walk(c)
			}
		case *ast.Expression:
			for _, c := range x.Alternatives {
				walk(c)
			}
		case *ast.CaptureBlock:
			blocks = append(blocks, x)
			walk(x.Child)
		case *ast.CaptureNode:
			// a capture-node's own Identifier does not, by itself,
			// introduce a CaptureBlock; its referenced rule is only
			// walked if reached some other way.
		case *ast.Label:
			walk(x.Child)
		case *ast.Identifier:
			walkDef(x.Name)
		}
	}
	walkDef = func(name string) {
		if seenDefs[name] {
			return
		}
		seenDefs[name] = true
		body := grammar.Lookup(name)
		walk(body)
	}
	for _, def := range grammar.Definitions {
		walk(def.Expr)
	}
	return blocks
}

// collectIdentifiers adds every Identifier name reachable from n into
// out, not descending into Not; if skipCaptureBlocks is true, it also
// does not descend into nested CaptureBlocks (used for step 3, where we
// want only the identifiers a *specific* CaptureBlock itself references).
func collectIdentifiers(n ast.Node, skipCaptureBlocks bool, out map[string]bool) {
	switch x := n.(type) {
	case nil:
		return
	case *ast.Not:
		return
	case *ast.And:
		collectIdentifiers(x.Child, skipCaptureBlocks, out)
	case *ast.Question:
		collectIdentifiers(x.Child, skipCaptureBlocks, out)
	case *ast.Star:
		collectIdentifiers(x.Child, skipCaptureBlocks, out)
	case *ast.Plus:
		collectIdentifiers(x.Child, skipCaptureBlocks, out)
	case *ast.Sequence:
		for _, c := range x.Children {
			collectIdentifiers(c, skipCaptureBlocks, out)
		}
	case *ast.Expression:
		for _, c := range x.Alternatives {
			collectIdentifiers(c, skipCaptureBlocks, out)
		}
	case *ast.CaptureBlock:
		if !skipCaptureBlocks {
			collectIdentifiers(x.Child, skipCaptureBlocks, out)
		}
	case *ast.CaptureNode:
		out[x.Ident.Name] = true
	case *ast.Label:
		collectIdentifiers(x.Child, skipCaptureBlocks, out)
	case *ast.Identifier:
		out[x.Name] = true
	}
}

// markTerminals marks every terminal reachable from n (outside Not) with
// Capture = true, and recursively follows Identifier references into
// rules not in skip, tracking visited names to avoid infinite recursion
// on recursive grammars.
func markTerminals(n ast.Node, grammar *ast.Grammar, skip map[string]bool, visited map[string]bool) {
	switch x := n.(type) {
	case nil:
		return
	case *ast.Not:
		return
	case *ast.Dot:
		x.Capture = true
	case *ast.Literal:
		x.Capture = true
	case *ast.Class:
		x.Capture = true
	case *ast.String:
		// atom literals are captured by identity (the atom itself),
		// never by character span; no flag to set.
	case *ast.And:
		markTerminals(x.Child, grammar, skip, visited)
	case *ast.Question:
		markTerminals(x.Child, grammar, skip, visited)
	case *ast.Star:
		markTerminals(x.Child, grammar, skip, visited)
	case *ast.Plus:
		markTerminals(x.Child, grammar, skip, visited)
	case *ast.Sequence:
		for _, c := range x.Children {
			markTerminals(c, grammar, skip, visited)
		}
	case *ast.Expression:
		for _, c := range x.Alternatives {
			markTerminals(c, grammar, skip, visited)
		}
	case *ast.CaptureBlock:
		markTerminals(x.Child, grammar, skip, visited)
	case *ast.CaptureNode:
		followIdentifier(x.Ident.Name, grammar, skip, visited)
	case *ast.Label:
		markTerminals(x.Child, grammar, skip, visited)
	case *ast.Identifier:
		followIdentifier(x.Name, grammar, skip, visited)
	}
}

func followIdentifier(name string, grammar *ast.Grammar, skip map[string]bool, visited map[string]bool) {
	if skip[name] || visited[name] {
		return
	}
	visited[name] = true
	markTerminals(grammar.Lookup(name), grammar, skip, visited)
}
