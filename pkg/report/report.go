// Package report formats fatal lex/parse errors for a human reader,
// per spec.md §7's "user-visible reporting" contract: a message line,
// the line number, and the offending source line with the bad column
// pointed to by an ANSI-coded marker and a `<----- HERE!!` pointer.
//
// Grounded on the teacher's RuntimeError.Error() (errors.go), which
// builds a multi-line report with strings.Builder; reworked around a
// source-position pointer instead of a Smalltalk call-stack trace.
package report

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/arkenfold/pegc/pkg/lexer"
	"github.com/arkenfold/pegc/pkg/parser"
	"github.com/arkenfold/pegc/pkg/token"
)

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
	pointer   = "<----- HERE!!"
)

// Format renders err against src for display on stderr. It recognizes
// *lexer.Error and *parser.Error (peeling through errors.Cause for any
// wrapping layered on top by a caller) and falls back to err.Error()
// for anything else, since only those two carry a source position.
func Format(err error, src string) string {
	cause := errors.Cause(err)

	switch e := cause.(type) {
	case *lexer.Error:
		return format(e.Message, e.Pos, src)
	case *parser.Error:
		return format(fmt.Sprintf("expected %s but found %s", e.Expected, e.Found), e.Pos, src)
	default:
		return err.Error()
	}
}

func format(message string, pos token.Position, src string) string {
	line, col := lineAndColumn(src, pos.Offset)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", message)
	fmt.Fprintf(&b, "line %d:\n", pos.Line)
	fmt.Fprintf(&b, "    %s\n", line)
	fmt.Fprintf(&b, "    %s%s%s%s\n", strings.Repeat(" ", col), ansiRed, "^", ansiReset)
	fmt.Fprintf(&b, "    %s%s%s %s\n", strings.Repeat(" ", col), ansiRed, pointer, ansiReset)
	return b.String()
}

// lineAndColumn walks src to find the text of the line containing the
// byte offset, and the offset's 0-based column within that line.
func lineAndColumn(src string, offset int) (line string, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(src) {
		offset = len(src)
	}

	lineStart := strings.LastIndexByte(src[:offset], '\n') + 1
	lineEnd := strings.IndexByte(src[offset:], '\n')
	if lineEnd == -1 {
		lineEnd = len(src)
	} else {
		lineEnd += offset
	}

	return src[lineStart:lineEnd], offset - lineStart
}
