// Package vm implements the reference execution engine for the
// bytecode instruction set fixed by spec.md §4.6.
//
// Execution Model:
//
// The VM is a single loop over three stacks:
//
//  1. Choice stack: backtrack frames pushed by CHOICE, popped on
//     ordinary failure (FAIL, or falling off the end of a CHAR/ANY/
//     SPAN/class match) and discarded on COMMIT.
//  2. Call stack: return addresses pushed by CALL, popped by RETURN.
//  3. Capture stack: open CAP_OPEN frames, closed by CAP_CLOSE into a
//     tree of *Capture values mirroring the direct matcher's nested
//     result shape (spec.md Testable Property 1: VM and matcher agree
//     modulo representation — this package uses its own Capture tree
//     rather than the matcher's []any, since the property only
//     requires equivalence, not identical Go types).
//
// There is no list stack: OPEN/CLOSE/ATOM over list-structured input
// (spec.md §4.8) are rejected with an error by the flat-character Run
// entry point below, which is the only mode this VM implements.
//
// THROW raises a LabeledFailure that unwinds past every choice frame:
// ordinary backtracking never catches it, matching spec.md §7's
// `LabeledFail` taxonomy entry.
package vm

import (
	"github.com/pkg/errors"

	"github.com/arkenfold/pegc/pkg/bytecode"
	"github.com/arkenfold/pegc/pkg/logging"
)

// Capture is one closed CAP_OPEN/CAP_CLOSE span. Terminal captures
// (from a CaptureBlock's literal terminals) carry Text; node captures
// (from a CaptureNode or the program's own start-rule wrap) carry
// Children, the captures that closed while this one was still open.
type Capture struct {
	Terminal bool
	Sid      int
	Name     string // resolved from the program's string table; "" if Terminal with no name
	Text     string
	Children []*Capture
}

// Result is the outcome of a single Run.
type Result struct {
	Matched  bool
	Pos      int // final cursor position, in runes, on success
	Captures []*Capture
}

type backFrame struct {
	ip, pos, capTop, retTop int
}

type capBuilder struct {
	terminal bool
	sid      int
	buf      []rune
	children []*Capture
}

// Run executes prog against input (flat character mode), starting at
// instruction 0 as the program's own prologue dictates (spec.md
// §4.5's fixed `CALL +2; JUMP +N; …; HALT` layout).
func Run(prog *bytecode.Program, input string, log logging.Logger) (*Result, error) {
	return RunWithDebugger(prog, input, log, nil)
}

// RunWithDebugger is Run with an optional Debugger attached: each
// executed instruction is reported to it via Trace before dispatch,
// so breakpoints and step mode observe the full sequence.
func RunWithDebugger(prog *bytecode.Program, input string, log logging.Logger, dbg *Debugger) (*Result, error) {
	code := make([]bytecode.Instruction, len(prog.Code))
	for i, word := range prog.Code {
		code[i] = bytecode.DecodeInstruction(word)
	}

	m := &machine{
		code:    code,
		strings: prog.Strings,
		rules:   prog.Rules,
		input:   []rune(input),
		log:     log,
		dbg:     dbg,
	}
	return m.run()
}

type machine struct {
	code    []bytecode.Instruction
	strings []string
	rules   []bytecode.RuleRange
	input   []rune
	log     logging.Logger
	dbg     *Debugger

	ip, pos  int
	lastChar rune

	choices []backFrame
	calls   []int
	caps    []*capBuilder
	roots   []*Capture
}

// LabeledFailure is a non-recoverable THROW that unwound to the top of
// the match (spec.md §7's LabeledFail).
type LabeledFailure struct {
	Label string
}

func (e *LabeledFailure) Error() string {
	return "labeled failure: " + e.Label
}

func (m *machine) run() (*Result, error) {
	for {
		if m.ip < 0 {
			return nil, errors.Errorf("vm: instruction pointer %d out of range (%d instructions)", m.ip, len(m.code))
		}
		// Running off the end of the code array is the program's own
		// implicit HALT: for a grammar without capture operators the
		// prologue's JUMP targets one past the final HALT instruction
		// (compiler.go's assemblePrologue), so a successful top-level
		// match lands ip here rather than on the HALT opcode itself.
		// With captures, the JUMP lands on CAP_CLOSE and HALT runs.
		if m.ip >= len(m.code) {
			return &Result{Matched: true, Pos: m.pos, Captures: m.roots}, nil
		}
		in := m.code[m.ip]

		if m.log != nil {
			m.log.Debugf("ip=%d pos=%d %s", m.ip, m.pos, in.Op)
		}
		if m.dbg != nil {
			m.dbg.Trace(m.ip, m.pos, in)
		}

		switch in.Op {
		case bytecode.HALT, bytecode.END:
			return &Result{Matched: true, Pos: m.pos, Captures: m.roots}, nil

		case bytecode.CHAR:
			if m.pos < len(m.input) && m.input[m.pos] == rune(in.A) {
				m.lastChar = m.input[m.pos]
				m.pos++
				m.ip++
				continue
			}
			if done, res, err := m.fail(); done {
				return res, err
			}
			continue

		case bytecode.ANY:
			if m.pos < len(m.input) {
				m.lastChar = m.input[m.pos]
				m.pos++
				m.ip++
				continue
			}
			if done, res, err := m.fail(); done {
				return res, err
			}
			continue

		case bytecode.SPAN:
			if m.pos < len(m.input) && m.input[m.pos] >= rune(in.A) && m.input[m.pos] <= rune(in.B) {
				m.lastChar = m.input[m.pos]
				m.pos++
				m.ip++
				continue
			}
			if done, res, err := m.fail(); done {
				return res, err
			}
			continue

		case bytecode.CHOICE:
			m.choices = append(m.choices, backFrame{
				ip: m.ip + int(in.A), pos: m.pos,
				capTop: len(m.caps), retTop: len(m.calls),
			})
			m.ip++

		case bytecode.COMMIT:
			if len(m.choices) == 0 {
				return nil, errors.New("vm: COMMIT with empty choice stack")
			}
			m.choices = m.choices[:len(m.choices)-1]
			m.ip += int(in.A)

		case bytecode.FAIL:
			if done, res, err := m.fail(); done {
				return res, err
			}

		case bytecode.FAIL_TWICE:
			if len(m.choices) > 0 {
				m.choices = m.choices[:len(m.choices)-1]
			}
			if done, res, err := m.fail(); done {
				return res, err
			}

		case bytecode.PARTIAL_COMMIT:
			if len(m.choices) == 0 {
				return nil, errors.New("vm: PARTIAL_COMMIT with empty choice stack")
			}
			m.choices[len(m.choices)-1].pos = m.pos
			m.ip += int(in.A)

		case bytecode.BACK_COMMIT:
			if len(m.choices) == 0 {
				return nil, errors.New("vm: BACK_COMMIT with empty choice stack")
			}
			top := m.choices[len(m.choices)-1]
			m.choices = m.choices[:len(m.choices)-1]
			m.pos = top.pos
			m.ip += int(in.A)

		case bytecode.TEST_CHAR:
			if m.pos < len(m.input) && m.input[m.pos] == rune(in.A) {
				m.lastChar = m.input[m.pos]
				m.pos++
				m.ip++
			} else {
				m.ip += int(in.B)
			}

		case bytecode.TEST_ANY:
			if m.pos+int(in.A) <= len(m.input) {
				m.ip++
			} else {
				m.ip += int(in.B)
			}

		case bytecode.JUMP:
			m.ip += int(in.A)

		case bytecode.CALL:
			m.calls = append(m.calls, m.ip+1)
			m.ip += int(in.A)

		case bytecode.RETURN:
			if len(m.calls) == 0 {
				return nil, errors.New("vm: RETURN with empty call stack")
			}
			m.ip = m.calls[len(m.calls)-1]
			m.calls = m.calls[:len(m.calls)-1]

		case bytecode.THROW:
			label := m.sid(int(in.A) - 2)
			trace := make([]Frame, len(m.calls))
			for i, retIP := range m.calls {
				trace[i] = Frame{Rule: m.ruleAt(retIP), IP: retIP}
			}
			return nil, &MatchError{Label: label, Pos: m.pos, Trace: trace}

		case bytecode.CAP_OPEN:
			m.caps = append(m.caps, &capBuilder{terminal: in.A == 1, sid: int(in.B)})
			m.ip++

		case bytecode.CAP_CLOSE:
			m.closeCapture()
			m.ip++

		case bytecode.CAPCHAR:
			if len(m.caps) > 0 {
				top := m.caps[len(m.caps)-1]
				top.buf = append(top.buf, m.lastChar)
			}
			m.ip++

		case bytecode.ATOM, bytecode.OPEN, bytecode.CLOSE:
			return nil, errors.Errorf("vm: %s requires list-structured input, unsupported by the flat-character Run entry point", in.Op)

		case bytecode.SET:
			return nil, errors.New("vm: SET is reserved and not emitted by this toolchain's compiler")

		default:
			return nil, errors.Errorf("vm: unknown opcode %s", in.Op)
		}
	}
}

// fail pops the innermost choice frame and resumes there, discarding
// any capture/call state opened since it was pushed. With an empty
// choice stack the match fails overall. The first return value
// reports whether run() should return immediately.
func (m *machine) fail() (bool, *Result, error) {
	if len(m.choices) == 0 {
		return true, &Result{Matched: false, Pos: m.pos}, nil
	}
	top := m.choices[len(m.choices)-1]
	m.choices = m.choices[:len(m.choices)-1]
	m.ip = top.ip
	m.pos = top.pos
	if top.capTop < len(m.caps) {
		m.caps = m.caps[:top.capTop]
	}
	if top.retTop < len(m.calls) {
		m.calls = m.calls[:top.retTop]
	}
	return false, nil, nil
}

func (m *machine) closeCapture() {
	if len(m.caps) == 0 {
		return
	}
	b := m.caps[len(m.caps)-1]
	m.caps = m.caps[:len(m.caps)-1]

	cap := &Capture{Terminal: b.terminal, Sid: b.sid, Name: m.sid(b.sid), Children: b.children}
	if b.terminal {
		cap.Text = string(b.buf)
		cap.Children = nil
		cap.Name = ""
	}

	if len(m.caps) > 0 {
		parent := m.caps[len(m.caps)-1]
		parent.children = append(parent.children, cap)
		return
	}
	m.roots = append(m.roots, cap)
}

// ruleAt resolves a return address to the rule whose body contains it,
// via the compiler's Program.Rules table (sorted by Start ascending):
// the containing rule is the last entry starting at or before ip.
// Rules is a compile-time-only aid (never populated for a Program
// round-tripped through bytecode.Decode), so this still falls back to
// "" when no table is available or ip precedes every rule.
func (m *machine) ruleAt(ip int) string {
	name := ""
	for _, r := range m.rules {
		if r.Start > ip {
			break
		}
		name = r.Name
	}
	return name
}

func (m *machine) sid(idx int) string {
	if idx < 0 || idx >= len(m.strings) {
		return ""
	}
	return m.strings[idx]
}
