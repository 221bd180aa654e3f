package vm

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/arkenfold/pegc/pkg/bytecode"
	"github.com/arkenfold/pegc/pkg/logging"
)

// Debugger wraps a decoded program with breakpoint tracking and a
// step trace, grounded on the teacher's Debugger (breakpoints keyed
// by instruction address, a step-mode flag, an enabled flag) but
// reworked around ip/pos instead of a Smalltalk call frame.
type Debugger struct {
	prog        *bytecode.Program
	breakpoints map[int]bool
	stepMode    bool
	enabled     bool
	log         logging.Logger
	sessionID   string
}

// NewDebugger creates a disabled Debugger for prog. Each session gets
// a correlation id so multiple concurrent traces (e.g. one per
// in-flight CLI invocation) can be told apart in shared log output.
func NewDebugger(prog *bytecode.Program, log logging.Logger) *Debugger {
	if log == nil {
		log = logging.NoOp()
	}
	return &Debugger{
		prog:        prog,
		breakpoints: make(map[int]bool),
		log:         log,
		sessionID:   uuid.NewString(),
	}
}

// Enable turns on step tracing; Disable turns it back off.
func (d *Debugger) Enable()  { d.enabled = true }
func (d *Debugger) Disable() { d.enabled = false }

// SetStepMode toggles whether Trace logs every instruction (true) or
// only instructions at a breakpoint address (false).
func (d *Debugger) SetStepMode(on bool) { d.stepMode = on }

// AddBreakpoint marks ip as a breakpoint address.
func (d *Debugger) AddBreakpoint(ip int) { d.breakpoints[ip] = true }

// RemoveBreakpoint clears a previously set breakpoint.
func (d *Debugger) RemoveBreakpoint(ip int) { delete(d.breakpoints, ip) }

// ClearBreakpoints removes every breakpoint.
func (d *Debugger) ClearBreakpoints() { d.breakpoints = make(map[int]bool) }

// Trace logs one executed instruction, if enabled and either in step
// mode or ip is a breakpoint.
func (d *Debugger) Trace(ip, pos int, in bytecode.Instruction) {
	if !d.enabled {
		return
	}
	if !d.stepMode && !d.breakpoints[ip] {
		return
	}
	d.log.WithFields(logging.Fields{
		"session": d.sessionID,
		"ip":      ip,
		"pos":     pos,
	}).Debugf("%s %d %d", in.Op, in.A, in.B)
}

// Disassemble renders prog as one instruction per line, in the
// `ip: OP a, b` form.
func Disassemble(w io.Writer, prog *bytecode.Program) error {
	for i, word := range prog.Code {
		in := bytecode.DecodeInstruction(word)
		if _, err := fmt.Fprintf(w, "%4d: %-14s %d, %d\n", i, in.Op, in.A, in.B); err != nil {
			return err
		}
	}
	return nil
}
