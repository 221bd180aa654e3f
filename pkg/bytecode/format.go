// Serialization of a compiled Program to and from the binary layout
// fixed by spec.md §3 / §4.7:
//
//	u16           string_table_count
//	  repeated:   u8 length, <length> bytes ASCII
//	u16           code_count_in_32bit_words
//	repeated:     u32 big-endian instruction
//
// Encode is deterministic: the same Program always serializes to the
// same bytes (spec.md Testable Property 3), since a Program's string
// table and code are themselves already fully ordered.
package bytecode

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Program is a compiled grammar: an ordered, de-duplicated string
// table plus a code section of raw (already-encoded) 32-bit words.
type Program struct {
	Strings []string
	Code    []uint32

	// Rules names the instruction range each compiled rule occupies,
	// ordered by Start ascending, for execution-time diagnostics (e.g.
	// vm.MatchError.Trace). It is a compiler-time debugging aid, not
	// part of the wire format: Encode never writes it and Decode never
	// reconstructs it, so a Program round-tripped through bytes carries
	// no rule table.
	Rules []RuleRange
}

// RuleRange is the half-open instruction range [Start, next Start)
// that a single compiled rule occupies in Program.Code.
type RuleRange struct {
	Name  string
	Start int
}

// Encode writes prog to w in the fixed binary layout.
func Encode(w io.Writer, prog *Program) error {
	if len(prog.Strings) > 0xFFFF {
		return errors.Errorf("bytecode: string table too large (%d entries)", len(prog.Strings))
	}
	if len(prog.Code) > 0xFFFF {
		return errors.Errorf("bytecode: code section too large (%d words)", len(prog.Code))
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(prog.Strings))); err != nil {
		return errors.Wrap(err, "writing string table count")
	}
	for _, s := range prog.Strings {
		if len(s) > 0xFF {
			return errors.Errorf("bytecode: string %q exceeds 255 bytes", s)
		}
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(prog.Code))); err != nil {
		return errors.Wrap(err, "writing code word count")
	}
	for _, word := range prog.Code {
		if err := binary.Write(&buf, binary.BigEndian, word); err != nil {
			return errors.Wrap(err, "writing code word")
		}
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "flushing bytecode program")
	}
	return nil
}

// Decode reads a Program back from r in the fixed binary layout.
func Decode(r io.Reader) (*Program, error) {
	var stringCount uint16
	if err := binary.Read(r, binary.BigEndian, &stringCount); err != nil {
		return nil, errors.Wrap(err, "reading string table count")
	}

	strs := make([]string, 0, stringCount)
	for i := 0; i < int(stringCount); i++ {
		var length uint8
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, errors.Wrapf(err, "reading string %d length", i)
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, errors.Wrapf(err, "reading string %d body", i)
		}
		strs = append(strs, string(raw))
	}

	var codeCount uint16
	if err := binary.Read(r, binary.BigEndian, &codeCount); err != nil {
		return nil, errors.Wrap(err, "reading code word count")
	}
	code := make([]uint32, codeCount)
	for i := range code {
		if err := binary.Read(r, binary.BigEndian, &code[i]); err != nil {
			return nil, errors.Wrapf(err, "reading code word %d", i)
		}
	}

	return &Program{Strings: strs, Code: code}, nil
}

// StringTable deduplicates strings by first-use insertion order
// (spec.md's `sid(s)`: "returns the index of s, appending to the
// table on first use").
type StringTable struct {
	strings []string
	index   map[string]int
}

// NewStringTable returns an empty string table.
func NewStringTable() *StringTable {
	return &StringTable{index: make(map[string]int)}
}

// Intern returns the stable index for s, appending it on first use.
func (t *StringTable) Intern(s string) int {
	if idx, ok := t.index[s]; ok {
		return idx
	}
	idx := len(t.strings)
	t.strings = append(t.strings, s)
	t.index[s] = idx
	return idx
}

// Strings returns the table contents in insertion order.
func (t *StringTable) Strings() []string {
	return t.strings
}
