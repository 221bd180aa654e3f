package bytecode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arkenfold/pegc/pkg/bytecode"
)

func TestEncodeDecodeRoundTripSingleOperand(t *testing.T) {
	cases := []bytecode.Instruction{
		{Op: bytecode.CHAR, A: 'a'},
		{Op: bytecode.CHOICE, A: 5},
		{Op: bytecode.COMMIT, A: -3},
		{Op: bytecode.CALL, A: -120},
		{Op: bytecode.JUMP, A: 0},
		{Op: bytecode.THROW, A: 2},
	}
	for _, want := range cases {
		word := bytecode.EncodeInstruction(want)
		got := bytecode.DecodeInstruction(word)
		assert.Equal(t, want.Op, got.Op)
		assert.Equal(t, want.A, got.A, "opcode %s", want.Op)
	}
}

func TestEncodeDecodeRoundTripSplitOperand(t *testing.T) {
	cases := []bytecode.Instruction{
		{Op: bytecode.CAP_OPEN, A: 1, B: 0},
		{Op: bytecode.CAP_CLOSE, A: 0, B: 7},
		{Op: bytecode.SPAN, A: '0', B: '9'},
		{Op: bytecode.TEST_CHAR, A: 'x', B: 12},
		{Op: bytecode.TEST_ANY, A: 3, B: -9},
	}
	for _, want := range cases {
		word := bytecode.EncodeInstruction(want)
		got := bytecode.DecodeInstruction(word)
		assert.Equal(t, want.Op, got.Op)
		assert.Equal(t, want.A, got.A, "opcode %s operand A", want.Op)
		assert.Equal(t, want.B, got.B, "opcode %s operand B", want.Op)
	}
}

func TestEncodeDecodeNoOperand(t *testing.T) {
	for _, op := range []bytecode.Opcode{bytecode.HALT, bytecode.ANY, bytecode.FAIL, bytecode.RETURN, bytecode.OPEN, bytecode.CLOSE, bytecode.CAPCHAR} {
		word := bytecode.EncodeInstruction(bytecode.Instruction{Op: op})
		got := bytecode.DecodeInstruction(word)
		assert.Equal(t, op, got.Op)
		assert.Zero(t, got.A)
		assert.Zero(t, got.B)
	}
}

func TestOpcodeOrdinalsAreFixed(t *testing.T) {
	// Ordinals are part of the binary contract (spec.md §4.6); this
	// pins them so an accidental reorder of the const block is caught.
	assert.Equal(t, bytecode.Opcode(0), bytecode.HALT)
	assert.Equal(t, bytecode.Opcode(1), bytecode.CHAR)
	assert.Equal(t, bytecode.Opcode(2), bytecode.ANY)
	assert.Equal(t, bytecode.Opcode(3), bytecode.CHOICE)
	assert.Equal(t, bytecode.Opcode(4), bytecode.COMMIT)
	assert.Equal(t, bytecode.Opcode(5), bytecode.FAIL)
	assert.Equal(t, bytecode.Opcode(6), bytecode.FAIL_TWICE)
	assert.Equal(t, bytecode.Opcode(7), bytecode.PARTIAL_COMMIT)
	assert.Equal(t, bytecode.Opcode(8), bytecode.BACK_COMMIT)
	assert.Equal(t, bytecode.Opcode(9), bytecode.TEST_CHAR)
	assert.Equal(t, bytecode.Opcode(10), bytecode.TEST_ANY)
	assert.Equal(t, bytecode.Opcode(11), bytecode.JUMP)
	assert.Equal(t, bytecode.Opcode(12), bytecode.CALL)
	assert.Equal(t, bytecode.Opcode(13), bytecode.RETURN)
	assert.Equal(t, bytecode.Opcode(14), bytecode.SPAN)
	assert.Equal(t, bytecode.Opcode(15), bytecode.SET)
	assert.Equal(t, bytecode.Opcode(16), bytecode.THROW)
	assert.Equal(t, bytecode.Opcode(17), bytecode.CAP_OPEN)
	assert.Equal(t, bytecode.Opcode(18), bytecode.CAP_CLOSE)
	assert.Equal(t, bytecode.Opcode(19), bytecode.ATOM)
	assert.Equal(t, bytecode.Opcode(20), bytecode.OPEN)
	assert.Equal(t, bytecode.Opcode(21), bytecode.CLOSE)
	assert.Equal(t, bytecode.Opcode(22), bytecode.CAPCHAR)
	assert.Equal(t, bytecode.Opcode(23), bytecode.END)
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "CHOICE", bytecode.CHOICE.String())
	assert.Equal(t, "CAP_OPEN", bytecode.CAP_OPEN.String())
}
