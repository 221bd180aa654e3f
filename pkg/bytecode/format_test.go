package bytecode_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkenfold/pegc/pkg/bytecode"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	prog := &bytecode.Program{
		Strings: []string{"Add", "Mul", "f"},
		Code: []uint32{
			bytecode.EncodeInstruction(bytecode.Instruction{Op: bytecode.CALL, A: 2}),
			bytecode.EncodeInstruction(bytecode.Instruction{Op: bytecode.JUMP, A: 7}),
			bytecode.EncodeInstruction(bytecode.Instruction{Op: bytecode.CHAR, A: 'a'}),
			bytecode.EncodeInstruction(bytecode.Instruction{Op: bytecode.RETURN}),
			bytecode.EncodeInstruction(bytecode.Instruction{Op: bytecode.HALT}),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, bytecode.Encode(&buf, prog))

	got, err := bytecode.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, prog, got)
}

func TestEncodeIsDeterministic(t *testing.T) {
	prog := &bytecode.Program{
		Strings: []string{"a", "bb", "ccc"},
		Code:    []uint32{1, 2, 3},
	}

	var first, second bytes.Buffer
	require.NoError(t, bytecode.Encode(&first, prog))
	require.NoError(t, bytecode.Encode(&second, prog))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestStringTableDedupsByInsertionOrder(t *testing.T) {
	tbl := bytecode.NewStringTable()
	assert.Equal(t, 0, tbl.Intern("Add"))
	assert.Equal(t, 1, tbl.Intern("Mul"))
	assert.Equal(t, 0, tbl.Intern("Add"), "re-interning an existing string returns its original index")
	assert.Equal(t, 2, tbl.Intern("Pri"))
	assert.Equal(t, []string{"Add", "Mul", "Pri"}, tbl.Strings())
}

func TestDecodeEmptyProgram(t *testing.T) {
	prog := &bytecode.Program{}
	var buf bytes.Buffer
	require.NoError(t, bytecode.Encode(&buf, prog))

	got, err := bytecode.Decode(&buf)
	require.NoError(t, err)
	assert.Empty(t, got.Strings)
	assert.Empty(t, got.Code)
}
