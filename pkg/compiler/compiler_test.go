package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkenfold/pegc/pkg/bytecode"
	"github.com/arkenfold/pegc/pkg/compiler"
	"github.com/arkenfold/pegc/pkg/parser"
)

func compile(t *testing.T, src, start string) *bytecode.Program {
	t.Helper()
	p, err := parser.New(src)
	require.NoError(t, err)
	g, err := p.Parse()
	require.NoError(t, err)
	prog, err := compiler.Compile(g, start, nil)
	require.NoError(t, err)
	return prog
}

func decodeAll(prog *bytecode.Program) []bytecode.Instruction {
	out := make([]bytecode.Instruction, len(prog.Code))
	for i, word := range prog.Code {
		out[i] = bytecode.DecodeInstruction(word)
	}
	return out
}

func ins(op bytecode.Opcode, a, b int32) bytecode.Instruction {
	return bytecode.Instruction{Op: op, A: a, B: b}
}

// TestCompileOrderedChoiceScenarioS4 matches spec.md §8 scenario S4.
func TestCompileOrderedChoiceScenarioS4(t *testing.T) {
	prog := compile(t, `S <- 'a' / 'b'`, "S")
	got := decodeAll(prog)

	want := []bytecode.Instruction{
		ins(bytecode.CALL, 2, 0),
		ins(bytecode.JUMP, 7, 0),
		ins(bytecode.CHOICE, 3, 0),
		ins(bytecode.CHAR, 'a', 0),
		ins(bytecode.COMMIT, 2, 0),
		ins(bytecode.CHAR, 'b', 0),
		ins(bytecode.RETURN, 0, 0),
		ins(bytecode.HALT, 0, 0),
	}
	assert.Equal(t, want, got)
}

// TestCompileNotScenarioS5 matches spec.md §8 scenario S5.
func TestCompileNotScenarioS5(t *testing.T) {
	prog := compile(t, `S <- !'a'`, "S")
	got := decodeAll(prog)

	want := []bytecode.Instruction{
		ins(bytecode.CALL, 2, 0),
		ins(bytecode.JUMP, 7, 0),
		ins(bytecode.CHOICE, 4, 0),
		ins(bytecode.CHAR, 'a', 0),
		ins(bytecode.COMMIT, 1, 0),
		ins(bytecode.FAIL, 0, 0),
		ins(bytecode.RETURN, 0, 0),
		ins(bytecode.HALT, 0, 0),
	}
	assert.Equal(t, want, got)
}

// TestCompileLabeledFailureScenarioS6 matches spec.md §8 scenario S6:
// sid(f) == 0, so the THROW operand is 0+2 == 2.
func TestCompileLabeledFailureScenarioS6(t *testing.T) {
	prog := compile(t, `S <- 'a'^f`, "S")
	got := decodeAll(prog)

	want := []bytecode.Instruction{
		ins(bytecode.CALL, 2, 0),
		ins(bytecode.JUMP, 7, 0),
		ins(bytecode.CHOICE, 3, 0),
		ins(bytecode.CHAR, 'a', 0),
		ins(bytecode.COMMIT, 2, 0),
		ins(bytecode.THROW, 2, 0),
		ins(bytecode.RETURN, 0, 0),
		ins(bytecode.HALT, 0, 0),
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"f"}, prog.Strings)
}

func TestCompileSingleAlternativeEmitsNoChoiceScaffolding(t *testing.T) {
	prog := compile(t, `S <- 'a'`, "S")
	got := decodeAll(prog)

	for _, in := range got {
		assert.NotEqual(t, bytecode.CHOICE, in.Op)
		assert.NotEqual(t, bytecode.COMMIT, in.Op)
	}
}

func TestCompileSingleClassEntryEmitsNoChoiceScaffolding(t *testing.T) {
	prog := compile(t, `S <- [a]`, "S")
	got := decodeAll(prog)

	for _, in := range got {
		assert.NotEqual(t, bytecode.CHOICE, in.Op)
	}
	assert.Contains(t, got, ins(bytecode.CHAR, 'a', 0))
}

func TestCompileMultiEntryClassIsOrderedChoice(t *testing.T) {
	prog := compile(t, `S <- [a-z0-9]`, "S")
	got := decodeAll(prog)

	var sawChoice bool
	for _, in := range got {
		if in.Op == bytecode.CHOICE {
			sawChoice = true
		}
	}
	assert.True(t, sawChoice)
}

func TestCompileUnboundRuleIsFatal(t *testing.T) {
	p, err := parser.New(`S <- Missing`)
	require.NoError(t, err)
	g, err := p.Parse()
	require.NoError(t, err)

	_, err = compiler.Compile(g, "S", nil)
	require.Error(t, err)
}

func TestCompileCaptureBlockWrapsProgramInCapOpenClose(t *testing.T) {
	prog := compile(t, `S <- %{ 'a' }`, "S")
	got := decodeAll(prog)

	require.NotEmpty(t, got)
	assert.Equal(t, bytecode.CAP_OPEN, got[0].Op)
	assert.Equal(t, bytecode.CAP_CLOSE, got[len(got)-2].Op)
	assert.Equal(t, bytecode.HALT, got[len(got)-1].Op)
}

func TestCompileCallResolvesToRuleStart(t *testing.T) {
	prog := compile(t, "S <- A\nA <- 'x'", "S")
	got := decodeAll(prog)

	// prologue CALL(0) jumps into S's body at index 2; S's own body is
	// a single Identifier(A), compiling to a CALL whose target must
	// land exactly on A's compiled body start.
	callIdx := -1
	for i, in := range got {
		if i > 1 && in.Op == bytecode.CALL {
			callIdx = i
			break
		}
	}
	require.NotEqual(t, -1, callIdx)
	target := callIdx + int(got[callIdx].A)
	assert.Equal(t, bytecode.CHAR, got[target].Op)
	assert.Equal(t, int32('x'), got[target].A)
}
