package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkenfold/pegc/pkg/matcher"
	"github.com/arkenfold/pegc/pkg/parser"
)

// TestArithmeticScenarioS1 matches spec.md §8 scenario S1.
func TestArithmeticScenarioS1(t *testing.T) {
	src := `
Add <- Mul '+' Add / Mul
Mul <- Pri '*' Mul / Pri
Pri <- '(' Add ')' / Num
Num <- [0-9]+
`
	p, err := parser.New(src)
	require.NoError(t, err)
	g, err := p.Parse()
	require.NoError(t, err)

	matched, value, err := matcher.Match(g, "Add", "12+34*56")
	require.NoError(t, err)
	require.True(t, matched)

	assert.Equal(t, []any{
		[]any{'1', '2'},
		"+",
		[]any{
			[]any{'3', '4'},
			"*",
			[]any{'5', '6'},
		},
	}, value)
}

// TestCSVScenarioS2 matches spec.md §8 scenario S2's shape: a list of
// rows, each a list of value-runs, each run a list of characters.
func TestCSVScenarioS2(t *testing.T) {
	src := `
File <- CSV*
CSV  <- Val (',' Val)* '\n'
Val  <- (![,\n] .)*
`
	p, err := parser.New(src)
	require.NoError(t, err)
	g, err := p.Parse()
	require.NoError(t, err)

	matched, value, err := matcher.Match(g, "File", "Name,Num,Lang\nLink,3,pt-br\n")
	require.NoError(t, err)
	require.True(t, matched)

	rows, ok := value.([]any)
	require.True(t, ok)
	require.Len(t, rows, 2, "two CSV rows")

	// Each row is a triple: the first Val, the repeated (',' Val) pairs,
	// and the '\n' terminator; field counts below are each field's
	// character count (Name, Num, Lang / Link, 3, pt-br).
	wantFieldCounts := [][]int{
		{4, 3, 4},
		{4, 1, 5},
	}
	for i, row := range rows {
		triple, ok := row.([]any)
		require.True(t, ok, "row %d", i)
		require.Len(t, triple, 3, "row %d: Val, (',' Val)*, '\\n'", i)

		firstVal, ok := triple[0].([]any)
		require.True(t, ok, "row %d first value", i)
		assert.Len(t, firstVal, wantFieldCounts[i][0], "row %d field 0 character count", i)

		pairs, ok := triple[1].([]any)
		require.True(t, ok, "row %d repeated (',' Val) pairs", i)
		require.Len(t, pairs, len(wantFieldCounts[i])-1, "row %d trailing field count", i)

		for j, pair := range pairs {
			pairSeq, ok := pair.([]any)
			require.True(t, ok, "row %d pair %d", i, j)
			require.Len(t, pairSeq, 2, "row %d pair %d: ',' and Val", i, j)
			assert.Equal(t, ",", pairSeq[0], "row %d pair %d separator", i, j)

			fieldVal, ok := pairSeq[1].([]any)
			require.True(t, ok, "row %d pair %d value", i, j)
			assert.Len(t, fieldVal, wantFieldCounts[i][j+1], "row %d field %d character count", i, j+1)
		}

		assert.Equal(t, "\n", triple[2], "row %d terminator", i)
	}
}

// TestPredicateNonConsumptionScenarioS3 matches spec.md §8 scenario S3.
func TestPredicateNonConsumptionScenarioS3(t *testing.T) {
	src := `
AtoC   <- [a-c]
NoAtoC <- !AtoC .
EOF    <- !.
`
	p, err := parser.New(src)
	require.NoError(t, err)
	g, err := p.Parse()
	require.NoError(t, err)

	input := "abcdef"

	// Hand-roll the cursor walk the scenario describes: AtoC three
	// times, then NoAtoC three times, then EOF, each call re-matching
	// from the position the previous one left off. Match() always
	// starts at position 0, so slice the remaining input each step.
	pos := 0
	for i := 0; i < 3; i++ {
		matched, _, err := matcher.Match(g, "AtoC", input[pos:])
		require.NoError(t, err)
		require.True(t, matched)
		pos++
	}

	matched, _, err := matcher.Match(g, "AtoC", input[pos:])
	require.NoError(t, err)
	assert.False(t, matched, "AtoC must fail without advancing once a-c are exhausted")

	for i := 0; i < 3; i++ {
		matched, _, err := matcher.Match(g, "NoAtoC", input[pos:])
		require.NoError(t, err)
		require.True(t, matched)
		pos++
	}
	assert.Equal(t, len(input), pos)

	matched, value, err := matcher.Match(g, "EOF", input[pos:])
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Nil(t, value)
}

func TestUnboundIdentifierIsFatal(t *testing.T) {
	p, err := parser.New(`S <- Missing`)
	require.NoError(t, err)
	g, err := p.Parse()
	require.NoError(t, err)

	_, _, err = matcher.Match(g, "S", "x")
	require.Error(t, err)
}

func TestOrderedChoiceTriesAtMostOncePerAlternative(t *testing.T) {
	p, err := parser.New(`S <- 'a' / 'ab'`)
	require.NoError(t, err)
	g, err := p.Parse()
	require.NoError(t, err)

	matched, value, err := matcher.Match(g, "S", "ab")
	require.NoError(t, err)
	require.True(t, matched)
	// 'a' wins; PEG ordered choice never retries 'ab' once 'a' succeeds,
	// even though the overall rule would also accept "ab" another way.
	assert.Equal(t, "a", value)
}

func TestQuestionAlwaysSucceeds(t *testing.T) {
	p, err := parser.New(`S <- 'a'? 'b'`)
	require.NoError(t, err)
	g, err := p.Parse()
	require.NoError(t, err)

	matched, _, err := matcher.Match(g, "S", "b")
	require.NoError(t, err)
	assert.True(t, matched)
}
