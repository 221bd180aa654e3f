package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkenfold/pegc/pkg/lexer"
	"github.com/arkenfold/pegc/pkg/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	l := lexer.New(src)
	var toks []token.Token
	for {
		tok, err := l.Next()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == token.END {
			return toks
		}
	}
}

func TestLexerBasicDefinition(t *testing.T) {
	toks := scanAll(t, `Rule1 <- 'tx'`)
	require.Len(t, toks, 4)
	assert.Equal(t, token.IDENT, toks[0].Kind)
	assert.Equal(t, "Rule1", toks[0].Payload)
	assert.Equal(t, token.ARROW, toks[1].Kind)
	assert.Equal(t, token.LITERAL, toks[2].Kind)
	assert.Equal(t, "tx", toks[2].Payload)
	assert.Equal(t, token.END, toks[3].Kind)
}

func TestLexerClassAndPredicateAndStar(t *testing.T) {
	toks := scanAll(t, `Value <- (![,\n] .)*`)
	kinds := make([]token.Kind, 0, len(toks))
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	assert.Equal(t, []token.Kind{
		token.IDENT, token.ARROW, token.OPEN, token.NOT, token.CLASS,
		token.DOT, token.CLOSE, token.STAR, token.END,
	}, kinds)
	assert.Equal(t, `,\n`, toks[4].Payload)
}

func TestLexerCommentsAndWhitespaceAreSkipped(t *testing.T) {
	toks := scanAll(t, "# a comment\nR1 <- 'a' # trailing\n")
	require.Len(t, toks, 4)
	assert.Equal(t, "R1", toks[0].Payload)
}

func TestLexerMissingArrowDash(t *testing.T) {
	l := lexer.New("R1 <")
	_, err := l.Next() // IDENT
	require.NoError(t, err)
	_, err = l.Next() // '<' alone
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dash")
}

func TestLexerUnexpectedChar(t *testing.T) {
	l := lexer.New("@")
	_, err := l.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unexpected char")
}

func TestLexerHexEscape(t *testing.T) {
	toks := scanAll(t, `R <- '\x41\x42'`)
	require.GreaterOrEqual(t, len(toks), 3)
	assert.Equal(t, "AB", toks[2].Payload)
}

func TestLexerCaptureOperators(t *testing.T) {
	toks := scanAll(t, `R <- %{ %Foo }`)
	kinds := make([]token.Kind, 0, len(toks))
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	assert.Equal(t, []token.Kind{
		token.IDENT, token.ARROW, token.OPCB, token.OPCAP, token.IDENT, token.CLCB, token.END,
	}, kinds)
}

func TestLexerEndIsStableAfterExhaustion(t *testing.T) {
	l := lexer.New("")
	tok1, err := l.Next()
	require.NoError(t, err)
	tok2, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, token.END, tok1.Kind)
	assert.Equal(t, token.END, tok2.Kind)
}

func TestParseClassBodyRangesAndSingletons(t *testing.T) {
	entries, err := lexer.ParseClassBody("0-9a-fZ")
	require.NoError(t, err)
	require.Equal(t, []lexer.ClassEntry{
		{Lo: '0', Hi: '9'},
		{Lo: 'a', Hi: 'f'},
		{Lo: 'Z', Hi: 'Z'},
	}, entries)
}

func TestParseClassBodyEmpty(t *testing.T) {
	entries, err := lexer.ParseClassBody("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPeekDoesNotConsume(t *testing.T) {
	l := lexer.New("Foo <- 'x'")
	peeked, err := l.Peek()
	require.NoError(t, err)
	assert.Equal(t, token.IDENT, peeked.Kind)

	next, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, peeked, next)
}
