package report_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkenfold/pegc/pkg/parser"
	"github.com/arkenfold/pegc/pkg/report"
)

func TestFormatParseErrorIncludesLineAndPointer(t *testing.T) {
	src := "S <- 'a'\nR1 <- )"
	p, err := parser.New(src)
	require.NoError(t, err)

	_, parseErr := p.Parse()
	require.Error(t, parseErr)

	out := report.Format(parseErr, src)
	assert.Contains(t, out, "line 2:")
	assert.Contains(t, out, "R1 ")
	assert.Contains(t, out, "<----- HERE!!")
}

func TestFormatFallsBackToPlainErrorForUnrecognizedCause(t *testing.T) {
	err := assertPlainError{}
	out := report.Format(err, "irrelevant")
	assert.Equal(t, err.Error(), strings.TrimSpace(out))
}

type assertPlainError struct{}

func (assertPlainError) Error() string { return "some unrelated failure" }
