package runner_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft/pkg/runner"
)

func TestSanitizeInput_PassesCleanText(t *testing.T) {
	got, err := runner.SanitizeInput("hello, world")
	require.NoError(t, err)
	assert.Equal(t, "hello, world", got)
}

func TestSanitizeInput_StripsControlCharacters(t *testing.T) {
	got, err := runner.SanitizeInput("safe\x1b[31mred\x00\x07")
	require.NoError(t, err)
	assert.Equal(t, "safe[31mred", got)
}

func TestSanitizeInput_KeepsWhitespaceControls(t *testing.T) {
	got, err := runner.SanitizeInput("line1\nline2\tend\r")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\tend\r", got)
}

func TestSanitizeInput_RejectsOversizedInput(t *testing.T) {
	_, err := runner.SanitizeInput(strings.Repeat("a", runner.DefaultMaxInputSize+1))
	assert.ErrorIs(t, err, runner.ErrInputTooLarge)
}

func TestSanitizeInput_RejectsInvalidUTF8(t *testing.T) {
	_, err := runner.SanitizeInput("bad\xff\xfe")
	assert.ErrorIs(t, err, runner.ErrInvalidUTF8)
}

func TestSanitizeInput_SizeLimitOverride(t *testing.T) {
	t.Setenv(runner.EnvMaxInputSize, "8")
	_, err := runner.SanitizeInput("123456789")
	assert.ErrorIs(t, err, runner.ErrInputTooLarge)

	got, err := runner.SanitizeInput("12345678")
	require.NoError(t, err)
	assert.Equal(t, "12345678", got)
}
