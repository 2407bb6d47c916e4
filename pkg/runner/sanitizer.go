package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// DefaultMaxInputSize caps a single input line at 4KB.
	DefaultMaxInputSize = 4096
	// EnvMaxInputSize overrides the cap.
	EnvMaxInputSize = "WEFT_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput cleans user input by enforcing the size limit,
// validating UTF-8 and stripping control characters. Oversized input
// is rejected rather than truncated so the session state stays
// deterministic.
func SanitizeInput(input string) (string, error) {
	limit := maxInputSize()
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// strings.Map returns the input unchanged, without a copy, when
	// nothing is dropped.
	return strings.Map(dropUnsafe, input), nil
}

// dropUnsafe removes control characters except newline, tab and
// carriage return. This keeps ANSI sequences out of logs and
// transcripts.
func dropUnsafe(r rune) rune {
	if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
		return -1
	}
	return r
}

func maxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
