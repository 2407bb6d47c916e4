package runner

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user. It
// allows switching between text (CLI/TUI) and NDJSON (structured)
// modes.
type IOHandler interface {
	// Output presents emitted events to the user.
	Output(ctx context.Context, events []domain.Event) error

	// Input reads the next inbound event. io.EOF ends the run loop
	// cleanly.
	Input(ctx context.Context) (domain.Event, error)

	// SystemOutput presents a meta-message to the user, distinct from
	// flow content.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms bot text before it is written, e.g. for
// markdown or ANSI styling. A render error falls back to the raw text.
type ContentRenderer func(string) (string, error)
