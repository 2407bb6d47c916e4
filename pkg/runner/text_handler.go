package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

// DefaultUtteranceEvent is the event type a TextHandler emits for each
// input line.
const DefaultUtteranceEvent = "UtteranceUserActionFinished"

// spokenActions are the action names whose start a TextHandler prints
// as bot speech.
var spokenActions = map[string]bool{
	"UtteranceBot": true,
	"Speak":        true,
}

// TextHandler implements the standard line-based terminal interface.
// Each input line becomes an utterance event; bot utterance actions
// are printed, everything else is shown as a bracketed action line.
type TextHandler struct {
	Reader *bufio.Reader
	Writer io.Writer

	// Prompt is written before each read. Empty means no prompt.
	Prompt string

	// EventType overrides the event emitted per input line.
	EventType string

	// Renderer styles bot text before writing, if set.
	Renderer ContentRenderer
}

// NewTextHandler creates a handler for terminal IO. Nil reader or
// writer fall back to stdin and stdout.
func NewTextHandler(r io.Reader, w io.Writer) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &TextHandler{
		Reader:    bufio.NewReader(r),
		Writer:    w,
		Prompt:    "> ",
		EventType: DefaultUtteranceEvent,
	}
}

func (h *TextHandler) Output(_ context.Context, events []domain.Event) error {
	for _, ev := range events {
		name, ok := domain.ActionNameFromStart(ev.Type)
		if !ok {
			continue
		}
		if spokenActions[name] {
			text, _ := ev.StringArg("text")
			if h.Renderer != nil {
				if rendered, err := h.Renderer(text); err == nil {
					text = rendered
				}
			}
			fmt.Fprintln(h.Writer, strings.TrimSpace(text))
			continue
		}
		fmt.Fprintf(h.Writer, "[%s] %v\n", name, ev.Arguments)
	}
	return nil
}

func (h *TextHandler) Input(_ context.Context) (domain.Event, error) {
	var text string
	for text == "" {
		if h.Prompt != "" {
			fmt.Fprint(h.Writer, h.Prompt)
		}
		line, err := h.Reader.ReadString('\n')
		if err != nil && (line == "" || err != io.EOF) {
			return domain.Event{}, err
		}
		text, err = SanitizeInput(strings.TrimSpace(line))
		if err != nil {
			return domain.Event{}, err
		}
		if text == "exit" || text == "quit" {
			return domain.Event{}, io.EOF
		}
	}
	return domain.Event{
		Type: h.eventType(),
		Arguments: map[string]any{
			"final_transcript": text,
			"status":           domain.ActionStatusSuccess,
		},
	}, nil
}

func (h *TextHandler) SystemOutput(_ context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "-- %s\n", msg)
	return err
}

func (h *TextHandler) eventType() string {
	if h.EventType != "" {
		return h.EventType
	}
	return DefaultUtteranceEvent
}
