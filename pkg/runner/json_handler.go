package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/weft/pkg/domain"
)

// JSONHandler implements the IOHandler interface over NDJSON: one
// domain.Event per line in both directions. It is meant for host
// processes driving the engine over a pipe.
type JSONHandler struct {
	enc *json.Encoder
	dec *json.Decoder
}

// NewJSONHandler creates a handler for NDJSON IO. Nil reader or writer
// fall back to stdin and stdout.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		enc: json.NewEncoder(w),
		dec: json.NewDecoder(r),
	}
}

func (h *JSONHandler) Output(_ context.Context, events []domain.Event) error {
	for _, ev := range events {
		if err := h.enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

func (h *JSONHandler) Input(_ context.Context) (domain.Event, error) {
	var ev domain.Event
	if err := h.dec.Decode(&ev); err != nil {
		if err == io.EOF {
			return domain.Event{}, io.EOF
		}
		return domain.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return domain.Event{}, fmt.Errorf("inbound event without type")
	}
	return ev, nil
}

// SystemOutput emits meta-messages as SystemMessage events so the
// stream stays parseable.
func (h *JSONHandler) SystemOutput(_ context.Context, msg string) error {
	return h.enc.Encode(domain.Event{
		Type:      "SystemMessage",
		Arguments: map[string]any{"message": msg},
	})
}
