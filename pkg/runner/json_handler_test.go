package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runner"
)

func TestJSONHandler_InputDecodesEvents(t *testing.T) {
	in := `{"type":"UserSaid","arguments":{"text":"hi"}}
{"type":"Ping"}
`
	h := runner.NewJSONHandler(strings.NewReader(in), io.Discard)

	ev, err := h.Input(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UserSaid", ev.Type)
	assert.Equal(t, "hi", ev.Arguments["text"])

	ev, err = h.Input(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ping", ev.Type)

	_, err = h.Input(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONHandler_InputRejectsUntypedEvents(t *testing.T) {
	h := runner.NewJSONHandler(strings.NewReader(`{"arguments":{}}`+"\n"), io.Discard)
	_, err := h.Input(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without type")
}

func TestJSONHandler_OutputWritesOneEventPerLine(t *testing.T) {
	var out bytes.Buffer
	h := runner.NewJSONHandler(strings.NewReader(""), &out)

	err := h.Output(context.Background(), []domain.Event{
		{Type: domain.StartEventType("Speak"), Arguments: map[string]any{"text": "hi"}, CorrelationID: "action-1"},
		{Type: domain.EventFlowFinished},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var ev domain.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, domain.StartEventType("Speak"), ev.Type)
	assert.Equal(t, "action-1", ev.CorrelationID)
}

func TestJSONHandler_SystemOutputStaysParseable(t *testing.T) {
	var out bytes.Buffer
	h := runner.NewJSONHandler(strings.NewReader(""), &out)
	require.NoError(t, h.SystemOutput(context.Background(), "rejected: too large"))

	var ev domain.Event
	require.NoError(t, json.Unmarshal(out.Bytes(), &ev))
	assert.Equal(t, "SystemMessage", ev.Type)
	assert.Equal(t, "rejected: too large", ev.Arguments["message"])
}
