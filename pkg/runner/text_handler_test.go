package runner_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runner"
)

func TestTextHandler_InputProducesUtteranceEvents(t *testing.T) {
	var out bytes.Buffer
	h := runner.NewTextHandler(strings.NewReader("\nhello there\nexit\n"), &out)

	ev, err := h.Input(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runner.DefaultUtteranceEvent, ev.Type)
	assert.Equal(t, "hello there", ev.Arguments["final_transcript"])
	assert.Equal(t, domain.ActionStatusSuccess, ev.Arguments["status"])

	_, err = h.Input(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestTextHandler_EOFEndsInput(t *testing.T) {
	h := runner.NewTextHandler(strings.NewReader(""), io.Discard)
	_, err := h.Input(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestTextHandler_CustomEventType(t *testing.T) {
	h := runner.NewTextHandler(strings.NewReader("ping\n"), io.Discard)
	h.EventType = "UserSaid"

	ev, err := h.Input(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UserSaid", ev.Type)
}

func TestTextHandler_OutputPrintsBotSpeech(t *testing.T) {
	var out bytes.Buffer
	h := runner.NewTextHandler(strings.NewReader(""), &out)
	h.Prompt = ""

	err := h.Output(context.Background(), []domain.Event{
		{Type: domain.StartEventType("UtteranceBot"), Arguments: map[string]any{"text": "hello"}},
		{Type: domain.StartEventType("Timer"), Arguments: map[string]any{"duration": 5.0}},
		{Type: domain.FinishedEventType("Timer")},
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "hello\n")
	assert.Contains(t, out.String(), "[Timer]")
	assert.NotContains(t, out.String(), "Finished")
}

func TestTextHandler_RendererStylesBotText(t *testing.T) {
	var out bytes.Buffer
	h := runner.NewTextHandler(strings.NewReader(""), &out)
	h.Renderer = func(s string) (string, error) { return "** " + s + " **", nil }

	err := h.Output(context.Background(), []domain.Event{
		{Type: domain.StartEventType("Speak"), Arguments: map[string]any{"text": "hi"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "** hi **")
}
