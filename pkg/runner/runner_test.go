package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	weft "github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/runner"
)

const chatFlows = `
flows:
  - id: welcome
    activated: true
    steps:
      - deactivate: welcome
      - send:
          action: UtteranceBot
          arguments:
            text: "'hello'"
  - id: echo
    activated: true
    steps:
      - match:
          type: UtteranceUserActionFinished
          save_to: utt
      - send:
          action: UtteranceBot
          arguments:
            text: "'you said ' + utt.final_transcript"
`

// completeUtterances finishes every bot utterance synchronously, the
// way a real TTS adapter would after speaking.
var completeUtterances = ports.ActionHandlerFunc(func(_ context.Context, ev domain.Event) (*domain.Event, error) {
	if _, isStop := domain.ActionNameFromStop(ev.Type); isStop {
		return nil, nil
	}
	return &domain.Event{
		Type:          domain.FinishedEventType("UtteranceBot"),
		CorrelationID: ev.CorrelationID,
		Arguments:     map[string]any{"status": domain.ActionStatusSuccess},
	}, nil
})

func chatEngine(t *testing.T, opts ...weft.Option) *weft.Engine {
	t.Helper()
	loader := memory.NewLoader()
	loader.Add("flows.yaml", []byte(chatFlows))
	opts = append([]weft.Option{
		weft.WithLoader(loader),
		weft.WithActionHandler("UtteranceBot", completeUtterances),
	}, opts...)
	engine, err := weft.New("", opts...)
	require.NoError(t, err)
	return engine
}

func TestRunner_TextConversation(t *testing.T) {
	engine := chatEngine(t)

	var out bytes.Buffer
	handler := runner.NewTextHandler(strings.NewReader("hi\nexit\n"), &out)
	handler.Prompt = ""

	r := runner.New(engine, runner.WithIOHandler(handler))
	require.NoError(t, r.Run(context.Background()))

	assert.Contains(t, out.String(), "hello\n")
	assert.Contains(t, out.String(), "you said hi\n")
}

func TestRunner_JSONConversation(t *testing.T) {
	engine := chatEngine(t)

	in := `{"type":"UtteranceUserActionFinished","arguments":{"final_transcript":"ping"}}` + "\n"
	var out bytes.Buffer
	r := runner.New(engine,
		runner.WithIOHandler(runner.NewJSONHandler(strings.NewReader(in), &out)),
	)
	require.NoError(t, r.Run(context.Background()))

	var texts []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var ev domain.Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		if ev.Type == domain.StartEventType("UtteranceBot") {
			texts = append(texts, ev.Arguments["text"].(string))
		}
	}
	assert.Equal(t, []string{"hello", "you said ping"}, texts)
}

func TestRunner_InterceptorDropsEvents(t *testing.T) {
	engine := chatEngine(t)

	dropped := 0
	interceptor := runner.ChainInterceptors(
		runner.AllowTypesInterceptor("UtteranceUserActionFinished"),
		func(_ context.Context, ev domain.Event) (domain.Event, bool, error) {
			return ev, true, nil
		},
	)
	counting := func(ctx context.Context, ev domain.Event) (domain.Event, bool, error) {
		next, ok, err := interceptor(ctx, ev)
		if !ok && err == nil {
			dropped++
		}
		return next, ok, err
	}

	in := `{"type":"StopFlow","arguments":{"flow_id":"echo"}}` + "\n" +
		`{"type":"UtteranceUserActionFinished","arguments":{"final_transcript":"hi"}}` + "\n"
	var out bytes.Buffer
	r := runner.New(engine,
		runner.WithIOHandler(runner.NewJSONHandler(strings.NewReader(in), &out)),
		runner.WithInterceptor(counting),
	)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, dropped)
	assert.Contains(t, out.String(), "you said hi")
}

func TestRunner_RejectedEventReportsAndContinues(t *testing.T) {
	engine := chatEngine(t)

	in := `{"type":"UtteranceUserActionFinished","arguments":{"final_transcript":"bad�text"}}` + "\n" +
		`{"type":"UtteranceUserActionFinished","arguments":{"final_transcript":"ok"}}` + "\n"
	var out bytes.Buffer
	r := runner.New(engine,
		runner.WithIOHandler(runner.NewJSONHandler(strings.NewReader(in), &out)),
		runner.WithInterceptor(func(_ context.Context, ev domain.Event) (domain.Event, bool, error) {
			text, _ := ev.StringArg("final_transcript")
			if strings.ContainsRune(text, '�') {
				return ev, false, assert.AnError
			}
			return ev, true, nil
		}),
	)
	require.NoError(t, r.Run(context.Background()))

	assert.Contains(t, out.String(), "SystemMessage")
	assert.Contains(t, out.String(), "you said ok")
}

func TestRunner_SavesAndResumes(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	engine := chatEngine(t, weft.WithStore(store))
	var out bytes.Buffer
	r := runner.New(engine,
		runner.WithSessionID("user-1"),
		runner.WithIOHandler(runner.NewJSONHandler(strings.NewReader(
			`{"type":"UtteranceUserActionFinished","arguments":{"final_transcript":"remember me"}}`+"\n"), &out)),
	)
	require.NoError(t, r.Run(ctx))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, ids)

	// A resumed run does not replay the welcome flow.
	engine2 := chatEngine(t, weft.WithStore(store))
	var out2 bytes.Buffer
	r2 := runner.New(engine2,
		runner.WithSessionID("user-1"),
		runner.WithResume(),
		runner.WithIOHandler(runner.NewJSONHandler(strings.NewReader(
			`{"type":"UtteranceUserActionFinished","arguments":{"final_transcript":"again"}}`+"\n"), &out2)),
	)
	require.NoError(t, r2.Run(ctx))

	assert.NotContains(t, out2.String(), `"hello"`)
	assert.Contains(t, out2.String(), "you said again")
}

func TestRunner_ResumeFallsBackToFreshSession(t *testing.T) {
	engine := chatEngine(t, weft.WithStore(memory.New()))
	var out bytes.Buffer
	r := runner.New(engine,
		runner.WithSessionID("nobody"),
		runner.WithResume(),
		runner.WithIOHandler(runner.NewJSONHandler(strings.NewReader(""), &out)),
	)
	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "hello")
}
