package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileFlows(t *testing.T, src string) *registry.Registry {
	t.Helper()
	defs, err := compiler.New().CompileFile("flows.yaml", []byte(src))
	require.NoError(t, err)
	reg := registry.New()
	require.NoError(t, reg.AddFlows(defs...))
	return reg
}

func newRuntime(t *testing.T, src string, opts runtime.Options) *runtime.Runtime {
	t.Helper()
	return runtime.New(compileFlows(t, src), opts)
}

func bootstrap(t *testing.T, rt *runtime.Runtime) []domain.Event {
	t.Helper()
	events, err := rt.Bootstrap(context.Background())
	require.NoError(t, err)
	return events
}

func feed(t *testing.T, rt *runtime.Runtime, ev domain.Event) []domain.Event {
	t.Helper()
	events, err := rt.ProcessEvent(context.Background(), ev)
	require.NoError(t, err)
	return events
}

func eventTypes(events []domain.Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func startFlow(id string) domain.Event {
	return domain.NewEvent(domain.EventStartFlow, map[string]any{domain.ArgFlowID: id})
}

// finished builds the completion event a host would send back for a
// started action.
func finished(action, correlationID string, args map[string]any) domain.Event {
	if args == nil {
		args = map[string]any{}
	}
	args["status"] = domain.ActionStatusSuccess
	return domain.Event{
		Type:          domain.FinishedEventType(action),
		Arguments:     args,
		CorrelationID: correlationID,
	}
}

const greeterFlow = `
flows:
  - id: greeter
    activated: true
    steps:
      - send:
          action: UtteranceBot
          arguments:
            text: "'welcome'"
      - match:
          type: UtteranceUserActionFinished
          save_to: utt
      - send:
          action: UtteranceBot
          arguments:
            text: "'you said ' + utt.final_transcript"
`

func TestBootstrap_ActivatedFlowSpeaksFirst(t *testing.T) {
	rt := newRuntime(t, greeterFlow, runtime.Options{})

	events := bootstrap(t, rt)
	require.Len(t, events, 1)
	assert.Equal(t, "StartUtteranceBotAction", events[0].Type)
	assert.Equal(t, "welcome", events[0].Arguments["text"])
	assert.NotEmpty(t, events[0].CorrelationID)

	require.Len(t, rt.Instances(), 1)
	assert.Equal(t, "greeter", rt.Instances()[0].Def.ID)
	assert.Equal(t, 1, rt.OutstandingActions())
}

func TestProcessEvent_MatchResumesWithSavedArguments(t *testing.T) {
	rt := newRuntime(t, greeterFlow, runtime.Options{})
	welcome := bootstrap(t, rt)
	require.Len(t, welcome, 1)

	// Completing the welcome utterance produces nothing; the flow just
	// advances to the user match.
	events := feed(t, rt, finished("UtteranceBot", welcome[0].CorrelationID, nil))
	assert.Empty(t, events)
	assert.Equal(t, 0, rt.OutstandingActions())

	events = feed(t, rt, domain.NewEvent("UtteranceUserActionFinished", map[string]any{
		"final_transcript": "hi there",
	}))
	require.Len(t, events, 1)
	assert.Equal(t, "StartUtteranceBotAction", events[0].Type)
	assert.Equal(t, "you said hi there", events[0].Arguments["text"])
}

func TestProcessEvent_StaleCompletionIgnored(t *testing.T) {
	rt := newRuntime(t, greeterFlow, runtime.Options{})
	welcome := bootstrap(t, rt)
	require.Len(t, welcome, 1)

	// Wrong correlation id: nobody resumes.
	events := feed(t, rt, finished("UtteranceBot", "action-999", nil))
	assert.Empty(t, events)
	assert.Equal(t, 1, rt.OutstandingActions())
}

func TestLifecycleHooks_StartAndFinish(t *testing.T) {
	var started, finishedFlows []string
	rt := newRuntime(t, `
flows:
  - id: oneshot
    steps:
      - log:
          message: "'running'"
`, runtime.Options{
		Hooks: domain.LifecycleHooks{
			OnFlowStarted: func(_ context.Context, fe *domain.FlowEvent) {
				started = append(started, fe.FlowID)
			},
			OnFlowFinished: func(_ context.Context, fe *domain.FlowEvent) {
				finishedFlows = append(finishedFlows, fe.FlowID)
			},
		},
	})
	bootstrap(t, rt)

	events := feed(t, rt, startFlow("oneshot"))
	assert.Empty(t, events)
	assert.Equal(t, []string{"oneshot"}, started)
	assert.Equal(t, []string{"oneshot"}, finishedFlows)
	assert.Empty(t, rt.Instances())
}

func TestStartUndefinedFlow_RaisesUnhandledEvent(t *testing.T) {
	rt := newRuntime(t, `
flows:
  - id: caller
    steps:
      - start:
          flow: missing
      - match:
          type: Never
  - id: fallback
    activated: true
    steps:
      - match:
          type: UnhandledEvent
          arguments:
            flow_id: missing
          save_to: info
      - send:
          action: Notify
          arguments:
            flow: info.flow_id
`, runtime.Options{})
	bootstrap(t, rt)

	events := feed(t, rt, startFlow("caller"))
	require.Len(t, events, 1)
	assert.Equal(t, "StartNotifyAction", events[0].Type)
	assert.Equal(t, "missing", events[0].Arguments["flow"])
}

func TestCyclicStarts_ReportNoQuiescence(t *testing.T) {
	rt := newRuntime(t, `
flows:
  - id: ping
    steps:
      - start:
          flow: pong
  - id: pong
    steps:
      - start:
          flow: ping
`, runtime.Options{MaxCycles: 25})
	bootstrap(t, rt)

	_, err := rt.ProcessEvent(context.Background(), startFlow("ping"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoQuiescence)
}

func TestTightLoop_FailsOnlyTheSpinningInstance(t *testing.T) {
	var failed []string
	var reasons []string
	rt := newRuntime(t, `
flows:
  - id: spinner
    steps:
      - while:
          cond: "true"
          do:
            - assign:
                var: n
                expr: "1"
  - id: healthy
    activated: true
    steps:
      - match:
          type: Ping
      - send:
          action: Pong
`, runtime.Options{
		MaxSteps: 64,
		Hooks: domain.LifecycleHooks{
			OnFlowFailed: func(_ context.Context, fe *domain.FlowEvent) {
				failed = append(failed, fe.FlowID)
				reasons = append(reasons, fe.Reason)
			},
		},
	})
	bootstrap(t, rt)

	// The spinner burns its statement budget and fails; the event is
	// still processed without a session-level error.
	events := feed(t, rt, startFlow("spinner"))
	assert.Empty(t, events)
	require.Equal(t, []string{"spinner"}, failed)
	assert.Contains(t, reasons[0], "loops without blocking")

	// The sibling flow is untouched.
	events = feed(t, rt, domain.NewEvent("Ping", nil))
	require.Len(t, events, 1)
	assert.Equal(t, "StartPongAction", events[0].Type)
}

func TestLoopScoping_EventsAddressOneLoop(t *testing.T) {
	rt := newRuntime(t, `
flows:
  - id: hearing
    activated: true
    loop: voice
    steps:
      - match:
          type: Heard
      - send:
          action: Ack
`, runtime.Options{})
	bootstrap(t, rt)

	other := domain.NewEvent("Heard", nil)
	other.Loop = "text"
	assert.Empty(t, feed(t, rt, other))

	addressed := domain.NewEvent("Heard", nil)
	addressed.Loop = "voice"
	events := feed(t, rt, addressed)
	require.Len(t, events, 1)
	assert.Equal(t, "StartAckAction", events[0].Type)
	assert.Equal(t, "voice", events[0].Loop)
}

func TestPauseResume(t *testing.T) {
	rt := newRuntime(t, `
flows:
  - id: listener
    activated: true
    steps:
      - match:
          type: Ping
      - send:
          action: Pong
`, runtime.Options{})
	bootstrap(t, rt)
	require.Len(t, rt.Instances(), 1)
	uid := rt.Instances()[0].UID

	assert.Empty(t, feed(t, rt, domain.NewEvent(domain.EventPauseFlow, map[string]any{
		domain.ArgFlowInstanceUID: uid,
	})))

	// A paused instance neither matches nor advances.
	assert.Empty(t, feed(t, rt, domain.NewEvent("Ping", nil)))

	assert.Empty(t, feed(t, rt, domain.NewEvent(domain.EventResumeFlow, map[string]any{
		domain.ArgFlowInstanceUID: uid,
	})))

	events := feed(t, rt, domain.NewEvent("Ping", nil))
	require.Len(t, events, 1)
	assert.Equal(t, "StartPongAction", events[0].Type)
}

func TestDeterminism_SameInputsSameOutputs(t *testing.T) {
	const flows = `
flows:
  - id: exact
    activated: true
    steps:
      - match:
          type: UtteranceUserActionFinished
          arguments:
            final_transcript: stop
      - send:
          action: UtteranceBot
          arguments:
            text: "'halting'"
  - id: catchall
    activated: true
    steps:
      - match:
          type: UtteranceUserActionFinished
          arguments:
            final_transcript: "..."
      - send:
          action: UtteranceBot
          arguments:
            text: "'generic'"
`
	script := []domain.Event{
		domain.NewEvent("UtteranceUserActionFinished", map[string]any{"final_transcript": "hello"}),
		domain.NewEvent("UtteranceUserActionFinished", map[string]any{"final_transcript": "stop"}),
	}

	run := func() []domain.Event {
		rt := newRuntime(t, flows, runtime.Options{})
		all := bootstrap(t, rt)
		for _, ev := range script {
			all = append(all, feed(t, rt, ev.Clone())...)
		}
		return all
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestExcludeFromMatching_HeadsNeverCompeteForEvents(t *testing.T) {
	rt := newRuntime(t, `
flows:
  - id: watcher
    activated: true
    exclude_from_matching: true
    steps:
      - match:
          type: Ping
      - send:
          action: Pong
  - id: listener
    activated: true
    steps:
      - match:
          type: Ping
      - send:
          action: Echo
`, runtime.Options{})
	require.Empty(t, bootstrap(t, rt))

	// Only the listener answers; the excluded watcher stays blocked.
	events := feed(t, rt, domain.NewEvent("Ping", nil))
	assert.Equal(t, []string{"StartEchoAction"}, eventTypes(events))
}

func TestExcludeFromMatching_CompletionsStillResume(t *testing.T) {
	rt := newRuntime(t, `
flows:
  - id: quiet
    activated: true
    exclude_from_matching: true
    steps:
      - send:
          action: Hum
          save_to: res
      - send:
          action: Pong
`, runtime.Options{})

	events := bootstrap(t, rt)
	require.Equal(t, []string{"StartHumAction"}, eventTypes(events))

	// Completions are exact correlation references, not matches, so the
	// excluded flow still advances on them.
	events = feed(t, rt, finished("Hum", events[0].CorrelationID, map[string]any{"return_value": "ok"}))
	assert.Equal(t, []string{"StartPongAction"}, eventTypes(events))
}
