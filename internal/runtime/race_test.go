package runtime_test

import (
	"testing"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhen_FirstBranchToMatchWins(t *testing.T) {
	rt := newRuntime(t, `
flows:
  - id: chooser
    activated: true
    steps:
      - when:
          - steps:
              - match:
                  type: OptionA
              - send:
                  action: PickA
          - steps:
              - match:
                  type: OptionB
              - send:
                  action: PickB
`, runtime.Options{})
	assert.Empty(t, bootstrap(t, rt))

	events := feed(t, rt, domain.NewEvent("OptionB", nil))
	require.Len(t, events, 1)
	assert.Equal(t, "StartPickBAction", events[0].Type)

	// The losing branch is gone; its event is now inert.
	assert.Empty(t, feed(t, rt, domain.NewEvent("OptionA", nil)))
}

func TestWhen_JoinContinuesExactlyOnce(t *testing.T) {
	rt := newRuntime(t, `
flows:
  - id: waiter
    activated: true
    steps:
      - when:
          - steps:
              - match:
                  type: A
          - steps:
              - match:
                  type: B
      - send:
          action: Done
`, runtime.Options{})
	assert.Empty(t, bootstrap(t, rt))

	events := feed(t, rt, domain.NewEvent("A", nil))
	require.Len(t, events, 1)
	assert.Equal(t, "StartDoneAction", events[0].Type)

	// The race is already settled; the other branch cannot fire the
	// continuation a second time.
	assert.Empty(t, feed(t, rt, domain.NewEvent("B", nil)))
	assert.Equal(t, 1, rt.OutstandingActions())
}

// A timeout pattern: one branch arms a timer and speaks on expiry, the
// other waits for the user. Whichever side resumes first cancels the
// other branch's pending work.
const timeoutRaceFlow = `
flows:
  - id: racer
    activated: true
    steps:
      - when:
          - steps:
              - send:
                  action: Timer
                  arguments:
                    duration: "5"
              - send:
                  action: Speak
                  arguments:
                    text: "'timeout'"
          - steps:
              - match:
                  type: UserReplied
              - send:
                  action: Speak
                  arguments:
                    text: "'thanks'"
`

func TestWhen_ReplyCancelsPendingTimer(t *testing.T) {
	rt := newRuntime(t, timeoutRaceFlow, runtime.Options{})
	started := bootstrap(t, rt)
	require.Len(t, started, 1)
	require.Equal(t, "StartTimerAction", started[0].Type)
	timerUID := started[0].CorrelationID

	events := feed(t, rt, domain.NewEvent("UserReplied", nil))
	require.Len(t, events, 2)
	assert.Equal(t, "StopTimerAction", events[0].Type)
	assert.Equal(t, timerUID, events[0].CorrelationID)
	assert.Equal(t, "StartSpeakAction", events[1].Type)
	assert.Equal(t, "thanks", events[1].Arguments["text"])
	assert.Equal(t, 1, rt.OutstandingActions())
}

func TestWhen_TimerExpiryDropsWaitingBranch(t *testing.T) {
	rt := newRuntime(t, timeoutRaceFlow, runtime.Options{})
	started := bootstrap(t, rt)
	require.Len(t, started, 1)

	events := feed(t, rt, finished("Timer", started[0].CorrelationID, nil))
	require.Len(t, events, 1)
	assert.Equal(t, "StartSpeakAction", events[0].Type)
	assert.Equal(t, "timeout", events[0].Arguments["text"])

	// The reply branch was dropped with the race.
	assert.Empty(t, feed(t, rt, domain.NewEvent("UserReplied", nil)))
}
