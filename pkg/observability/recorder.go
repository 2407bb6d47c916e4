package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// TransitionKind classifies a recorded lifecycle transition.
type TransitionKind string

const (
	FlowStarted   TransitionKind = "flow_started"
	FlowFinished  TransitionKind = "flow_finished"
	FlowAborted   TransitionKind = "flow_aborted"
	FlowFailed    TransitionKind = "flow_failed"
	ActionStarted TransitionKind = "action_started"
	ActionStopped TransitionKind = "action_stopped"
	Conflict      TransitionKind = "conflict"
)

// Transition is one recorded lifecycle event.
type Transition struct {
	Kind TransitionKind
	At   time.Time

	// Exactly one of the following is set, matching Kind.
	Flow     *domain.FlowEvent
	Action   *domain.ActionEvent
	Conflict *domain.ConflictEvent
}

// Recorder captures lifecycle transitions in order. It is safe for
// concurrent sessions to share one recorder.
type Recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Hooks returns the hook set that feeds this recorder. Combine with
// Multiplex to record alongside other observers.
func (r *Recorder) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFlowStarted:   r.flowHook(FlowStarted),
		OnFlowFinished:  r.flowHook(FlowFinished),
		OnFlowAborted:   r.flowHook(FlowAborted),
		OnFlowFailed:    r.flowHook(FlowFailed),
		OnActionStarted: r.actionHook(ActionStarted),
		OnActionStopped: r.actionHook(ActionStopped),
		OnConflict: func(_ context.Context, ce *domain.ConflictEvent) {
			r.append(Transition{Kind: Conflict, Conflict: ce})
		},
	}
}

// Transitions returns a copy of everything recorded so far.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}

// Kinds returns just the ordered transition kinds, convenient for
// asserting sequences in tests.
func (r *Recorder) Kinds() []TransitionKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]TransitionKind, len(r.transitions))
	for i, tr := range r.transitions {
		kinds[i] = tr.Kind
	}
	return kinds
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = nil
}

func (r *Recorder) flowHook(kind TransitionKind) func(context.Context, *domain.FlowEvent) {
	return func(_ context.Context, fe *domain.FlowEvent) {
		r.append(Transition{Kind: kind, Flow: fe})
	}
}

func (r *Recorder) actionHook(kind TransitionKind) func(context.Context, *domain.ActionEvent) {
	return func(_ context.Context, ae *domain.ActionEvent) {
		r.append(Transition{Kind: kind, Action: ae})
	}
}

func (r *Recorder) append(tr Transition) {
	tr.At = time.Now()
	r.mu.Lock()
	r.transitions = append(r.transitions, tr)
	r.mu.Unlock()
}
