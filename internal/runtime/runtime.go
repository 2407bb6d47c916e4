// Package runtime implements the weft execution engine: the event
// dispatcher, matcher, statement advancer, conflict resolver and
// action/flow scheduler with its activation manager.
//
// The engine is single-threaded and cooperative within a session:
// processing one external event runs to a fixed point (every head
// blocked, internal queue drained) before the next event is admitted.
// That discipline is the system's sole concurrency-correctness
// mechanism; callers serialize ProcessEvent invocations per session.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
)

// DefaultMaxCycles bounds the internal event cycles spent on a single
// external event. Exceeding it means cyclic flow logic.
const DefaultMaxCycles = 1000

// DefaultMaxSteps bounds the statements executed per external event,
// catching flows that loop without ever blocking.
const DefaultMaxSteps = 100000

// Options configures a Runtime.
type Options struct {
	Logger    *slog.Logger
	Hooks     domain.LifecycleHooks
	Metrics   *Metrics
	Debug     bool
	MaxCycles int
	MaxSteps  int
}

// Runtime is one session's execution state: the live flow instances of
// every interaction loop, the conversation context, and the queues that
// drive a processing cycle.
type Runtime struct {
	registry     *registry.Registry
	conversation *domain.Context
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	metrics      *Metrics
	debug        bool
	maxCycles    int

	// instances is ordered by creation (Seq); iteration order is the
	// engine's determinism guarantee. Terminal instances are pruned
	// after each ProcessEvent.
	instances []*domain.FlowInstance
	byUID     map[string]*domain.FlowInstance

	// actions indexes outstanding actions by UID.
	actions map[string]*domain.ActionInstance

	// activated is the auto-restart set, keyed by flow id.
	activated map[string]bool

	headSeq     uint64
	instSeq     uint64
	creationSeq uint64
	groupSeq    uint64
	actionSeq   uint64

	// steps counts statements executed since the last external event.
	steps    int
	maxSteps int

	queue   []domain.Event
	emitted []domain.Event

	intents     []*sendIntent
	intentOrder int
	parked      map[uint64]bool
}

// New creates a runtime over a flow registry.
func New(reg *registry.Registry, opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	maxCycles := opts.MaxCycles
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Runtime{
		registry:     reg,
		conversation: domain.NewContext(opts.Debug),
		logger:       logger,
		hooks:        opts.Hooks,
		metrics:      opts.Metrics,
		debug:        opts.Debug,
		maxCycles:    maxCycles,
		maxSteps:     maxSteps,
		byUID:        map[string]*domain.FlowInstance{},
		actions:      map[string]*domain.ActionInstance{},
		activated:    map[string]bool{},
		parked:       map[uint64]bool{},
	}
}

// Context returns the conversation context.
func (rt *Runtime) Context() *domain.Context { return rt.conversation }

// Bootstrap activates every flow the registry marks activated and runs
// the resulting starts to a fixed point. Called once per fresh session.
func (rt *Runtime) Bootstrap(ctx context.Context) ([]domain.Event, error) {
	rt.emitted = nil
	rt.conversation.BeginCycle()
	for _, id := range rt.registry.Activated() {
		rt.activated[id] = true
		rt.enqueue(domain.NewEvent(domain.EventStartFlow, map[string]any{domain.ArgFlowID: id}))
	}
	if err := rt.drain(ctx); err != nil {
		return nil, err
	}
	rt.finishProcessing()
	return rt.emitted, nil
}

// ProcessEvent admits one external event, processes it and every event
// derived from it to a fixed point, and returns the ordered list of
// externally visible events produced (action starts and stops).
func (rt *Runtime) ProcessEvent(ctx context.Context, ev domain.Event) ([]domain.Event, error) {
	start := time.Now()
	rt.emitted = nil
	rt.conversation.BeginCycle()

	rt.queue = append(rt.queue, ev)
	if err := rt.drain(ctx); err != nil {
		return nil, err
	}

	rt.finishProcessing()
	rt.metrics.observeProcess(time.Since(start).Seconds())
	return rt.emitted, nil
}

// drain runs queued events one at a time until quiescence or the cycle
// budget is exhausted.
func (rt *Runtime) drain(ctx context.Context) error {
	rt.steps = 0
	cycles := 0
	for len(rt.queue) > 0 {
		cycles++
		if cycles > rt.maxCycles {
			rt.queue = nil
			return fmt.Errorf("%w after %d internal cycles: cyclic flow logic", domain.ErrNoQuiescence, rt.maxCycles)
		}
		next := rt.queue[0]
		rt.queue = rt.queue[1:]
		rt.processOne(ctx, next)
	}
	return nil
}

// processOne runs the match, advance and conflict-resolution phases for
// a single event.
func (rt *Runtime) processOne(ctx context.Context, ev domain.Event) {
	rt.intents = rt.intents[:0]
	rt.intentOrder = 0
	clear(rt.parked)

	switch ev.Type {
	case domain.EventStopFlow:
		rt.handleStopFlow(ctx, ev)
		return
	case domain.EventPauseFlow:
		rt.handlePauseFlow(ctx, ev, true)
		return
	case domain.EventResumeFlow:
		rt.handlePauseFlow(ctx, ev, false)
		return
	}

	matched := rt.matchPhase(ctx, ev)

	if ev.Type == domain.EventStartFlow {
		rt.handleStartFlow(ctx, ev, matched)
	}

	rt.advanceAll(ctx)
	rt.resolveConflicts(ctx)
}

// matchPhase offers the event to every blocked head, in deterministic
// creation order. Returns whether any head matched.
func (rt *Runtime) matchPhase(ctx context.Context, ev domain.Event) bool {
	matched := false
	for _, inst := range rt.snapshotInstances() {
		if !inst.Live() || inst.Paused {
			continue
		}
		for _, h := range snapshotHeads(inst) {
			if !headAlive(inst, h) {
				continue
			}
			if rt.offerEvent(ctx, inst, h, ev) {
				matched = true
			}
		}
	}
	return matched
}

// offerEvent tries to resume one head with the event.
func (rt *Runtime) offerEvent(ctx context.Context, inst *domain.FlowInstance, h *domain.Head, ev domain.Event) bool {
	// Completion of an action this head started.
	if h.PendingActionUID != "" {
		a := rt.actions[h.PendingActionUID]
		if a == nil || ev.CorrelationID != a.UID || ev.Type != domain.FinishedEventType(a.Name) {
			return false
		}
		if !visibleTo(nil, ev, inst.Loop) {
			return false
		}
		stmt := inst.Def.Program[h.PC]
		if stmt.Target != "" {
			inst.Locals[stmt.Target] = ev.Arguments["return_value"]
		}
		rt.releaseAction(a)
		h.PendingActionUID = ""
		rt.resume(ctx, h, scoreCompletion)
		return true
	}

	// Completion of a child flow this head awaits.
	if h.PendingFlowUID != "" {
		switch ev.Type {
		case domain.EventFlowFinished, domain.EventFlowFailed, domain.EventFlowAborted:
		default:
			return false
		}
		uid, err := ev.StringArg(domain.ArgFlowInstanceUID)
		if err != nil || uid != h.PendingFlowUID {
			return false
		}
		h.PendingFlowUID = ""
		rt.resume(ctx, h, scoreCompletion)
		return true
	}

	if h.PC >= len(inst.Def.Program) {
		return false
	}
	// Excluded flows never compete for events; their heads resume only
	// on completions of work they started, handled above.
	if inst.Def.ExcludeFromMatching {
		return false
	}
	stmt := inst.Def.Program[h.PC]
	if stmt.Op != domain.OpMatch {
		return false
	}
	if !visibleTo(stmt.Pattern, ev, inst.Loop) {
		return false
	}
	ok, score := matchPattern(stmt.Pattern, ev)
	if !ok {
		return false
	}
	if stmt.Target != "" {
		args := make(map[string]any, len(ev.Arguments))
		for k, v := range ev.Arguments {
			args[k] = v
		}
		inst.Locals[stmt.Target] = args
	}
	rt.resume(ctx, h, score)
	return true
}

// resume unblocks a head: records the match score, advances past the
// blocking statement and settles any fork race in the head's favor.
func (rt *Runtime) resume(ctx context.Context, h *domain.Head, score float64) {
	h.Scores = append(h.Scores, score)
	h.PC++
	rt.resolveRace(ctx, h)
	if h.Instance.Status == domain.StatusBlocked {
		h.Instance.Status = domain.StatusRunning
	}
}

// enqueue appends to the internal FIFO.
func (rt *Runtime) enqueue(ev domain.Event) {
	rt.queue = append(rt.queue, ev)
}

// emitInternal queues a runtime-generated event for matching.
func (rt *Runtime) emitInternal(ev domain.Event) {
	rt.metrics.incInternal()
	rt.enqueue(ev)
}

// emitAction publishes an action lifecycle event both to the host and
// to the internal queue, so flows can observe action starts and stops.
func (rt *Runtime) emitAction(ev domain.Event) {
	rt.emitted = append(rt.emitted, ev)
	rt.emitInternal(ev)
}

// finishProcessing refreshes instance statuses and prunes terminal
// instances once the queue has drained.
func (rt *Runtime) finishProcessing() {
	live := rt.instances[:0]
	for _, inst := range rt.instances {
		if inst.Status.Terminal() {
			delete(rt.byUID, inst.UID)
			continue
		}
		blocked := len(inst.Heads) > 0
		for _, h := range inst.Heads {
			if !h.Blocked() {
				blocked = false
				break
			}
		}
		if blocked {
			inst.Status = domain.StatusBlocked
		} else {
			inst.Status = domain.StatusRunning
		}
		live = append(live, inst)
	}
	rt.instances = live
}

// snapshotInstances copies the instance list so phase iteration is
// stable under mutation.
func (rt *Runtime) snapshotInstances() []*domain.FlowInstance {
	out := make([]*domain.FlowInstance, len(rt.instances))
	copy(out, rt.instances)
	return out
}

func snapshotHeads(inst *domain.FlowInstance) []*domain.Head {
	out := make([]*domain.Head, len(inst.Heads))
	copy(out, inst.Heads)
	return out
}

func headAlive(inst *domain.FlowInstance, h *domain.Head) bool {
	if inst.Status.Terminal() {
		return false
	}
	for _, other := range inst.Heads {
		if other == h {
			return true
		}
	}
	return false
}

// releaseAction removes a completed action from the books without
// emitting a Stop (the action already finished).
func (rt *Runtime) releaseAction(a *domain.ActionInstance) {
	delete(rt.actions, a.UID)
	if a.Owner != nil {
		a.Owner.RemoveAction(a)
	}
}
