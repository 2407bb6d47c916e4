package runtime

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// handleStartFlow instantiates a flow in response to a StartFlow event.
// An undefined flow id is not an error: unless some head consumed the
// event, an UnhandledEvent is raised so diagnostic flows can react.
func (rt *Runtime) handleStartFlow(ctx context.Context, ev domain.Event, matched bool) {
	flowID, err := ev.StringArg(domain.ArgFlowID)
	if err != nil {
		rt.logger.Warn("StartFlow without flow_id", "err", err)
		return
	}

	def, err := rt.registry.Lookup(flowID)
	if err != nil {
		if !matched {
			rt.raiseUnhandled(ctx, domain.Event{
				Type: domain.EventUnhandledEvent,
				Arguments: map[string]any{
					domain.ArgEventType: domain.EventStartFlow,
					domain.ArgFlowID:    flowID,
				},
				Loop: ev.Loop,
			})
		}
		return
	}

	uid, _ := ev.StringArg(domain.ArgFlowInstanceUID)
	params, _ := ev.MapArg(domain.ArgFlowParams)

	var parent *domain.FlowInstance
	if sourceUID, err := ev.StringArg(domain.ArgSourceUID); err == nil {
		parent = rt.byUID[sourceUID]
		if parent != nil && !parent.Live() {
			parent = nil
		}
	}

	rt.startInstance(ctx, def, uid, params, parent, ev.Loop)
}

// handleStopFlow aborts instances addressed by uid or by flow id.
// Stopping synthesizes Stop events for every outstanding action the
// instance owns and cancels its child heads transitively.
func (rt *Runtime) handleStopFlow(ctx context.Context, ev domain.Event) {
	if uid, err := ev.StringArg(domain.ArgFlowInstanceUID); err == nil {
		if inst := rt.byUID[uid]; inst != nil && inst.Live() {
			rt.abortInstance(ctx, inst, "stopped")
		}
		return
	}
	flowID, err := ev.StringArg(domain.ArgFlowID)
	if err != nil {
		rt.logger.Warn("StopFlow without target", "err", err)
		return
	}
	for _, inst := range rt.snapshotInstances() {
		if inst.Def.ID == flowID && inst.Live() {
			rt.abortInstance(ctx, inst, "stopped")
		}
	}
}

// handlePauseFlow freezes or thaws an instance. Paused instances keep
// their heads but neither match nor advance; FlowPaused/FlowResumed
// mark the transition for observers.
func (rt *Runtime) handlePauseFlow(ctx context.Context, ev domain.Event, pause bool) {
	uid, err := ev.StringArg(domain.ArgFlowInstanceUID)
	if err != nil {
		rt.logger.Warn("pause/resume without flow_instance_uid", "err", err)
		return
	}
	inst := rt.byUID[uid]
	if inst == nil || !inst.Live() || inst.Paused == pause {
		return
	}
	inst.Paused = pause

	eventType := domain.EventFlowPaused
	if !pause {
		eventType = domain.EventFlowResumed
	}
	rt.emitInternal(domain.Event{
		Type: eventType,
		Arguments: map[string]any{
			domain.ArgFlowID:          inst.Def.ID,
			domain.ArgFlowInstanceUID: inst.UID,
		},
		Loop: inst.Loop,
	})
}

// Activate marks a flow for auto-restart on behalf of the host and
// starts it if necessary, returning any externally visible events the
// start produced. Mutations only happen between processing cycles;
// callers hold the session lock.
func (rt *Runtime) Activate(ctx context.Context, flowID string) ([]domain.Event, error) {
	if _, err := rt.registry.Lookup(flowID); err != nil {
		return nil, err
	}
	rt.activated[flowID] = true
	if rt.hasLiveInstance(flowID) {
		return nil, nil
	}
	rt.emitted = nil
	rt.conversation.BeginCycle()
	rt.enqueue(domain.NewEvent(domain.EventStartFlow, map[string]any{domain.ArgFlowID: flowID}))
	if err := rt.drain(ctx); err != nil {
		return nil, err
	}
	rt.finishProcessing()
	return rt.emitted, nil
}

// Deactivate clears the auto-restart mark. Running instances finish
// normally but are not replaced.
func (rt *Runtime) Deactivate(flowID string) {
	delete(rt.activated, flowID)
}

// Instances returns the live instances in creation order, for
// introspection and tests.
func (rt *Runtime) Instances() []*domain.FlowInstance {
	return rt.snapshotInstances()
}

// OutstandingActions returns the number of actions started but not yet
// finished or stopped.
func (rt *Runtime) OutstandingActions() int { return len(rt.actions) }
