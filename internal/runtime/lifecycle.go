package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
)

func (rt *Runtime) nextInstanceUID(flowID string) string {
	rt.instSeq++
	return fmt.Sprintf("%s#%d", flowID, rt.instSeq)
}

// startInstance creates a flow instance with a single head at the
// program start and announces it with FlowStarted.
func (rt *Runtime) startInstance(ctx context.Context, def *domain.FlowDefinition, uid string, params map[string]any, parent *domain.FlowInstance, loop string) *domain.FlowInstance {
	if uid == "" {
		uid = rt.nextInstanceUID(def.ID)
	}
	if loop == "" {
		loop = def.LoopID()
	}

	locals := make(map[string]any, len(def.Parameters)+len(params))
	for _, p := range def.Parameters {
		locals[p.Name] = p.Default
	}
	for k, v := range params {
		locals[k] = v
	}

	rt.creationSeq++
	inst := &domain.FlowInstance{
		UID:    uid,
		Def:    def,
		Parent: parent,
		Seq:    rt.creationSeq,
		Status: domain.StatusStarting,
		Loop:   loop,
		Locals: locals,
	}
	rt.headSeq++
	inst.Heads = []*domain.Head{{ID: rt.headSeq, PC: 0, Instance: inst}}

	rt.instances = append(rt.instances, inst)
	rt.byUID[uid] = inst
	if parent != nil {
		parent.Children = append(parent.Children, inst)
	}

	rt.emitInternal(domain.Event{
		Type: domain.EventFlowStarted,
		Arguments: map[string]any{
			domain.ArgFlowID:          def.ID,
			domain.ArgFlowInstanceUID: uid,
		},
		Loop: loop,
	})
	rt.metrics.incTransition("started")
	if rt.hooks.OnFlowStarted != nil {
		rt.hooks.OnFlowStarted(ctx, &domain.FlowEvent{
			FlowID: def.ID, InstanceUID: uid, Loop: loop, Status: domain.StatusStarting,
		})
	}

	inst.Status = domain.StatusRunning
	return inst
}

// finishInstance completes a flow: remaining heads are torn down, every
// outstanding action is stopped, owned children are aborted, and
// exactly one FlowFinished is raised.
func (rt *Runtime) finishInstance(ctx context.Context, inst *domain.FlowInstance) {
	if inst.Status.Terminal() {
		return
	}
	inst.Status = domain.StatusFinished
	rt.teardown(ctx, inst)

	rt.emitInternal(domain.Event{
		Type: domain.EventFlowFinished,
		Arguments: map[string]any{
			domain.ArgFlowID:          inst.Def.ID,
			domain.ArgFlowInstanceUID: inst.UID,
		},
		Loop: inst.Loop,
	})
	rt.metrics.incTransition("finished")
	if rt.hooks.OnFlowFinished != nil {
		rt.hooks.OnFlowFinished(ctx, &domain.FlowEvent{
			FlowID: inst.Def.ID, InstanceUID: inst.UID, Loop: inst.Loop, Status: domain.StatusFinished,
		})
	}
	rt.maybeRestart(inst)
}

// abortInstance cancels a flow: side effects of the current cycle are
// rolled back (context writes discarded), pending actions stopped,
// children aborted transitively, and FlowAborted raised.
func (rt *Runtime) abortInstance(ctx context.Context, inst *domain.FlowInstance, reason string) {
	if inst.Status.Terminal() {
		return
	}
	inst.Status = domain.StatusAborted

	headIDs := make(map[uint64]bool, len(inst.Heads))
	for _, h := range inst.Heads {
		headIDs[h.ID] = true
	}
	rt.teardown(ctx, inst)
	rt.conversation.RollbackHeads(headIDs)

	rt.emitInternal(domain.Event{
		Type: domain.EventFlowAborted,
		Arguments: map[string]any{
			domain.ArgFlowID:          inst.Def.ID,
			domain.ArgFlowInstanceUID: inst.UID,
			domain.ArgReason:          reason,
		},
		Loop: inst.Loop,
	})
	rt.metrics.incTransition("aborted")
	if rt.hooks.OnFlowAborted != nil {
		rt.hooks.OnFlowAborted(ctx, &domain.FlowEvent{
			FlowID: inst.Def.ID, InstanceUID: inst.UID, Loop: inst.Loop,
			Status: domain.StatusAborted, Reason: reason,
		})
	}
	rt.maybeRestart(inst)
}

// failInstance fails a flow after a runtime statement error. Sibling
// flows are unaffected.
func (rt *Runtime) failInstance(ctx context.Context, inst *domain.FlowInstance, cause error) {
	if inst.Status.Terminal() {
		return
	}
	inst.Status = domain.StatusFailed
	rt.teardown(ctx, inst)

	rt.emitInternal(domain.Event{
		Type: domain.EventFlowFailed,
		Arguments: map[string]any{
			domain.ArgFlowID:          inst.Def.ID,
			domain.ArgFlowInstanceUID: inst.UID,
			domain.ArgReason:          cause.Error(),
		},
		Loop: inst.Loop,
	})
	rt.metrics.incTransition("failed")
	if rt.hooks.OnFlowFailed != nil {
		rt.hooks.OnFlowFailed(ctx, &domain.FlowEvent{
			FlowID: inst.Def.ID, InstanceUID: inst.UID, Loop: inst.Loop,
			Status: domain.StatusFailed, Reason: cause.Error(),
		})
	}
	rt.maybeRestart(inst)
}

// teardown removes every head (stopping awaited actions), stops every
// outstanding action, aborts owned children and detaches from the
// parent. Shared by all terminal transitions.
func (rt *Runtime) teardown(ctx context.Context, inst *domain.FlowInstance) {
	for _, h := range snapshotHeads(inst) {
		rt.dropHead(ctx, inst, h)
	}
	for _, a := range append([]*domain.ActionInstance(nil), inst.Actions...) {
		rt.stopAction(ctx, a)
	}
	for _, c := range append([]*domain.FlowInstance(nil), inst.Children...) {
		rt.abortInstance(ctx, c, "parent flow ended")
	}
	if inst.Parent != nil {
		inst.Parent.RemoveChild(inst)
		inst.Parent = nil
	}
}

// dropHead removes a head, stopping the action it awaits and aborting
// the child flow it awaits.
func (rt *Runtime) dropHead(ctx context.Context, inst *domain.FlowInstance, h *domain.Head) {
	if h.PendingActionUID != "" {
		if a := rt.actions[h.PendingActionUID]; a != nil {
			rt.stopAction(ctx, a)
		}
		h.PendingActionUID = ""
	}
	if h.PendingFlowUID != "" {
		if child := rt.byUID[h.PendingFlowUID]; child != nil && child.Live() {
			rt.abortInstance(ctx, child, "awaiting head cancelled")
		}
		h.PendingFlowUID = ""
	}
	inst.RemoveHead(h)
}

// stopAction emits the Stop event for an outstanding action and forgets
// it. No Finished event will resume anyone afterwards.
func (rt *Runtime) stopAction(ctx context.Context, a *domain.ActionInstance) {
	if _, known := rt.actions[a.UID]; !known {
		return
	}
	loop := domain.DefaultLoop
	if a.Owner != nil {
		loop = a.Owner.Loop
	}
	rt.releaseAction(a)
	rt.emitAction(a.StopEvent(loop))
	rt.metrics.incActionStopped()
	if rt.hooks.OnActionStopped != nil {
		ownerUID := ""
		if a.Owner != nil {
			ownerUID = a.Owner.UID
		}
		rt.hooks.OnActionStopped(ctx, &domain.ActionEvent{
			ActionName: a.Name, ActionUID: a.UID, InstanceUID: ownerUID, Loop: loop,
		})
	}
}

// resolveRace settles every fork race the head participates in: all
// sibling heads sharing one of its groups are cancelled, then the head
// leaves its groups.
func (rt *Runtime) resolveRace(ctx context.Context, h *domain.Head) {
	if len(h.Groups) == 0 {
		return
	}
	groups := make(map[uint64]bool, len(h.Groups))
	for _, g := range h.Groups {
		groups[g] = true
	}
	h.Groups = nil

	inst := h.Instance
	for _, other := range snapshotHeads(inst) {
		if other == h || !headAlive(inst, other) {
			continue
		}
		for _, g := range other.Groups {
			if groups[g] {
				rt.dropHead(ctx, inst, other)
				break
			}
		}
	}
}

// maybeRestart implements the activation manager: a flow marked
// activated is restarted with a completely fresh instance when it
// terminates, unless it was deactivated in the meantime. The restart is
// queued, so it settles after the terminal transition it reacts to.
func (rt *Runtime) maybeRestart(inst *domain.FlowInstance) {
	id := inst.Def.ID
	if !rt.activated[id] || rt.hasLiveInstance(id) {
		return
	}
	rt.emitInternal(domain.NewEvent(domain.EventStartFlow, map[string]any{domain.ArgFlowID: id}))
}

func (rt *Runtime) hasLiveInstance(flowID string) bool {
	for _, inst := range rt.instances {
		if inst.Def.ID == flowID && inst.Live() {
			return true
		}
	}
	return false
}

// raiseUnhandled queues an UnhandledEvent. If no flow consumes it, it
// is silently dropped at the end of the cycle.
func (rt *Runtime) raiseUnhandled(ctx context.Context, ev domain.Event) {
	rt.logger.Debug("unhandled event", "event", ev.Arguments[domain.ArgEventType], "flow_id", ev.Arguments[domain.ArgFlowID])
	if rt.hooks.OnUnhandledEvent != nil {
		rt.hooks.OnUnhandledEvent(ctx, ev)
	}
	rt.emitInternal(ev)
}
