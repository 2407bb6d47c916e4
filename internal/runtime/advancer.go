package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
)

// advanceAll slides every sliding head until the whole session is
// blocked. Sliding may spawn heads and enqueue internal events but
// never admits new events itself.
func (rt *Runtime) advanceAll(ctx context.Context) {
	for {
		progressed := false
		for _, inst := range rt.snapshotInstances() {
			if !inst.Live() || inst.Paused {
				continue
			}
			for _, h := range snapshotHeads(inst) {
				if !headAlive(inst, h) {
					continue
				}
				if rt.slideHead(ctx, inst, h) {
					progressed = true
				}
			}
		}
		if !progressed {
			return
		}
	}
}

// slideHead executes non-blocking statements until the head blocks, the
// instance terminates, or an intent is parked for adjudication.
// Returns whether any statement was executed.
func (rt *Runtime) slideHead(ctx context.Context, inst *domain.FlowInstance, h *domain.Head) bool {
	moved := false
	for headAlive(inst, h) {
		if h.PC >= len(inst.Def.Program) {
			// Fell off the program end; equivalent to an explicit return.
			rt.finishInstance(ctx, inst)
			return true
		}
		stmt := &inst.Def.Program[h.PC]

		rt.steps++
		if rt.steps > rt.maxSteps {
			rt.statementError(ctx, inst, stmt,
				fmt.Errorf("%w after %d statements: flow loops without blocking", domain.ErrNoQuiescence, rt.maxSteps))
			return true
		}

		switch stmt.Op {
		case domain.OpMatch:
			return moved

		case domain.OpSend:
			if h.PendingActionUID != "" || rt.parked[h.ID] {
				return moved
			}
			args, err := rt.evalArgs(inst, stmt.Action.Arguments)
			if err != nil {
				rt.statementError(ctx, inst, stmt, err)
				return true
			}
			rt.registerIntent(inst, h, stmt.Action, args)
			return true

		case domain.OpStart:
			if h.PendingFlowUID != "" {
				return moved
			}
			blocked := rt.execStart(ctx, inst, h, stmt)
			if blocked {
				return true
			}
			moved = true

		case domain.OpAssign:
			if err := rt.execAssign(ctx, inst, h, stmt); err != nil {
				rt.statementError(ctx, inst, stmt, err)
				return true
			}
			h.PC++
			moved = true

		case domain.OpIf:
			v, err := stmt.Expr.Eval(rt.scope(inst))
			if err != nil {
				rt.statementError(ctx, inst, stmt, err)
				return true
			}
			if truthy(v) {
				h.PC++
			} else {
				h.PC = stmt.Jump
			}
			moved = true

		case domain.OpGoto:
			h.PC = stmt.Jump
			moved = true

		case domain.OpJoin:
			rt.resolveRace(ctx, h)
			h.PC = stmt.Jump
			moved = true

		case domain.OpFork:
			rt.execFork(inst, h, stmt)
			return true

		case domain.OpActivate:
			if err := rt.execActivate(ctx, inst, stmt); err != nil {
				rt.statementError(ctx, inst, stmt, err)
				return true
			}
			h.PC++
			moved = true

		case domain.OpDeactivate:
			delete(rt.activated, stmt.Flow.FlowID)
			h.PC++
			moved = true

		case domain.OpAbort:
			rt.abortInstance(ctx, inst, "abort statement")
			return true

		case domain.OpLog:
			v, err := stmt.Expr.Eval(rt.scope(inst))
			if err != nil {
				rt.statementError(ctx, inst, stmt, err)
				return true
			}
			rt.logger.Info("flow log", "flow", inst.Def.ID, "instance", inst.UID, "msg", v)
			h.PC++
			moved = true

		case domain.OpReturn:
			rt.finishInstance(ctx, inst)
			return true

		default:
			rt.statementError(ctx, inst, stmt, fmt.Errorf("unknown opcode %v", stmt.Op))
			return true
		}
	}
	return moved
}

// execAssign writes a binding into the flow locals or the shared
// conversation context. Context writes raise a ContextUpdate event.
func (rt *Runtime) execAssign(ctx context.Context, inst *domain.FlowInstance, h *domain.Head, stmt *domain.Statement) error {
	v, err := stmt.Expr.Eval(rt.scope(inst))
	if err != nil {
		return err
	}
	if stmt.Scope == domain.ScopeLocal {
		inst.Locals[stmt.Target] = v
		return nil
	}

	if err := rt.conversation.SetFromHead(h.ID, stmt.Target, v); err != nil {
		var race *domain.WriteRaceError
		if errors.As(err, &race) {
			rt.logger.Warn("context write race", "key", race.Key, "first_head", race.FirstHead, "second_head", race.SecondHead)
			if rt.hooks.OnContextWriteRace != nil {
				rt.hooks.OnContextWriteRace(ctx, race)
			}
		}
	}
	rt.emitInternal(domain.Event{
		Type:      domain.EventContextUpdate,
		Arguments: map[string]any{stmt.Target: v},
		Loop:      inst.Loop,
	})
	return nil
}

// execStart schedules a child flow start. Returns true if the head
// blocked awaiting the child.
func (rt *Runtime) execStart(ctx context.Context, inst *domain.FlowInstance, h *domain.Head, stmt *domain.Statement) bool {
	ref := stmt.Flow
	if _, err := rt.registry.Lookup(ref.FlowID); err != nil {
		// An undefined flow is not an error: manufacture an
		// UnhandledEvent so fallback flows can react.
		rt.raiseUnhandled(ctx, domain.Event{
			Type: domain.EventUnhandledEvent,
			Arguments: map[string]any{
				domain.ArgEventType: domain.EventStartFlow,
				domain.ArgFlowID:    ref.FlowID,
				domain.ArgSourceUID: inst.UID,
			},
			Loop: inst.Loop,
		})
		h.PC++
		return false
	}

	params, err := rt.evalArgs(inst, ref.Arguments)
	if err != nil {
		rt.statementError(ctx, inst, stmt, err)
		return true
	}

	childUID := rt.nextInstanceUID(ref.FlowID)
	rt.emitInternal(domain.Event{
		Type: domain.EventStartFlow,
		Arguments: map[string]any{
			domain.ArgFlowID:          ref.FlowID,
			domain.ArgFlowInstanceUID: childUID,
			domain.ArgFlowParams:      params,
			domain.ArgSourceUID:       inst.UID,
		},
		Loop: inst.Loop,
	})

	if ref.Wait {
		h.PendingFlowUID = childUID
		return true
	}
	h.PC++
	return false
}

// execFork replaces the head with one child per branch, all in a fresh
// race group. Children inherit the score history.
func (rt *Runtime) execFork(inst *domain.FlowInstance, h *domain.Head, stmt *domain.Statement) {
	rt.groupSeq++
	group := rt.groupSeq
	inst.RemoveHead(h)
	for _, target := range stmt.Branches {
		rt.headSeq++
		child := &domain.Head{
			ID:       rt.headSeq,
			PC:       target,
			Instance: inst,
			Scores:   append([]float64(nil), h.Scores...),
			Groups:   append(append([]uint64(nil), h.Groups...), group),
		}
		inst.Heads = append(inst.Heads, child)
	}
}

// execActivate marks a flow for auto-restart and starts it if no
// instance is live.
func (rt *Runtime) execActivate(ctx context.Context, inst *domain.FlowInstance, stmt *domain.Statement) error {
	ref := stmt.Flow
	if _, err := rt.registry.Lookup(ref.FlowID); err != nil {
		rt.raiseUnhandled(ctx, domain.Event{
			Type: domain.EventUnhandledEvent,
			Arguments: map[string]any{
				domain.ArgEventType: domain.EventStartFlow,
				domain.ArgFlowID:    ref.FlowID,
				domain.ArgSourceUID: inst.UID,
			},
			Loop: inst.Loop,
		})
		return nil
	}
	params, err := rt.evalArgs(inst, ref.Arguments)
	if err != nil {
		return err
	}
	rt.activated[ref.FlowID] = true
	if !rt.hasLiveInstance(ref.FlowID) {
		args := map[string]any{domain.ArgFlowID: ref.FlowID}
		if len(params) > 0 {
			args[domain.ArgFlowParams] = params
		}
		rt.emitInternal(domain.NewEvent(domain.EventStartFlow, args))
	}
	return nil
}

// scope builds the expression evaluation scope: conversation context
// bindings shadowed by flow locals.
func (rt *Runtime) scope(inst *domain.FlowInstance) map[string]any {
	scope := rt.conversation.Snapshot()
	for k, v := range inst.Locals {
		scope[k] = v
	}
	return scope
}

func (rt *Runtime) evalArgs(inst *domain.FlowInstance, exprs map[string]domain.Expr) (map[string]any, error) {
	if len(exprs) == 0 {
		return map[string]any{}, nil
	}
	scope := rt.scope(inst)
	out := make(map[string]any, len(exprs))
	for key, expr := range exprs {
		v, err := expr.Eval(scope)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// statementError converts a runtime statement failure into an internal
// error event and fails only the offending instance.
func (rt *Runtime) statementError(ctx context.Context, inst *domain.FlowInstance, stmt *domain.Statement, err error) {
	rt.logger.Error("statement failed",
		"flow", inst.Def.ID, "instance", inst.UID, "op", stmt.Op.String(), "step", stmt.Line, "err", err)
	rt.failInstance(ctx, inst, err)
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int64:
		return x != 0
	case int:
		return x != 0
	}
	return true
}
