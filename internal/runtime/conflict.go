package runtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// sendIntent is one head's pending action-send, registered during the
// advance phase and adjudicated before anything is emitted.
type sendIntent struct {
	order int
	inst  *domain.FlowInstance
	head  *domain.Head
	spec  *domain.ActionSpec
	args  map[string]any
}

func (rt *Runtime) registerIntent(inst *domain.FlowInstance, h *domain.Head, spec *domain.ActionSpec, args map[string]any) {
	rt.intents = append(rt.intents, &sendIntent{
		order: rt.intentOrder,
		inst:  inst,
		head:  h,
		spec:  spec,
		args:  args,
	})
	rt.intentOrder++
	rt.parked[h.ID] = true
}

// resolveConflicts adjudicates every intent of the current cycle.
// Intents are grouped by interaction loop and conflict channel; within
// a group exactly one wins, chosen by match-score history, then flow
// priority, then registration order. Losing flows are aborted with
// their side effects rolled back. Groups of one proceed untouched.
func (rt *Runtime) resolveConflicts(ctx context.Context) {
	if len(rt.intents) == 0 {
		return
	}
	intents := rt.intents
	rt.intents = nil

	type groupKey struct{ loop, channel string }
	groups := map[groupKey][]*sendIntent{}
	var order []groupKey
	for _, in := range intents {
		key := groupKey{loop: in.inst.Loop, channel: in.spec.ConflictChannel()}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], in)
	}

	for _, key := range order {
		group := groups[key]
		// Drop intents whose instance already died this cycle (e.g.
		// aborted as a loser on an earlier channel).
		alive := group[:0]
		for _, in := range group {
			if in.inst.Live() && headAlive(in.inst, in.head) {
				alive = append(alive, in)
			}
		}
		if len(alive) == 0 {
			continue
		}

		winner := alive[0]
		if len(alive) > 1 {
			sort.SliceStable(alive, func(i, j int) bool {
				a, b := alive[i], alive[j]
				if c := compareScoreHistories(a.head.Scores, b.head.Scores); c != 0 {
					return c > 0
				}
				if a.inst.Def.Priority != b.inst.Def.Priority {
					return a.inst.Def.Priority > b.inst.Def.Priority
				}
				return a.order < b.order
			})
			winner = alive[0]

			rt.metrics.incConflict()
			losers := make([]string, 0, len(alive)-1)
			for _, in := range alive[1:] {
				losers = append(losers, in.inst.UID)
			}
			rt.logger.Debug("conflict resolved",
				"loop", key.loop, "channel", key.channel,
				"winner", winner.inst.UID, "losers", losers)
			if rt.hooks.OnConflict != nil {
				rt.hooks.OnConflict(ctx, &domain.ConflictEvent{
					Loop: key.loop, Channel: key.channel,
					Winner: winner.inst.UID, Losers: losers,
				})
			}

			for _, in := range alive[1:] {
				if in.inst == winner.inst {
					// A losing fork branch of the winning instance:
					// tear down the branch, keep the flow.
					rt.dropHead(ctx, in.inst, in.head)
					continue
				}
				rt.abortInstance(ctx, in.inst, fmt.Sprintf("conflict on channel %q lost to %s", key.channel, winner.inst.UID))
			}
		}

		rt.startAction(ctx, winner)
	}
}

// startAction emits the winning intent's Start event and leaves the
// head blocked on the action's completion.
func (rt *Runtime) startAction(ctx context.Context, in *sendIntent) {
	rt.actionSeq++
	a := &domain.ActionInstance{
		UID:       fmt.Sprintf("action-%d", rt.actionSeq),
		Name:      in.spec.Name,
		Arguments: in.args,
		Owner:     in.inst,
		StartedAt: time.Now().UTC(),
	}
	rt.actions[a.UID] = a
	in.inst.Actions = append(in.inst.Actions, a)
	in.head.PendingActionUID = a.UID
	delete(rt.parked, in.head.ID)

	rt.emitAction(a.StartEvent(in.inst.Loop))
	rt.metrics.incActionStarted()
	if rt.hooks.OnActionStarted != nil {
		rt.hooks.OnActionStarted(ctx, &domain.ActionEvent{
			ActionName: a.Name, ActionUID: a.UID,
			InstanceUID: in.inst.UID, Loop: in.inst.Loop, Arguments: in.args,
		})
	}
}
