package runtime

import (
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// Snapshot captures the session at quiescence. Programs are not
// serialized; restoring requires the flow definitions the snapshot was
// taken against.
func (rt *Runtime) Snapshot(sessionID string) *domain.SessionSnapshot {
	snap := &domain.SessionSnapshot{
		SessionID: sessionID,
		Context:   rt.conversation.Snapshot(),
		Counters: domain.SnapshotCounters{
			Head:     rt.headSeq,
			Instance: rt.instSeq,
			Creation: rt.creationSeq,
			Group:    rt.groupSeq,
			Action:   rt.actionSeq,
		},
		TakenAt: time.Now().UTC(),
	}
	for id := range rt.activated {
		snap.Activated = append(snap.Activated, id)
	}

	for _, inst := range rt.instances {
		is := domain.InstanceSnapshot{
			UID:    inst.UID,
			FlowID: inst.Def.ID,
			Seq:    inst.Seq,
			Status: inst.Status,
			Loop:   inst.Loop,
			Paused: inst.Paused,
			Locals: inst.Locals,
		}
		if inst.Parent != nil {
			is.ParentUID = inst.Parent.UID
		}
		for _, h := range inst.Heads {
			is.Heads = append(is.Heads, domain.HeadSnapshot{
				ID:               h.ID,
				PC:               h.PC,
				Scores:           h.Scores,
				Groups:           h.Groups,
				PendingActionUID: h.PendingActionUID,
				PendingFlowUID:   h.PendingFlowUID,
			})
		}
		snap.Instances = append(snap.Instances, is)

		// Actions serialize with their owner's order preserved.
		for _, a := range inst.Actions {
			snap.Actions = append(snap.Actions, domain.ActionSnapshot{
				UID:       a.UID,
				Name:      a.Name,
				Arguments: a.Arguments,
				OwnerUID:  inst.UID,
				StartedAt: a.StartedAt,
			})
		}
	}
	return snap
}

// Restore rebuilds the runtime from a snapshot. Every flow id the
// snapshot references must resolve in the registry.
func (rt *Runtime) Restore(snap *domain.SessionSnapshot) error {
	rt.instances = nil
	rt.byUID = map[string]*domain.FlowInstance{}
	rt.actions = map[string]*domain.ActionInstance{}
	rt.activated = map[string]bool{}
	rt.queue = nil
	rt.intents = nil

	rt.conversation.Replace(snap.Context)
	rt.headSeq = snap.Counters.Head
	rt.instSeq = snap.Counters.Instance
	rt.creationSeq = snap.Counters.Creation
	rt.groupSeq = snap.Counters.Group
	rt.actionSeq = snap.Counters.Action
	for _, id := range snap.Activated {
		rt.activated[id] = true
	}

	for _, is := range snap.Instances {
		def, err := rt.registry.Lookup(is.FlowID)
		if err != nil {
			return fmt.Errorf("restore session %s: %w", snap.SessionID, err)
		}
		locals := is.Locals
		if locals == nil {
			locals = map[string]any{}
		}
		inst := &domain.FlowInstance{
			UID:    is.UID,
			Def:    def,
			Seq:    is.Seq,
			Status: is.Status,
			Loop:   is.Loop,
			Paused: is.Paused,
			Locals: locals,
		}
		for _, hs := range is.Heads {
			if hs.PC > len(def.Program) {
				return fmt.Errorf("restore session %s: head %d beyond program of flow %q", snap.SessionID, hs.ID, is.FlowID)
			}
			inst.Heads = append(inst.Heads, &domain.Head{
				ID:               hs.ID,
				PC:               hs.PC,
				Instance:         inst,
				Scores:           hs.Scores,
				Groups:           hs.Groups,
				PendingActionUID: hs.PendingActionUID,
				PendingFlowUID:   hs.PendingFlowUID,
			})
		}
		rt.instances = append(rt.instances, inst)
		rt.byUID[inst.UID] = inst
	}

	// Second pass: parent/child links need every instance registered.
	for _, is := range snap.Instances {
		if is.ParentUID == "" {
			continue
		}
		parent := rt.byUID[is.ParentUID]
		child := rt.byUID[is.UID]
		if parent == nil || child == nil {
			return fmt.Errorf("restore session %s: dangling parent %s", snap.SessionID, is.ParentUID)
		}
		child.Parent = parent
		parent.Children = append(parent.Children, child)
	}

	for _, as := range snap.Actions {
		owner := rt.byUID[as.OwnerUID]
		if owner == nil {
			return fmt.Errorf("restore session %s: action %s owned by unknown instance %s", snap.SessionID, as.UID, as.OwnerUID)
		}
		a := &domain.ActionInstance{
			UID:       as.UID,
			Name:      as.Name,
			Arguments: as.Arguments,
			Owner:     owner,
			StartedAt: as.StartedAt,
		}
		owner.Actions = append(owner.Actions, a)
		rt.actions[a.UID] = a
	}
	return nil
}
