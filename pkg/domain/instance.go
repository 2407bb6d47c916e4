package domain

// FlowInstanceStatus is the lifecycle state of a running flow.
//
// The legal transitions are:
//
//	starting → running ⇄ blocked → finished | aborted | failed
//
// blocked → running only happens through a successful match or an
// action/flow completion.
type FlowInstanceStatus string

const (
	StatusStarting FlowInstanceStatus = "starting"
	StatusRunning  FlowInstanceStatus = "running"
	StatusBlocked  FlowInstanceStatus = "blocked"
	StatusFinished FlowInstanceStatus = "finished"
	StatusAborted  FlowInstanceStatus = "aborted"
	StatusFailed   FlowInstanceStatus = "failed"
)

// Terminal reports whether the status is final.
func (s FlowInstanceStatus) Terminal() bool {
	return s == StatusFinished || s == StatusAborted || s == StatusFailed
}

// Head is an execution cursor within a flow instance. A head is at all
// times either sliding (executing non-blocking statements) or blocked
// at exactly one match or action-send statement.
type Head struct {
	// ID is unique within the session and monotonic in creation
	// order, which makes head iteration deterministic.
	ID uint64

	// PC indexes the owning definition's Program.
	PC int

	Instance *FlowInstance `json:"-"`

	// Scores is the ordered history of match scores, earliest first.
	// Conflict resolution compares histories element-wise.
	Scores []float64

	// Groups is the stack of fork race groups the head belongs to,
	// outermost first. The first head of a group to be resumed wins
	// the race; every other head sharing one of its groups is
	// cancelled. Empty means the head is not racing.
	Groups []uint64

	// PendingActionUID is set while the head awaits an action it
	// started; PendingFlowUID while it awaits a child flow.
	PendingActionUID string
	PendingFlowUID   string
}

// Blocked reports whether the head is parked at a blocking statement.
func (h *Head) Blocked() bool {
	if h.PendingActionUID != "" || h.PendingFlowUID != "" {
		return true
	}
	if h.Instance == nil || h.PC >= len(h.Instance.Def.Program) {
		return false
	}
	return h.Instance.Def.Program[h.PC].Op == OpMatch
}

// FlowInstance is one execution of a FlowDefinition.
type FlowInstance struct {
	UID string
	Def *FlowDefinition `json:"-"`

	// Parent owns this instance's lifetime unless the instance was
	// detached via activation.
	Parent *FlowInstance `json:"-"`

	// Seq is the session-wide creation order; it fixes iteration order
	// so processing is deterministic.
	Seq uint64

	Status FlowInstanceStatus
	Loop   string
	Paused bool

	// Locals holds the flow-local bindings, including parameters.
	// Shared by all heads of the instance.
	Locals map[string]any

	// Heads are the live cursors, ordered by creation.
	Heads []*Head

	// Children are owned child instances, aborted when this instance
	// reaches a terminal state.
	Children []*FlowInstance `json:"-"`

	// Actions are the outstanding actions this instance started,
	// ordered by start. Stopping the instance stops all of them.
	Actions []*ActionInstance
}

// Live reports whether the instance still participates in matching.
func (i *FlowInstance) Live() bool {
	return !i.Status.Terminal()
}

// RemoveHead drops a head from the instance, preserving order.
func (i *FlowInstance) RemoveHead(h *Head) {
	for n, other := range i.Heads {
		if other == h {
			i.Heads = append(i.Heads[:n], i.Heads[n+1:]...)
			return
		}
	}
}

// RemoveAction drops a completed or stopped action.
func (i *FlowInstance) RemoveAction(a *ActionInstance) {
	for n, other := range i.Actions {
		if other == a {
			i.Actions = append(i.Actions[:n], i.Actions[n+1:]...)
			return
		}
	}
}

// RemoveChild detaches a terminated child instance.
func (i *FlowInstance) RemoveChild(c *FlowInstance) {
	for n, other := range i.Children {
		if other == c {
			i.Children = append(i.Children[:n], i.Children[n+1:]...)
			return
		}
	}
}
