package domain

import "time"

// SessionSnapshot is the serializable image of a session: the context
// plus every live flow instance by program counter. Programs themselves
// are not serialized; restoring a snapshot requires the same flow
// definitions the snapshot was taken against.
type SessionSnapshot struct {
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context"`

	// Counters preserve ID monotonicity across restore.
	Counters SnapshotCounters `json:"counters"`

	// Activated lists flow IDs currently marked for auto-restart.
	Activated []string `json:"activated,omitempty"`

	Instances []InstanceSnapshot `json:"instances,omitempty"`
	Actions   []ActionSnapshot   `json:"actions,omitempty"`

	TakenAt time.Time `json:"taken_at"`
}

// SnapshotCounters preserves the runtime's ID generators so restored
// sessions keep minting unique, monotonic identifiers.
type SnapshotCounters struct {
	Head     uint64 `json:"head"`
	Instance uint64 `json:"instance"`
	Creation uint64 `json:"creation"`
	Group    uint64 `json:"group"`
	Action   uint64 `json:"action"`
}

// InstanceSnapshot captures one live flow instance.
type InstanceSnapshot struct {
	UID       string             `json:"uid"`
	FlowID    string             `json:"flow_id"`
	ParentUID string             `json:"parent_uid,omitempty"`
	Seq       uint64             `json:"seq"`
	Status    FlowInstanceStatus `json:"status"`
	Loop      string             `json:"loop"`
	Paused    bool               `json:"paused,omitempty"`
	Locals    map[string]any     `json:"locals,omitempty"`
	Heads     []HeadSnapshot     `json:"heads,omitempty"`
}

// HeadSnapshot captures one head position.
type HeadSnapshot struct {
	ID               uint64    `json:"id"`
	PC               int       `json:"pc"`
	Scores           []float64 `json:"scores,omitempty"`
	Groups           []uint64  `json:"groups,omitempty"`
	PendingActionUID string    `json:"pending_action_uid,omitempty"`
	PendingFlowUID   string    `json:"pending_flow_uid,omitempty"`
}

// ActionSnapshot captures one outstanding action.
type ActionSnapshot struct {
	UID       string         `json:"uid"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	OwnerUID  string         `json:"owner_uid"`
	StartedAt time.Time      `json:"started_at"`
}
