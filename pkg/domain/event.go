package domain

import (
	"fmt"
	"time"
)

// Reserved internal event types. Flows may match on them, but only the
// runtime is allowed to emit them.
const (
	EventStartFlow      = "StartFlow"
	EventFlowStarted    = "FlowStarted"
	EventFlowFinished   = "FlowFinished"
	EventFlowFailed     = "FlowFailed"
	EventFlowAborted    = "FlowAborted"
	EventFlowPaused     = "FlowPaused"
	EventFlowResumed    = "FlowResumed"
	EventUnhandledEvent = "UnhandledEvent"
	EventContextUpdate  = "ContextUpdate"
)

// Host-facing control event types. These are accepted from the outside
// and handled by the runtime itself rather than matched against flows.
const (
	EventStopFlow   = "StopFlow"
	EventPauseFlow  = "PauseFlow"
	EventResumeFlow = "ResumeFlow"
)

// Well-known argument keys on internal control events.
const (
	ArgFlowID          = "flow_id"
	ArgFlowInstanceUID = "flow_instance_uid"
	ArgFlowParams      = "params"
	ArgSourceUID       = "source_uid"
	ArgEventType       = "event"
	ArgReason          = "reason"
)

// Event is the single wire shape everything in weft speaks: external
// stimuli, action lifecycle notifications, and internal control events.
type Event struct {
	// Type names the event, e.g. "UtteranceUserActionFinished" or
	// one of the reserved internal types above.
	Type string `json:"type"`

	// Arguments carries the named payload of the event.
	Arguments map[string]any `json:"arguments,omitempty"`

	// CorrelationID links action lifecycle events to the action
	// instance they belong to. Empty for plain events.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Loop addresses a single interaction loop. Empty means the event
	// is visible to every loop.
	Loop string `json:"loop,omitempty"`

	// Timestamp is informational; the runtime orders events by
	// arrival, never by clock.
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// NewEvent builds an event with the given type and arguments.
func NewEvent(eventType string, args map[string]any) Event {
	if args == nil {
		args = map[string]any{}
	}
	return Event{Type: eventType, Arguments: args}
}

// IsInternal reports whether the event type is one of the reserved
// runtime-control types.
func (e Event) IsInternal() bool {
	switch e.Type {
	case EventStartFlow, EventFlowStarted, EventFlowFinished, EventFlowFailed,
		EventFlowAborted, EventFlowPaused, EventFlowResumed,
		EventUnhandledEvent, EventContextUpdate:
		return true
	}
	return false
}

// ArgumentError describes a failed typed access to an event argument.
// Kind is one of the Err* sentinels below, suitable for errors.Is.
type ArgumentError struct {
	Kind  error
	Event string
	Key   string
	Want  string
	Got   any
}

func (e *ArgumentError) Error() string {
	if e.Kind == ErrMissingArgument {
		return fmt.Sprintf("event %s: missing argument %q", e.Event, e.Key)
	}
	return fmt.Sprintf("event %s: argument %q is %T, want %s", e.Event, e.Key, e.Got, e.Want)
}

func (e *ArgumentError) Unwrap() error { return e.Kind }

// StringArg returns the named argument as a string.
func (e Event) StringArg(key string) (string, error) {
	v, ok := e.Arguments[key]
	if !ok {
		return "", &ArgumentError{Kind: ErrMissingArgument, Event: e.Type, Key: key}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgumentError{Kind: ErrArgumentType, Event: e.Type, Key: key, Want: "string", Got: v}
	}
	return s, nil
}

// NumberArg returns the named argument as a float64. Integer values are
// widened; everything else is a type error.
func (e Event) NumberArg(key string) (float64, error) {
	v, ok := e.Arguments[key]
	if !ok {
		return 0, &ArgumentError{Kind: ErrMissingArgument, Event: e.Type, Key: key}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, &ArgumentError{Kind: ErrArgumentType, Event: e.Type, Key: key, Want: "number", Got: v}
}

// BoolArg returns the named argument as a bool.
func (e Event) BoolArg(key string) (bool, error) {
	v, ok := e.Arguments[key]
	if !ok {
		return false, &ArgumentError{Kind: ErrMissingArgument, Event: e.Type, Key: key}
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ArgumentError{Kind: ErrArgumentType, Event: e.Type, Key: key, Want: "bool", Got: v}
	}
	return b, nil
}

// MapArg returns the named argument as a map.
func (e Event) MapArg(key string) (map[string]any, error) {
	v, ok := e.Arguments[key]
	if !ok {
		return nil, &ArgumentError{Kind: ErrMissingArgument, Event: e.Type, Key: key}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ArgumentError{Kind: ErrArgumentType, Event: e.Type, Key: key, Want: "map", Got: v}
	}
	return m, nil
}

// Clone returns a copy of the event with its own argument map.
func (e Event) Clone() Event {
	out := e
	out.Arguments = make(map[string]any, len(e.Arguments))
	for k, v := range e.Arguments {
		out.Arguments[k] = v
	}
	return out
}
