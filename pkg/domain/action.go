package domain

import (
	"strings"
	"time"
)

// Action lifecycle event naming. Every action is the pair
// Start<Name>Action → <Name>ActionFinished, with Stop<Name>Action as
// the cancellation request in between. The engine is agnostic to what
// executes an action; hosts watch for Start events and feed Finished
// events back in.
const (
	actionStartPrefix   = "Start"
	actionStopPrefix    = "Stop"
	actionSuffix        = "Action"
	actionFinishedSufix = "ActionFinished"
	actionStartedSuffix = "ActionStarted"
)

// StartEventType returns the Start event type for an action name.
func StartEventType(action string) string { return actionStartPrefix + action + actionSuffix }

// StopEventType returns the Stop event type for an action name.
func StopEventType(action string) string { return actionStopPrefix + action + actionSuffix }

// StartedEventType returns the acknowledgement event type for an action name.
func StartedEventType(action string) string { return action + actionStartedSuffix }

// FinishedEventType returns the completion event type for an action name.
func FinishedEventType(action string) string { return action + actionFinishedSufix }

// ActionNameFromStart extracts the action name from a Start event type.
// The second return is false if the type is not a Start event.
func ActionNameFromStart(eventType string) (string, bool) {
	if !strings.HasPrefix(eventType, actionStartPrefix) || !strings.HasSuffix(eventType, actionSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(eventType, actionStartPrefix), actionSuffix)
	if name == "" {
		return "", false
	}
	return name, true
}

// ActionNameFromStop extracts the action name from a Stop event type.
func ActionNameFromStop(eventType string) (string, bool) {
	if !strings.HasPrefix(eventType, actionStopPrefix) || !strings.HasSuffix(eventType, actionSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(eventType, actionStopPrefix), actionSuffix)
	if name == "" {
		return "", false
	}
	return name, true
}

// IsFinishedEvent reports whether the event type is an action
// completion and returns the action name.
func IsFinishedEvent(eventType string) (string, bool) {
	if !strings.HasSuffix(eventType, actionFinishedSufix) {
		return "", false
	}
	name := strings.TrimSuffix(eventType, actionFinishedSufix)
	if name == "" {
		return "", false
	}
	return name, true
}

// Action completion statuses carried in the "status" argument of
// Finished events.
const (
	ActionStatusSuccess = "success"
	ActionStatusFailure = "failure"
	ActionStatusStopped = "stopped"
)

// ActionInstance is one outstanding started action: the pairing of a
// Start event with its eventual Finished event.
type ActionInstance struct {
	// UID correlates the Start, Stop and Finished events.
	UID string

	// Name is the bare action name, e.g. "Timer".
	Name string

	Arguments map[string]any

	// Owner is the flow instance that issued the start. Stopping the
	// owner stops the action.
	Owner *FlowInstance `json:"-"`

	StartedAt time.Time
}

// StartEvent builds the externally visible Start event for the action.
func (a *ActionInstance) StartEvent(loop string) Event {
	args := make(map[string]any, len(a.Arguments))
	for k, v := range a.Arguments {
		args[k] = v
	}
	return Event{
		Type:          StartEventType(a.Name),
		Arguments:     args,
		CorrelationID: a.UID,
		Loop:          loop,
	}
}

// StopEvent builds the externally visible Stop event for the action.
func (a *ActionInstance) StopEvent(loop string) Event {
	return Event{
		Type:          StopEventType(a.Name),
		Arguments:     map[string]any{},
		CorrelationID: a.UID,
		Loop:          loop,
	}
}
