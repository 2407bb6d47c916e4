package domain

import "context"

// FlowEvent describes a flow lifecycle transition for observers.
type FlowEvent struct {
	FlowID      string
	InstanceUID string
	Loop        string
	Status      FlowInstanceStatus
	Reason      string
}

// ActionEvent describes an action lifecycle transition for observers.
type ActionEvent struct {
	ActionName  string
	ActionUID   string
	InstanceUID string
	Loop        string
	Arguments   map[string]any
}

// ConflictEvent describes a resolved action-send conflict.
type ConflictEvent struct {
	Loop    string
	Channel string
	Winner  string   // winning flow instance UID
	Losers  []string // aborted flow instance UIDs
}

// LifecycleHooks are optional observability callbacks. Hooks run
// synchronously inside the processing cycle and must not feed events
// back into the session.
type LifecycleHooks struct {
	OnFlowStarted      func(context.Context, *FlowEvent)
	OnFlowFinished     func(context.Context, *FlowEvent)
	OnFlowAborted      func(context.Context, *FlowEvent)
	OnFlowFailed       func(context.Context, *FlowEvent)
	OnActionStarted    func(context.Context, *ActionEvent)
	OnActionStopped    func(context.Context, *ActionEvent)
	OnConflict         func(context.Context, *ConflictEvent)
	OnUnhandledEvent   func(context.Context, Event)
	OnContextWriteRace func(context.Context, *WriteRaceError)
}
