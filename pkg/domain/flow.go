package domain

// DefaultLoop is the interaction loop flows belong to unless they
// declare another one.
const DefaultLoop = "main"

// Expr is a compiled expression. The compiler backs it with an
// ECMAScript program; tests may provide literals. Eval must be free of
// side effects on the scope.
type Expr interface {
	Eval(scope map[string]any) (any, error)
	Source() string
}

// Parameter declares a flow parameter and its default value.
type Parameter struct {
	Name    string
	Default any
}

// OpCode enumerates the compiled statement kinds.
type OpCode int

const (
	// OpAssign evaluates Expr and binds the result to Target.
	OpAssign OpCode = iota
	// OpIf evaluates Cond; on false, jumps to Jump.
	OpIf
	// OpGoto jumps unconditionally to Jump.
	OpGoto
	// OpMatch blocks the head until Pattern matches an event.
	OpMatch
	// OpSend registers an action-send intent; once the intent wins
	// conflict resolution the head blocks until the action finishes.
	OpSend
	// OpStart starts a child flow instance; with Flow.Wait the head
	// blocks until the child reaches a terminal state.
	OpStart
	// OpFork spawns one child head per entry in Branches. The first
	// branch head to be resumed wins; its siblings are cancelled.
	OpFork
	// OpJoin marks a fork branch exit: it resolves the branch's race
	// in favor of this head and jumps to Jump.
	OpJoin
	// OpActivate marks a flow definition as activated and starts an
	// instance if none is live.
	OpActivate
	// OpDeactivate clears the activation mark; running instances are
	// unaffected but will not restart.
	OpDeactivate
	// OpAbort aborts the head's own flow instance.
	OpAbort
	// OpLog emits a structured log line from the flow.
	OpLog
	// OpReturn finishes the flow instance.
	OpReturn
)

func (op OpCode) String() string {
	switch op {
	case OpAssign:
		return "assign"
	case OpIf:
		return "if"
	case OpGoto:
		return "goto"
	case OpMatch:
		return "match"
	case OpSend:
		return "send"
	case OpStart:
		return "start"
	case OpFork:
		return "fork"
	case OpJoin:
		return "join"
	case OpActivate:
		return "activate"
	case OpDeactivate:
		return "deactivate"
	case OpAbort:
		return "abort"
	case OpLog:
		return "log"
	case OpReturn:
		return "return"
	}
	return "unknown"
}

// VarScope distinguishes flow-local bindings from the shared
// conversation context.
type VarScope int

const (
	ScopeLocal VarScope = iota
	ScopeContext
)

// ActionSpec describes an action-send statement.
type ActionSpec struct {
	// Name is the bare action name, e.g. "UtteranceBot". The runtime
	// derives Start/Stop/Finished event types from it.
	Name string

	// Arguments are evaluated against the head's scope when the send
	// intent is registered.
	Arguments map[string]Expr

	// Channel groups actions that would conflict if emitted in the
	// same processing cycle. Defaults to Name.
	Channel string
}

// ConflictChannel returns the channel the action competes on.
func (a ActionSpec) ConflictChannel() string {
	if a.Channel != "" {
		return a.Channel
	}
	return a.Name
}

// FlowRef describes a start/activate statement's target flow.
type FlowRef struct {
	FlowID    string
	Arguments map[string]Expr

	// Wait makes the starting head block until the child instance
	// reaches a terminal state (OpStart only).
	Wait bool
}

// Statement is one instruction of a compiled flow program. Programs are
// flat and head-addressable: a head's position is an index into the
// program slice.
type Statement struct {
	Op OpCode

	// OpAssign
	Target string
	Scope  VarScope

	// OpAssign (value), OpIf (condition), OpLog (message).
	Expr Expr

	// OpIf (false target), OpGoto.
	Jump int

	// OpMatch
	Pattern *EventPattern

	// OpSend
	Action *ActionSpec

	// OpStart, OpActivate, OpDeactivate
	Flow *FlowRef

	// OpFork
	Branches []int

	// Line is the source line in the flow file, for diagnostics.
	Line int
}

// FlowDefinition is a compiled flow program plus its metadata.
type FlowDefinition struct {
	// ID is the flow's unique name within the registry.
	ID string

	Parameters []Parameter
	Program    []Statement

	// Priority breaks conflict-resolution ties between heads with
	// equal match-score histories. Higher wins.
	Priority float64

	// Loop is the interaction loop the flow's instances run in.
	Loop string

	// Activated flows are started at session bootstrap and restarted
	// with a fresh instance whenever they reach a terminal state.
	Activated bool

	// ExcludeFromMatching hides the flow's heads from event matching:
	// instances advance only on completions of actions or child flows
	// they started (used by meta/diagnostic flows).
	ExcludeFromMatching bool
}

// LoopID returns the flow's interaction loop, defaulting to DefaultLoop.
func (d *FlowDefinition) LoopID() string {
	if d.Loop == "" {
		return DefaultLoop
	}
	return d.Loop
}
