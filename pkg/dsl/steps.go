package dsl

// Step is one flow statement under construction.
type Step interface {
	raw() map[string]any
}

func rawSteps(steps []Step) []map[string]any {
	out := make([]map[string]any, len(steps))
	for i, s := range steps {
		out[i] = s.raw()
	}
	return out
}

// MatchStep blocks the flow until an event matching the pattern
// arrives. Constraints follow the document syntax: "..." matches any
// present value and "/re/" matches by regular expression.
type MatchStep struct {
	eventType string
	args      map[string]any
	saveTo    string
	sameLoop  bool
}

// Match waits for an event of the given type.
func Match(eventType string) *MatchStep {
	return &MatchStep{eventType: eventType}
}

// Where constrains an event argument.
func (s *MatchStep) Where(key string, constraint any) *MatchStep {
	if s.args == nil {
		s.args = map[string]any{}
	}
	s.args[key] = constraint
	return s
}

// SaveTo binds the matched event's arguments to a local variable.
func (s *MatchStep) SaveTo(variable string) *MatchStep {
	s.saveTo = variable
	return s
}

// SameLoopOnly restricts the match to events addressed to this flow's
// loop.
func (s *MatchStep) SameLoopOnly() *MatchStep {
	s.sameLoop = true
	return s
}

func (s *MatchStep) raw() map[string]any {
	body := map[string]any{"type": s.eventType}
	if len(s.args) > 0 {
		body["arguments"] = s.args
	}
	if s.saveTo != "" {
		body["save_to"] = s.saveTo
	}
	if s.sameLoop {
		body["same_loop_only"] = true
	}
	return map[string]any{"match": body}
}

// SendStep starts an action. Argument values are expressions evaluated
// against the flow's scope when the statement runs.
type SendStep struct {
	action  string
	channel string
	saveTo  string
	args    map[string]string
}

// Send starts the named action.
func Send(action string) *SendStep {
	return &SendStep{action: action}
}

// Arg adds an action argument expression.
func (s *SendStep) Arg(key, expr string) *SendStep {
	if s.args == nil {
		s.args = map[string]string{}
	}
	s.args[key] = expr
	return s
}

// Channel overrides the conflict channel the action competes on.
func (s *SendStep) Channel(channel string) *SendStep {
	s.channel = channel
	return s
}

// SaveTo binds the action's return value to a local variable. The flow
// blocks until the action finishes.
func (s *SendStep) SaveTo(variable string) *SendStep {
	s.saveTo = variable
	return s
}

func (s *SendStep) raw() map[string]any {
	body := map[string]any{"action": s.action}
	if s.channel != "" {
		body["channel"] = s.channel
	}
	if len(s.args) > 0 {
		body["arguments"] = s.args
	}
	if s.saveTo != "" {
		body["save_to"] = s.saveTo
	}
	return map[string]any{"send": body}
}

// AssignStep evaluates an expression into a variable.
type AssignStep struct {
	variable string
	expr     string
	scope    string
}

// Assign sets a local variable to the value of the expression.
func Assign(variable, expr string) *AssignStep {
	return &AssignStep{variable: variable, expr: expr}
}

// Context writes to the shared conversation context instead of the
// flow's locals.
func (s *AssignStep) Context() *AssignStep {
	s.scope = "context"
	return s
}

func (s *AssignStep) raw() map[string]any {
	body := map[string]any{"var": s.variable, "expr": s.expr}
	if s.scope != "" {
		body["scope"] = s.scope
	}
	return map[string]any{"assign": body}
}

// IfStep branches on a condition.
type IfStep struct {
	cond string
	then []Step
	els  []Step
}

// If runs the steps when the condition evaluates truthy.
func If(cond string, then ...Step) *IfStep {
	return &IfStep{cond: cond, then: then}
}

// Else runs the steps when the condition evaluates falsy.
func (s *IfStep) Else(steps ...Step) *IfStep {
	s.els = steps
	return s
}

func (s *IfStep) raw() map[string]any {
	body := map[string]any{"cond": s.cond, "then": rawSteps(s.then)}
	if len(s.els) > 0 {
		body["else"] = rawSteps(s.els)
	}
	return map[string]any{"if": body}
}

// WhileStep repeats its body while the condition holds.
type WhileStep struct {
	cond string
	do   []Step
}

// While repeats the steps while the condition evaluates truthy.
func While(cond string, do ...Step) *WhileStep {
	return &WhileStep{cond: cond, do: do}
}

func (s *WhileStep) raw() map[string]any {
	return map[string]any{"while": map[string]any{"cond": s.cond, "do": rawSteps(s.do)}}
}

// BranchSteps is one arm of a When race.
type BranchSteps struct {
	steps []Step
}

// Branch groups the steps of one When arm.
func Branch(steps ...Step) *BranchSteps {
	return &BranchSteps{steps: steps}
}

// WhenStep races branches: the first branch to advance wins and the
// others are dropped.
type WhenStep struct {
	branches []*BranchSteps
}

// When races at least two branches against each other.
func When(branches ...*BranchSteps) *WhenStep {
	return &WhenStep{branches: branches}
}

func (s *WhenStep) raw() map[string]any {
	arms := make([]map[string]any, len(s.branches))
	for i, b := range s.branches {
		arms[i] = map[string]any{"steps": rawSteps(b.steps)}
	}
	return map[string]any{"when": arms}
}

// StartStep starts another flow.
type StartStep struct {
	flow string
	wait bool
	args map[string]string
}

// Start launches an instance of the named flow.
func Start(flow string) *StartStep {
	return &StartStep{flow: flow}
}

// Wait blocks the caller until the started flow finishes.
func (s *StartStep) Wait() *StartStep {
	s.wait = true
	return s
}

// Arg passes a parameter expression to the started flow.
func (s *StartStep) Arg(key, expr string) *StartStep {
	if s.args == nil {
		s.args = map[string]string{}
	}
	s.args[key] = expr
	return s
}

func (s *StartStep) raw() map[string]any {
	body := map[string]any{"flow": s.flow}
	if s.wait {
		body["wait"] = true
	}
	if len(s.args) > 0 {
		body["arguments"] = s.args
	}
	return map[string]any{"start": body}
}

// ActivateStep marks a flow for auto-restart and starts it.
type ActivateStep struct {
	flow string
	args map[string]string
}

// Activate marks the named flow as activated.
func Activate(flow string) *ActivateStep {
	return &ActivateStep{flow: flow}
}

// Arg passes a parameter expression used on every (re)start.
func (s *ActivateStep) Arg(key, expr string) *ActivateStep {
	if s.args == nil {
		s.args = map[string]string{}
	}
	s.args[key] = expr
	return s
}

func (s *ActivateStep) raw() map[string]any {
	if len(s.args) == 0 {
		return map[string]any{"activate": s.flow}
	}
	return map[string]any{"activate": map[string]any{"flow": s.flow, "arguments": s.args}}
}

type deactivateStep struct {
	flow string
}

// Deactivate clears a flow's auto-restart mark.
func Deactivate(flow string) Step {
	return deactivateStep{flow: flow}
}

func (s deactivateStep) raw() map[string]any {
	return map[string]any{"deactivate": s.flow}
}

type generateStep struct {
	variable     string
	instructions string
}

// Generate asks the LLM-backed GenerateValue action for a value and
// binds the result. Instructions is an expression.
func Generate(variable, instructions string) Step {
	return generateStep{variable: variable, instructions: instructions}
}

func (s generateStep) raw() map[string]any {
	return map[string]any{"generate": map[string]any{"var": s.variable, "instructions": s.instructions}}
}

type logStep struct {
	message string
}

// Log emits a log line; message is an expression.
func Log(message string) Step {
	return logStep{message: message}
}

func (s logStep) raw() map[string]any {
	return map[string]any{"log": map[string]any{"message": s.message}}
}

type returnStep struct{}

// Return finishes the flow early.
func Return() Step { return returnStep{} }

func (returnStep) raw() map[string]any {
	return map[string]any{"return": map[string]any{}}
}

type abortStep struct{}

// Abort tears the flow down without a completion event.
func Abort() Step { return abortStep{} }

func (abortStep) raw() map[string]any {
	return map[string]any{"abort": map[string]any{}}
}
