// Package compiler turns YAML flow documents into compiled
// FlowDefinitions: flat statement programs with resolved jump targets,
// parsed event patterns and precompiled expressions.
package compiler

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Compiler compiles flow sources.
type Compiler struct{}

// New creates a compiler.
func New() *Compiler { return &Compiler{} }

// CompileSources compiles every flow from every source, in order.
func (c *Compiler) CompileSources(srcs []ports.FlowSource) ([]*domain.FlowDefinition, error) {
	var defs []*domain.FlowDefinition
	seen := map[string]string{}
	for _, src := range srcs {
		fileDefs, err := c.CompileFile(src.Name, src.Data)
		if err != nil {
			return nil, err
		}
		for _, def := range fileDefs {
			if prev, dup := seen[def.ID]; dup {
				return nil, fmt.Errorf("%s: flow %q already defined in %s", src.Name, def.ID, prev)
			}
			seen[def.ID] = src.Name
			defs = append(defs, def)
		}
	}
	return defs, nil
}

// CompileFile compiles one YAML document holding a `flows:` list.
func (c *Compiler) CompileFile(name string, data []byte) ([]*domain.FlowDefinition, error) {
	var file flowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(file.Flows) == 0 {
		return nil, fmt.Errorf("%s: no flows defined", name)
	}

	defs := make([]*domain.FlowDefinition, 0, len(file.Flows))
	for _, raw := range file.Flows {
		def, err := c.compileFlow(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (c *Compiler) compileFlow(raw rawFlow) (*domain.FlowDefinition, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("flow without id")
	}

	def := &domain.FlowDefinition{
		ID:                  raw.ID,
		Priority:            raw.Priority,
		Loop:                raw.Loop,
		Activated:           raw.Activated,
		ExcludeFromMatching: raw.ExcludeFromMatching,
	}
	for _, p := range raw.Parameters {
		if p.Name == "" {
			return nil, fmt.Errorf("flow %q: parameter without name", raw.ID)
		}
		def.Parameters = append(def.Parameters, domain.Parameter{Name: p.Name, Default: p.Default})
	}

	b := &builder{flowID: raw.ID}
	if err := b.compileSteps(raw.Steps); err != nil {
		return nil, err
	}
	b.emit(domain.Statement{Op: domain.OpReturn})
	def.Program = b.stmts
	return def, nil
}

// builder accumulates the flat program and resolves jumps as it goes.
type builder struct {
	flowID string
	stmts  []domain.Statement
	step   int
}

func (b *builder) emit(s domain.Statement) int {
	s.Line = b.step
	b.stmts = append(b.stmts, s)
	return len(b.stmts) - 1
}

func (b *builder) errf(format string, args ...any) error {
	return fmt.Errorf("flow %q: step %d: %s", b.flowID, b.step, fmt.Sprintf(format, args...))
}

func (b *builder) compileSteps(steps []rawStep) error {
	for _, step := range steps {
		b.step++
		if len(step) != 1 {
			return b.errf("step must have exactly one key, got %d", len(step))
		}
		var kind string
		var value any
		for k, v := range step {
			kind, value = k, v
		}
		if err := b.compileStep(kind, value); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) compileStep(kind string, value any) error {
	switch kind {
	case "match":
		return b.compileMatch(value)
	case "send":
		return b.compileSend(value)
	case "assign":
		return b.compileAssign(value)
	case "if":
		return b.compileIf(value)
	case "while":
		return b.compileWhile(value)
	case "when":
		return b.compileWhen(value)
	case "start":
		return b.compileStart(value)
	case "activate":
		return b.compileActivate(value)
	case "deactivate":
		return b.compileDeactivate(value)
	case "generate":
		return b.compileGenerate(value)
	case "abort":
		b.emit(domain.Statement{Op: domain.OpAbort})
		return nil
	case "log":
		return b.compileLog(value)
	case "return":
		b.emit(domain.Statement{Op: domain.OpReturn})
		return nil
	}
	return b.errf("unknown step kind %q", kind)
}

func (b *builder) decode(value any, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      dst,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(value); err != nil {
		return b.errf("%v", err)
	}
	return nil
}

func (b *builder) compileMatch(value any) error {
	var step matchStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	if step.Type == "" {
		return b.errf("match without event type")
	}
	pattern := &domain.EventPattern{
		Type:         step.Type,
		SameLoopOnly: step.SameLoopOnly,
	}
	if len(step.Arguments) > 0 {
		pattern.Arguments = make(map[string]domain.Constraint, len(step.Arguments))
		for key, raw := range step.Arguments {
			c, err := domain.ParseConstraint(raw)
			if err != nil {
				return b.errf("match argument %q: %v", key, err)
			}
			pattern.Arguments[key] = c
		}
	}
	b.emit(domain.Statement{Op: domain.OpMatch, Pattern: pattern, Target: step.SaveTo})
	return nil
}

func (b *builder) compileSend(value any) error {
	var step sendStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	if step.Action == "" {
		return b.errf("send without action name")
	}
	args, err := b.compileArgs(step.Arguments)
	if err != nil {
		return err
	}
	b.emit(domain.Statement{Op: domain.OpSend, Target: step.SaveTo, Action: &domain.ActionSpec{
		Name:      step.Action,
		Channel:   step.Channel,
		Arguments: args,
	}})
	return nil
}

// compileGenerate lowers the instruction/generation operator to a send
// of the LLM-backed GenerateValue action with the result bound back.
func (b *builder) compileGenerate(value any) error {
	var step generateStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	if step.Var == "" {
		return b.errf("generate without var")
	}
	expr, err := CompileExpr(step.Instructions)
	if err != nil {
		return b.errf("%v", err)
	}
	b.emit(domain.Statement{Op: domain.OpSend, Target: step.Var, Action: &domain.ActionSpec{
		Name:      "GenerateValue",
		Arguments: map[string]domain.Expr{"instructions": expr},
	}})
	return nil
}

func (b *builder) compileAssign(value any) error {
	var step assignStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	if step.Var == "" {
		return b.errf("assign without var")
	}
	expr, err := CompileExpr(step.Expr)
	if err != nil {
		return b.errf("%v", err)
	}
	scope := domain.ScopeLocal
	switch step.Scope {
	case "", "local":
	case "context":
		scope = domain.ScopeContext
	default:
		return b.errf("unknown scope %q (want local or context)", step.Scope)
	}
	b.emit(domain.Statement{Op: domain.OpAssign, Target: step.Var, Scope: scope, Expr: expr})
	return nil
}

func (b *builder) compileIf(value any) error {
	var step ifStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	cond, err := CompileExpr(step.Cond)
	if err != nil {
		return b.errf("%v", err)
	}

	ifIdx := b.emit(domain.Statement{Op: domain.OpIf, Expr: cond})
	if err := b.compileSteps(step.Then); err != nil {
		return err
	}
	if len(step.Else) == 0 {
		b.stmts[ifIdx].Jump = len(b.stmts)
		return nil
	}

	gotoIdx := b.emit(domain.Statement{Op: domain.OpGoto})
	b.stmts[ifIdx].Jump = len(b.stmts)
	if err := b.compileSteps(step.Else); err != nil {
		return err
	}
	b.stmts[gotoIdx].Jump = len(b.stmts)
	return nil
}

func (b *builder) compileWhile(value any) error {
	var step whileStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	cond, err := CompileExpr(step.Cond)
	if err != nil {
		return b.errf("%v", err)
	}

	// Loop re-entry re-checks the condition each cycle.
	condIdx := b.emit(domain.Statement{Op: domain.OpIf, Expr: cond})
	if err := b.compileSteps(step.Do); err != nil {
		return err
	}
	b.emit(domain.Statement{Op: domain.OpGoto, Jump: condIdx})
	b.stmts[condIdx].Jump = len(b.stmts)
	return nil
}

func (b *builder) compileWhen(value any) error {
	var branches []whenBranch
	if err := b.decode(value, &branches); err != nil {
		return err
	}
	if len(branches) < 2 {
		return b.errf("when needs at least two branches")
	}

	forkIdx := b.emit(domain.Statement{Op: domain.OpFork})
	targets := make([]int, 0, len(branches))
	var exits []int
	for _, branch := range branches {
		targets = append(targets, len(b.stmts))
		if err := b.compileSteps(branch.Steps); err != nil {
			return err
		}
		exits = append(exits, b.emit(domain.Statement{Op: domain.OpJoin}))
	}

	join := len(b.stmts)
	b.stmts[forkIdx].Branches = targets
	for _, exit := range exits {
		b.stmts[exit].Jump = join
	}
	return nil
}

func (b *builder) compileStart(value any) error {
	var step startStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	if step.Flow == "" {
		return b.errf("start without flow")
	}
	args, err := b.compileArgs(step.Arguments)
	if err != nil {
		return err
	}
	b.emit(domain.Statement{Op: domain.OpStart, Flow: &domain.FlowRef{
		FlowID:    step.Flow,
		Wait:      step.Wait,
		Arguments: args,
	}})
	return nil
}

func (b *builder) compileActivate(value any) error {
	// Shorthand `activate: flow name` is allowed.
	if name, ok := value.(string); ok {
		b.emit(domain.Statement{Op: domain.OpActivate, Flow: &domain.FlowRef{FlowID: name}})
		return nil
	}
	var step activateStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	if step.Flow == "" {
		return b.errf("activate without flow")
	}
	args, err := b.compileArgs(step.Arguments)
	if err != nil {
		return err
	}
	b.emit(domain.Statement{Op: domain.OpActivate, Flow: &domain.FlowRef{FlowID: step.Flow, Arguments: args}})
	return nil
}

func (b *builder) compileDeactivate(value any) error {
	if name, ok := value.(string); ok {
		b.emit(domain.Statement{Op: domain.OpDeactivate, Flow: &domain.FlowRef{FlowID: name}})
		return nil
	}
	var step deactivateStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	if step.Flow == "" {
		return b.errf("deactivate without flow")
	}
	b.emit(domain.Statement{Op: domain.OpDeactivate, Flow: &domain.FlowRef{FlowID: step.Flow}})
	return nil
}

func (b *builder) compileLog(value any) error {
	var step logStep
	if err := b.decode(value, &step); err != nil {
		return err
	}
	expr, err := CompileExpr(step.Message)
	if err != nil {
		return b.errf("%v", err)
	}
	b.emit(domain.Statement{Op: domain.OpLog, Expr: expr})
	return nil
}

func (b *builder) compileArgs(raw map[string]string) (map[string]domain.Expr, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	args := make(map[string]domain.Expr, len(raw))
	for key, src := range raw {
		expr, err := CompileExpr(src)
		if err != nil {
			return nil, b.errf("argument %q: %v", key, err)
		}
		args[key] = expr
	}
	return args, nil
}
