// Package dsl builds flow programs in Go instead of YAML. Flows
// assembled here lower to the same document shape the YAML loader
// produces and run through the regular compiler, so they get the same
// jump resolution, expression compilation and error reporting.
//
//	def, err := dsl.Flow("greeter").Activated().Steps(
//		dsl.Send("UtteranceBot").Arg("text", "'welcome'"),
//		dsl.Match("UtteranceUserActionFinished").SaveTo("utt"),
//		dsl.Send("UtteranceBot").Arg("text", "'you said ' + utt.final_transcript"),
//	).Build()
package dsl

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/weft/internal/compiler"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// FlowBuilder accumulates one flow under construction.
type FlowBuilder struct {
	id        string
	priority  float64
	loop      string
	activated bool
	excluded  bool
	params    []map[string]any
	steps     []Step
}

// Flow starts a new flow with the given id.
func Flow(id string) *FlowBuilder { return &FlowBuilder{id: id} }

// Activated marks the flow for automatic start and restart.
func (f *FlowBuilder) Activated() *FlowBuilder {
	f.activated = true
	return f
}

// Priority sets the flow's conflict priority.
func (f *FlowBuilder) Priority(p float64) *FlowBuilder {
	f.priority = p
	return f
}

// Loop pins the flow to a named interaction loop.
func (f *FlowBuilder) Loop(loop string) *FlowBuilder {
	f.loop = loop
	return f
}

// ExcludeFromMatching hides the flow's heads from event matching.
func (f *FlowBuilder) ExcludeFromMatching() *FlowBuilder {
	f.excluded = true
	return f
}

// Parameter declares a start parameter with a default value.
func (f *FlowBuilder) Parameter(name string, def any) *FlowBuilder {
	f.params = append(f.params, map[string]any{"name": name, "default": def})
	return f
}

// Steps appends statements to the flow body.
func (f *FlowBuilder) Steps(steps ...Step) *FlowBuilder {
	f.steps = append(f.steps, steps...)
	return f
}

// Build compiles this flow alone.
func (f *FlowBuilder) Build() (*domain.FlowDefinition, error) {
	defs, err := Compile(f)
	if err != nil {
		return nil, err
	}
	return defs[0], nil
}

func (f *FlowBuilder) raw() map[string]any {
	flow := map[string]any{"id": f.id, "steps": rawSteps(f.steps)}
	if f.activated {
		flow["activated"] = true
	}
	if f.priority != 0 {
		flow["priority"] = f.priority
	}
	if f.loop != "" {
		flow["loop"] = f.loop
	}
	if f.excluded {
		flow["exclude_from_matching"] = true
	}
	if len(f.params) > 0 {
		flow["parameters"] = f.params
	}
	return flow
}

// Compile lowers the flows to a flow document and compiles it.
func Compile(flows ...*FlowBuilder) ([]*domain.FlowDefinition, error) {
	src, err := Source(flows...)
	if err != nil {
		return nil, err
	}
	return compiler.New().CompileFile(src.Name, src.Data)
}

// Source renders the flows as a loadable flow source, for hosts that
// mix built flows with YAML files in one loader.
func Source(flows ...*FlowBuilder) (ports.FlowSource, error) {
	if len(flows) == 0 {
		return ports.FlowSource{}, fmt.Errorf("no flows to build")
	}
	raws := make([]map[string]any, len(flows))
	for i, f := range flows {
		raws[i] = f.raw()
	}
	data, err := yaml.Marshal(map[string]any{"flows": raws})
	if err != nil {
		return ports.FlowSource{}, fmt.Errorf("render flows: %w", err)
	}
	return ports.FlowSource{Name: "dsl", Data: data}, nil
}
