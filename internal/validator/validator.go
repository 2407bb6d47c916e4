// Package validator runs cross-flow static checks on compiled flow
// definitions: checks the compiler cannot do file-locally, like
// verifying that start and activate statements reference flows that
// actually exist in the set.
package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

// Issue is one finding against a flow definition.
type Issue struct {
	FlowID  string
	Line    int
	Message string
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("flow %q, step %d: %s", i.FlowID, i.Line, i.Message)
	}
	return fmt.Sprintf("flow %q: %s", i.FlowID, i.Message)
}

// Validate checks the definition set and returns every issue found.
func Validate(defs []*domain.FlowDefinition) []Issue {
	known := make(map[string]bool, len(defs))
	for _, def := range defs {
		known[def.ID] = true
	}

	var issues []Issue
	report := func(def *domain.FlowDefinition, line int, format string, args ...any) {
		issues = append(issues, Issue{FlowID: def.ID, Line: line, Message: fmt.Sprintf(format, args...)})
	}

	for _, def := range defs {
		for pc, stmt := range def.Program {
			switch stmt.Op {
			case domain.OpStart, domain.OpActivate, domain.OpDeactivate:
				target := stmt.Flow.FlowID
				if !known[target] {
					report(def, stmt.Line, "%s references undefined flow %q", stmt.Op, target)
				}
				if stmt.Op == domain.OpStart && target == def.ID && !stmt.Flow.Wait {
					report(def, stmt.Line, "flow starts itself without wait; this multiplies instances every run")
				}

			case domain.OpIf, domain.OpGoto, domain.OpJoin:
				if stmt.Jump < 0 || stmt.Jump > len(def.Program) {
					report(def, stmt.Line, "%s jumps to %d, outside the program", stmt.Op, stmt.Jump)
				}

			case domain.OpFork:
				if len(stmt.Branches) < 2 {
					report(def, stmt.Line, "fork with %d branches", len(stmt.Branches))
				}
				for _, target := range stmt.Branches {
					if target <= pc || target >= len(def.Program) {
						report(def, stmt.Line, "fork branch targets %d, outside the program", target)
					}
				}
			}
		}
	}
	return issues
}

// Check is Validate folded into a single error, for CLI use.
func Check(defs []*domain.FlowDefinition) error {
	issues := Validate(defs)
	if len(issues) == 0 {
		return nil
	}
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = issue.String()
	}
	return fmt.Errorf("found %d issues:\n- %s", len(issues), strings.Join(lines, "\n- "))
}
