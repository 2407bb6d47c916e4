package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Wildcard is the literal an event pattern uses to accept any value for
// an argument (or to require mere presence of the key).
const Wildcard = "..."

// ConstraintKind classifies how a single pattern argument is matched.
type ConstraintKind int

const (
	ConstraintLiteral ConstraintKind = iota
	ConstraintRegex
	ConstraintWildcard
)

// Constraint matches one argument of a candidate event.
type Constraint struct {
	Kind    ConstraintKind
	Literal any
	Regex   *regexp.Regexp

	// Source is the raw spelling from the flow file, kept for error
	// messages and introspection.
	Source string
}

// ParseConstraint converts a raw pattern value into a Constraint.
// Strings of the form "/…/" compile to a regex constraint, the literal
// "..." to a wildcard; everything else matches by equality.
func ParseConstraint(raw any) (Constraint, error) {
	s, isString := raw.(string)
	if !isString {
		return Constraint{Kind: ConstraintLiteral, Literal: raw, Source: fmt.Sprintf("%v", raw)}, nil
	}
	if s == Wildcard {
		return Constraint{Kind: ConstraintWildcard, Source: s}, nil
	}
	if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(s[1 : len(s)-1])
		if err != nil {
			return Constraint{}, fmt.Errorf("invalid regex constraint %q: %w", s, err)
		}
		return Constraint{Kind: ConstraintRegex, Regex: re, Source: s}, nil
	}
	return Constraint{Kind: ConstraintLiteral, Literal: s, Source: s}, nil
}

// EventPattern is the match specification a head blocks on.
type EventPattern struct {
	// Type is the exact event type to match.
	Type string

	// Arguments constrains named event arguments. Absent keys are
	// unconstrained.
	Arguments map[string]Constraint

	// SameLoopOnly restricts matching to events addressed to the
	// head's own interaction loop (or broadcast events).
	SameLoopOnly bool
}

func (p EventPattern) String() string {
	if len(p.Arguments) == 0 {
		return p.Type
	}
	parts := make([]string, 0, len(p.Arguments))
	for k, c := range p.Arguments {
		parts = append(parts, k+"="+c.Source)
	}
	return p.Type + "(" + strings.Join(parts, ", ") + ")"
}
