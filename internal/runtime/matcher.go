package runtime

import (
	"fmt"
	"reflect"

	"github.com/aretw0/weft/pkg/domain"
)

// Match specificity scores. A match scores scoreType plus one
// per-argument increment; literal constraints outrank regex, regex
// outranks wildcard. Conflict resolution compares score histories.
const (
	scoreType     = 1.0
	scoreLiteral  = 1.0
	scoreRegex    = 0.5
	scoreWildcard = 0.1

	// scoreCompletion is recorded when a head resumes on the
	// completion of an action or child flow it started: the
	// correlation is an exact reference, literal-grade.
	scoreCompletion = scoreType + scoreLiteral
)

// matchPattern decides whether an event satisfies a pattern and, on
// match, returns the specificity score. It is a pure function: no side
// effects, idempotent for identical inputs.
func matchPattern(p *domain.EventPattern, ev domain.Event) (bool, float64) {
	if p.Type != ev.Type {
		return false, 0
	}
	score := scoreType
	for key, c := range p.Arguments {
		value, present := ev.Arguments[key]
		if !present {
			return false, 0
		}
		switch c.Kind {
		case domain.ConstraintWildcard:
			score += scoreWildcard
		case domain.ConstraintRegex:
			s, ok := value.(string)
			if !ok {
				s = fmt.Sprintf("%v", value)
			}
			if !c.Regex.MatchString(s) {
				return false, 0
			}
			score += scoreRegex
		case domain.ConstraintLiteral:
			if !equalValue(c.Literal, value) {
				return false, 0
			}
			score += scoreLiteral
		}
	}
	return true, score
}

// visibleTo applies interaction-loop scoping: events addressed to a
// loop are invisible to other loops; broadcast events (empty loop) are
// visible everywhere unless the pattern insists on its own loop.
func visibleTo(p *domain.EventPattern, ev domain.Event, instanceLoop string) bool {
	if ev.Loop != "" && ev.Loop != instanceLoop {
		return false
	}
	if p != nil && p.SameLoopOnly && ev.Loop != instanceLoop {
		return false
	}
	return true
}

// equalValue compares a pattern literal with an event value, widening
// integers so 3 matches 3.0 regardless of the decoding path.
func equalValue(a, b any) bool {
	if na, ok := asNumber(a); ok {
		nb, ok := asNumber(b)
		return ok && na == nb
	}
	return reflect.DeepEqual(a, b)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// compareScoreHistories orders two match-score histories element-wise,
// earliest match first. Returns >0 if a outranks b, <0 if b outranks a,
// 0 on a full tie (equal prefixes of equal length, or both empty).
func compareScoreHistories(a, b []float64) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	// Equal prefix: the longer history carries more matched evidence.
	switch {
	case len(a) > len(b):
		return 1
	case len(a) < len(b):
		return -1
	}
	return 0
}
