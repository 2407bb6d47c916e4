package runtime

import (
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constraint(t *testing.T, raw any) domain.Constraint {
	t.Helper()
	c, err := domain.ParseConstraint(raw)
	require.NoError(t, err)
	return c
}

func pattern(t *testing.T, eventType string, args map[string]any) *domain.EventPattern {
	t.Helper()
	p := &domain.EventPattern{Type: eventType}
	if len(args) > 0 {
		p.Arguments = make(map[string]domain.Constraint, len(args))
		for k, raw := range args {
			p.Arguments[k] = constraint(t, raw)
		}
	}
	return p
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name      string
		pattern   *domain.EventPattern
		event     domain.Event
		wantMatch bool
		wantScore float64
	}{
		{
			name:      "type only",
			pattern:   pattern(t, "Ping", nil),
			event:     domain.NewEvent("Ping", nil),
			wantMatch: true,
			wantScore: scoreType,
		},
		{
			name:      "type mismatch",
			pattern:   pattern(t, "Ping", nil),
			event:     domain.NewEvent("Pong", nil),
			wantMatch: false,
		},
		{
			name:      "literal constraint",
			pattern:   pattern(t, "Ping", map[string]any{"k": "v"}),
			event:     domain.NewEvent("Ping", map[string]any{"k": "v"}),
			wantMatch: true,
			wantScore: scoreType + scoreLiteral,
		},
		{
			name:      "literal mismatch",
			pattern:   pattern(t, "Ping", map[string]any{"k": "v"}),
			event:     domain.NewEvent("Ping", map[string]any{"k": "other"}),
			wantMatch: false,
		},
		{
			name:      "literal numeric widening",
			pattern:   pattern(t, "Ping", map[string]any{"n": 3}),
			event:     domain.NewEvent("Ping", map[string]any{"n": 3.0}),
			wantMatch: true,
			wantScore: scoreType + scoreLiteral,
		},
		{
			name:      "regex constraint",
			pattern:   pattern(t, "Ping", map[string]any{"text": "/^h(ello|i)$/"}),
			event:     domain.NewEvent("Ping", map[string]any{"text": "hi"}),
			wantMatch: true,
			wantScore: scoreType + scoreRegex,
		},
		{
			name:      "regex mismatch",
			pattern:   pattern(t, "Ping", map[string]any{"text": "/^h(ello|i)$/"}),
			event:     domain.NewEvent("Ping", map[string]any{"text": "bye"}),
			wantMatch: false,
		},
		{
			name:      "regex over non-string value",
			pattern:   pattern(t, "Ping", map[string]any{"code": "/^4\\d\\d$/"}),
			event:     domain.NewEvent("Ping", map[string]any{"code": 404}),
			wantMatch: true,
			wantScore: scoreType + scoreRegex,
		},
		{
			name:      "wildcard requires presence",
			pattern:   pattern(t, "Ping", map[string]any{"k": "..."}),
			event:     domain.NewEvent("Ping", map[string]any{"k": 42}),
			wantMatch: true,
			wantScore: scoreType + scoreWildcard,
		},
		{
			name:      "missing key fails even for wildcard",
			pattern:   pattern(t, "Ping", map[string]any{"k": "..."}),
			event:     domain.NewEvent("Ping", nil),
			wantMatch: false,
		},
		{
			name: "constraints accumulate",
			pattern: pattern(t, "Ping", map[string]any{
				"exact": "yes",
				"any":   "...",
			}),
			event: domain.NewEvent("Ping", map[string]any{
				"exact": "yes",
				"any":   "whatever",
				"extra": "ignored",
			}),
			wantMatch: true,
			wantScore: scoreType + scoreLiteral + scoreWildcard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, score := matchPattern(tt.pattern, tt.event)
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				assert.InDelta(t, tt.wantScore, score, 1e-9)
			}
		})
	}
}

func TestVisibleTo(t *testing.T) {
	broadcast := domain.NewEvent("Ping", nil)
	voice := domain.NewEvent("Ping", nil)
	voice.Loop = "voice"

	// Broadcasts reach every loop.
	assert.True(t, visibleTo(nil, broadcast, "voice"))
	assert.True(t, visibleTo(nil, broadcast, domain.DefaultLoop))

	// Addressed events only reach their loop.
	assert.True(t, visibleTo(nil, voice, "voice"))
	assert.False(t, visibleTo(nil, voice, "text"))

	// same_loop_only rejects broadcasts too.
	strict := &domain.EventPattern{Type: "Ping", SameLoopOnly: true}
	assert.False(t, visibleTo(strict, broadcast, "voice"))
	assert.True(t, visibleTo(strict, voice, "voice"))
}

func TestCompareScoreHistories(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want int
	}{
		{"both empty", nil, nil, 0},
		{"equal", []float64{2, 1.1}, []float64{2, 1.1}, 0},
		{"earliest element decides", []float64{2, 0.1}, []float64{1.1, 9}, 1},
		{"later element breaks tie", []float64{2, 1.1}, []float64{2, 2}, -1},
		{"longer history wins equal prefix", []float64{2, 1.1}, []float64{2}, 1},
		{"shorter loses", []float64{2}, []float64{2, 0.1}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareScoreHistories(tt.a, tt.b))
			assert.Equal(t, -tt.want, compareScoreHistories(tt.b, tt.a))
		})
	}
}
