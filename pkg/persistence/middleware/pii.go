package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the values of
// context and flow-local keys matching any of the patterns before the
// snapshot is persisted. The in-memory snapshot is left untouched.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, snap *domain.SessionSnapshot) error {
	// Clone before masking; the engine keeps using the original.
	cloned := *snap
	cloned.Context = maskMap(deepCopyMap(snap.Context), m.patterns)
	if len(snap.Instances) > 0 {
		cloned.Instances = make([]domain.InstanceSnapshot, len(snap.Instances))
		copy(cloned.Instances, snap.Instances)
		for i := range cloned.Instances {
			cloned.Instances[i].Locals = maskMap(deepCopyMap(cloned.Instances[i].Locals), m.patterns)
		}
	}
	return m.next.Save(ctx, sessionID, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) map[string]any {
	for k := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = "***"
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		if sub, ok := m[k].(map[string]any); ok {
			maskMap(sub, patterns)
		}
	}
	return m
}
