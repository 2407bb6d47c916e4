// Package registry holds the table of compiled flow definitions a
// session executes against. The table is keyed by flow id and may be
// mutated at runtime (flows generated on the fly), but never while a
// processing cycle is in flight; sessions serialize mutations against
// event processing.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// Registry manages the available flow definitions.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]*domain.FlowDefinition
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{flows: make(map[string]*domain.FlowDefinition)}
}

// AddFlows registers definitions. Re-adding an existing id replaces the
// previous definition; running instances keep executing the program
// they were started with.
func (r *Registry) AddFlows(defs ...*domain.FlowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		if def.ID == "" {
			return fmt.Errorf("flow definition without id")
		}
		r.flows[def.ID] = def
	}
	return nil
}

// RemoveFlows drops definitions by id. Unknown ids are ignored.
func (r *Registry) RemoveFlows(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.flows, id)
	}
}

// Lookup returns the definition for a flow id.
// Returns domain.ErrFlowNotFound for unknown ids.
func (r *Registry) Lookup(id string) (*domain.FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.flows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, id)
	}
	return def, nil
}

// IDs returns all registered flow ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Activated returns the ids of flows marked activated, sorted. The
// runtime bootstraps these at session start.
func (r *Registry) Activated() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, def := range r.flows {
		if def.Activated {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
