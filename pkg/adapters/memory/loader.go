package memory

import (
	"sort"

	"github.com/aretw0/weft/pkg/ports"
)

// Loader is an in-memory ports.FlowLoader, used by tests and by hosts
// that embed their flow documents.
type Loader struct {
	sources map[string][]byte
}

// NewLoader creates a new empty loader.
func NewLoader() *Loader {
	return &Loader{sources: make(map[string][]byte)}
}

// Add registers a flow document under a name.
func (l *Loader) Add(name string, data []byte) {
	l.sources[name] = data
}

// Load returns the registered sources sorted by name, so compilation
// order is stable.
func (l *Loader) Load() ([]ports.FlowSource, error) {
	names := make([]string, 0, len(l.sources))
	for name := range l.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ports.FlowSource, 0, len(names))
	for _, name := range names {
		out = append(out, ports.FlowSource{Name: name, Data: l.sources[name]})
	}
	return out, nil
}
