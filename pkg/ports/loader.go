package ports

import "context"

// FlowSource is one raw flow document plus its origin (for error
// reporting).
type FlowSource struct {
	Name string
	Data []byte
}

// FlowLoader defines how the engine retrieves flow definitions. This
// decouples the compiler from the storage layer (filesystem, memory,
// remote registry).
type FlowLoader interface {
	// Load returns every flow source available, in a stable order.
	Load() ([]FlowSource, error)
}

// Watchable is implemented by loaders that can notify about backend
// changes, typically for hot-reload in dev mode. The channel signals
// only that a reload is required.
type Watchable interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}
