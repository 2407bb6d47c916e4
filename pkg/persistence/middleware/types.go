// Package middleware wraps a ports.StateStore with cross-cutting
// behavior applied to session snapshots on their way to durable
// storage: encryption at rest and PII masking. Middlewares compose;
// the outermost wrapper sees the snapshot first on Save and last on
// Load.
package middleware

import "github.com/aretw0/weft/pkg/ports"

// Middleware allows wrapping a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore

// Chain composes middlewares around a store, first listed outermost.
func Chain(store ports.StateStore, mws ...Middleware) ports.StateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
