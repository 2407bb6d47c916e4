// Package domain contains the core types of the weft runtime: events,
// flow definitions and their compiled statement programs, running flow
// instances and their heads, outstanding actions, and the conversation
// context.
//
// The package is dependency-free by design. The runtime
// (internal/runtime) interprets these types; adapters persist and
// transport them.
package domain
