package domain

import "fmt"

// WriteRaceError flags two heads writing the same context variable in
// one processing cycle. Raised only in debug mode; the write still
// applies, the race is reported rather than silently last-write-wins.
type WriteRaceError struct {
	Key        string
	FirstHead  uint64
	SecondHead uint64
}

func (e *WriteRaceError) Error() string {
	return fmt.Sprintf("context variable %q written by head %d and head %d in the same cycle", e.Key, e.FirstHead, e.SecondHead)
}

type contextWrite struct {
	head    uint64
	key     string
	prev    any
	existed bool
}

// Context is the conversation-scoped mutable key/value store, distinct
// from any flow instance's local bindings. It is created at session
// start and torn down at session end.
//
// Context is not safe for concurrent use; the runtime's
// one-event-at-a-time discipline is the synchronization.
type Context struct {
	values map[string]any
	debug  bool

	// Per-cycle bookkeeping: writer per key for race detection and a
	// journal so writes from aborted heads can be rolled back.
	writers map[string]uint64
	journal []contextWrite
}

// NewContext creates an empty context. With debug enabled, same-cycle
// write-write races are detected.
func NewContext(debug bool) *Context {
	return &Context{
		values:  map[string]any{},
		debug:   debug,
		writers: map[string]uint64{},
	}
}

// Get returns the value bound to key.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Snapshot returns a copy of all bindings.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Replace swaps in a full binding set (used when restoring sessions).
func (c *Context) Replace(values map[string]any) {
	c.values = make(map[string]any, len(values))
	for k, v := range values {
		c.values[k] = v
	}
}

// Set writes a value on behalf of the host, outside any cycle.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// BeginCycle resets the per-cycle write tracking. The runtime calls it
// once per admitted external event.
func (c *Context) BeginCycle() {
	if len(c.writers) > 0 {
		c.writers = map[string]uint64{}
	}
	c.journal = c.journal[:0]
}

// SetFromHead writes a value on behalf of a head. The returned error is
// a *WriteRaceError when debug mode detects a same-cycle race; the
// write is applied either way.
func (c *Context) SetFromHead(head uint64, key string, value any) error {
	prev, existed := c.values[key]
	c.journal = append(c.journal, contextWrite{head: head, key: key, prev: prev, existed: existed})

	var raceErr error
	if c.debug {
		if first, ok := c.writers[key]; ok && first != head {
			raceErr = &WriteRaceError{Key: key, FirstHead: first, SecondHead: head}
		}
	}
	c.writers[key] = head
	c.values[key] = value
	return raceErr
}

// RollbackHeads reverts, newest first, every write made this cycle by
// any of the given heads. Writes from aborted heads are discarded, not
// retained.
func (c *Context) RollbackHeads(heads map[uint64]bool) {
	for n := len(c.journal) - 1; n >= 0; n-- {
		w := c.journal[n]
		if !heads[w.head] {
			continue
		}
		if w.existed {
			c.values[w.key] = w.prev
		} else {
			delete(c.values, w.key)
		}
	}
}
