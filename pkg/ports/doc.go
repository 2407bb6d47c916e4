/*
Package ports defines the driven ports (interfaces) for the weft engine.

These interfaces decouple the runtime from external implementations,
allowing it to work with different flow sources, persistence backends
and host-side action executors.

# Key Interfaces

  - FlowLoader: loads raw flow sources (filesystem, memory, remote).
  - StateStore: persists and loads session snapshots.
  - DistributedLocker: distributed locking for concurrent session access.
  - ActionHandler: host-side execution of started actions.
*/
package ports
