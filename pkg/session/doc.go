/*
Package session implements session persistence orchestration.

It serializes access to a session's snapshot, integrating per-process
mutexes with optional distributed locking so exactly one replica
processes a session's events at a time.
*/
package session
