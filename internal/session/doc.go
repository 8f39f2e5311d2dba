// File: internal/session/doc.go
// Package session implements the per-connection state machine and
// sharded sessions table described in spec.md §3-§5: one Session per
// accepted fd, owned by the dispatcher and mutated only under its own
// mutex, tracked in a Store keyed by session ID.
package session
