// File: internal/dispatch/doc.go
//
// Package dispatch wires internal/session, internal/wire, internal/ringbuf
// and reactor together into the listener + worker-pool + cleanup-thread
// architecture of spec.md §4.D/§5: one listener goroutine, two bounded
// job pools (pool_connect, pool_io), one reader goroutine per session,
// and a cleanup goroutine.
//
// Grounded on the teacher's internal/concurrency/executor.go +
// threadpool.go (eapache/queue-backed pool) and server/server.go's
// Serve/Shutdown composition, generalized to the named pools and the
// read/write/connect step operations the specification requires. The
// teacher's executor called queue.Enqueue/queue.Dequeue, methods
// github.com/eapache/queue does not export (its actual API is
// Add/Peek/Remove) — a genuine teacher defect rather than a deliberate
// design choice, so Pool below drives the real Add/Peek/Remove API
// instead of replicating calls that would not compile.
//
// pool_io bounds concurrent frame PROCESSING, not concurrent reading.
// Each session gets its own lightweight readLoop goroutine blocked in
// Conn.Read with a TimeoutRead deadline — idiomatic Go, since parking
// a goroutine costs nothing like parking an OS thread does. Only once
// bytes actually arrive does readLoop hand them to pool_io as a job
// and wait for it to finish before reading more; that is what keeps
// PoolIOWorkers meaningful as "how many sessions may have CPU actively
// spent on them right now" instead of "how many sessions may be
// connected at all". Submitting readStep itself as a pool_io job (an
// earlier draft of this package did that) would have tied up a worker
// for the full TimeoutRead window per idle connection, capping live
// connections at PoolIOWorkers — a regression from the reactor model
// the pool is meant to replace.
package dispatch
