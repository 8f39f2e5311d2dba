// File: reactor/doc.go
//
// Package reactor implements the readiness multiplexer of spec.md
// §4.D/§5: one Reactor per process, wrapping epoll on Linux, kqueue on
// BSD/Darwin, and poll(2) everywhere else POSIX-ish. All three
// backends expose the same fd-registration and notification contract
// so the dispatcher loop never branches on platform; epoll and kqueue
// register edge-triggered, poll(2) reports level-triggered readiness.
package reactor
