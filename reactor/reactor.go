// File: reactor/reactor.go
//
// Reactor is the platform-neutral readiness multiplexer contract.
// Grounded on the teacher's two competing shapes — epoll_reactor.go's
// callback-table style and reactor_linux.go's Register/Wait/Close
// style — consolidated to the latter, since the dispatcher loop in
// spec.md §4.D pulls events in a batch and classifies them itself
// rather than invoking per-fd callbacks.
package reactor

import "errors"

// EventFlags is a bitmask of the readiness conditions a registration
// is interested in, or that Wait reports as having fired.
type EventFlags uint8

const (
	EventRead EventFlags = 1 << iota
	EventWrite
	EventError
	EventHangup
)

// Event is one readiness notification returned by Wait. UserData
// round-trips whatever opaque value Register was given for this fd so
// the caller needs no fd lookup of its own. (internal/dispatch
// registers only its listening socket, with 0.)
type Event struct {
	Fd       uintptr
	UserData uint64
	Flags    EventFlags
}

// Reactor multiplexes readiness across registered file descriptors.
// A single goroutine calls Wait in a loop (the dispatcher loop);
// Register/Modify/Unregister may be called concurrently from other
// goroutines.
type Reactor interface {
	// Register begins watching fd for the given readiness flags,
	// tagging it with userData for retrieval from Event.UserData.
	Register(fd uintptr, userData uint64, flags EventFlags) error

	// Modify changes the readiness flags fd is watched for.
	// internal/dispatch does not call it; session fds are not
	// registered with the reactor.
	Modify(fd uintptr, flags EventFlags) error

	// Unregister stops watching fd. Safe to call even if fd was
	// already removed (e.g. by the peer closing the connection).
	Unregister(fd uintptr) error

	// Wait blocks until at least one registered fd is ready, the
	// close signal fires, or timeoutMs elapses (-1 blocks
	// indefinitely), filling events and returning the count.
	Wait(events []Event, timeoutMs int) (int, error)

	// Wake unblocks a goroutine currently parked in Wait without
	// waiting for a registered fd to become ready. Every backend does
	// this by writing to a self-pipe registered alongside the real fds;
	// the poll(2) backend also calls it from Register/Modify/Unregister,
	// because poll(2) must be re-entered with a fresh fd set.
	Wake() error

	// Close releases the underlying multiplexer handle. After Close,
	// Wait returns an error.
	Close() error
}

// ErrClosed is returned by Wait once the reactor has been closed.
var ErrClosed = errors.New("reactor: closed")

// ErrUnsupported is returned by New on platforms with no backend.
var ErrUnsupported = errors.New("reactor: no readiness multiplexer backend for this platform")

// New constructs the platform-appropriate Reactor.
func New() (Reactor, error) {
	return newPlatformReactor()
}
