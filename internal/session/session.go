// File: internal/session/session.go
// Package session
//
// Session is the full per-connection state machine of spec.md §3/§4.D:
// one instance per accepted fd, owned by the dispatcher, mutated only
// under its own mutex. Grounded on the teacher's sessionImpl (id, done
// channel, deadline) generalized from a bare cancellation token into
// the complete attribute set the specification names — state,
// event, handshake header, pending payload/frames, outbound ring
// buffer, written counter, job counter.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loadwave/wscore/api"
	"github.com/loadwave/wscore/internal/ringbuf"
)

// State is one node of the session lifecycle graph in spec.md §4.D.
type State int32

const (
	StateConnecting State = iota
	StateIdle
	StateReading
	StateWriting
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateIdle:
		return "IDLE"
	case StateReading:
		return "READING"
	case StateWriting:
		return "WRITING"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Event is the worker's verdict on which readiness to request next.
type Event int32

const (
	EventNone Event = iota
	EventRead
	EventWrite
)

// OutboundMessage is one queued outbound application message: an
// already-serialized frame sitting in the session's ring-buffer
// backing array, tagged with its opcode so the write step can
// recognize an embedded CLOSE.
type OutboundMessage struct {
	Opcode  api.Opcode
	Payload []byte
}

// Session holds everything spec.md §3 names for one accepted
// connection. Every field below Mu must only be read or mutated while
// holding it, per the specification's ownership rule; Alive and
// Closing are the two exceptions, read by the cleanup thread and by
// outside observers without acquiring Mu, so they are kept atomic.
type Session struct {
	ID         string
	Conn       net.Conn
	RemoteAddr string

	Handshaked   bool
	TLSEnabled   bool
	SSLConnected bool

	done chan struct{}
	once sync.Once

	// alive is a UnixNano timestamp refreshed on every re-arm; read by
	// the cleanup thread without holding Mu.
	alive int64
	// closing is sticky: once true, no further work proceeds beyond
	// the transition to CLOSING.
	closing atomic.Bool
	// lastWriteProgress resolves the write-timeout/alive aliasing Open
	// Question: tracked separately from alive so a long write stall
	// cannot be masked by interleaved read re-arms.
	lastWriteProgress int64

	Mu sync.Mutex

	State State
	Event Event

	Header *api.Header

	PendingPayload []byte
	ParseOffset    int
	Frames         []*api.Frame

	// Fragment reassembly state, carried across processRead invocations
	// since a message's continuation frames can arrive in a later read
	// than its initial frame (spec.md §4.B fragmentation).
	FragActive bool
	FragOpcode api.Opcode
	FragRsv1   bool // RSV1 of the fragment's first frame; permessage-deflate's compression marker (RFC 7692 §6)
	FragBuf    []byte

	Outbound        *ringbuf.RingBuffer
	OutboundBacking []byte
	pending         map[uint64]OutboundMessage
	Written         int64

	JobCounter atomic.Int64

	deadline time.Time
}

// New constructs a session for a freshly accepted connection. The
// outbound ring buffer is sized per cfg.SizeRingBuffer slots of
// cfg.SizeFrame bytes each, matching the specification's "outbound
// ring buffer and its backing array of message slots."
func New(id string, conn net.Conn, remoteAddr string, cfg *api.Config) *Session {
	backing := cfg.SizeRingBuffer * cfg.SizeFrame
	s := &Session{
		ID:              id,
		Conn:            conn,
		RemoteAddr:      remoteAddr,
		done:            make(chan struct{}),
		State:           StateConnecting,
		Event:           EventNone,
		Outbound:        ringbuf.New(uint64(backing), 0, cfg.PoolIOWorkers+cfg.PoolConnectWorkers),
		OutboundBacking: make([]byte, backing),
		pending:         make(map[uint64]OutboundMessage),
	}
	now := time.Now().UnixNano()
	atomic.StoreInt64(&s.alive, now)
	atomic.StoreInt64(&s.lastWriteProgress, now)
	return s
}

// Cancel signals teardown; idempotent. Closing Done unblocks anything
// select-waiting on session lifetime.
func (s *Session) Cancel() {
	s.once.Do(func() { close(s.done) })
}

// Done returns a channel closed once Cancel has been called.
func (s *Session) Done() <-chan struct{} { return s.done }

// Deadline reports the session's absolute expiry, if one was set.
func (s *Session) Deadline() (time.Time, bool) {
	if s.deadline.IsZero() {
		return time.Time{}, false
	}
	return s.deadline, true
}

// WithDeadline sets an absolute expiry hint, independent of
// TimeoutClient (which the cleanup thread evaluates against Alive).
func (s *Session) WithDeadline(t time.Time) { s.deadline = t }

// Alive returns the last-refreshed liveness timestamp.
func (s *Session) Alive() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.alive))
}

// Touch refreshes the liveness timestamp; called whenever the fd is
// re-armed, per spec.md §4.D's worker step.
func (s *Session) Touch() {
	atomic.StoreInt64(&s.alive, time.Now().UnixNano())
}

// LastWriteProgress returns the last time a write step advanced
// Written, independent of Alive — the fix for the timeout_write/alive
// aliasing Open Question.
func (s *Session) LastWriteProgress() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.lastWriteProgress))
}

// TouchWrite refreshes LastWriteProgress. Call after any successful
// partial or full write.
func (s *Session) TouchWrite() {
	atomic.StoreInt64(&s.lastWriteProgress, time.Now().UnixNano())
}

// Closing reports the sticky close flag.
func (s *Session) Closing() bool { return s.closing.Load() }

// SetClosing sets the sticky close flag. Never cleared once set.
func (s *Session) SetClosing() { s.closing.Store(true) }

// EnqueueOutbound reserves ring-buffer space for msg, copies its bytes
// into the backing array, and publishes it. Safe to call concurrently
// from multiple producer goroutines (MPSC); the session's own
// draining worker must hold Mu while calling DrainOutbound, matching
// the single-consumer contract of internal/ringbuf.
func (s *Session) EnqueueOutbound(msg OutboundMessage) error {
	off, w, err := s.Outbound.Acquire(nil, uint64(len(msg.Payload)))
	if err != nil {
		return err
	}
	copy(s.OutboundBacking[off:], msg.Payload)
	s.Mu.Lock()
	s.pending[off] = msg
	s.Mu.Unlock()
	s.Outbound.Produce(w)
	return nil
}

// DrainOutbound returns the next ready-to-send message in enqueue
// order, or ok=false if nothing is ready. length is that message's byte
// length, the amount to hand to ReleaseOutbound once it is sent. Only
// the session's owning worker may call this.
func (s *Session) DrainOutbound() (msg OutboundMessage, offset uint64, length uint64, ok bool) {
	off, l := s.Outbound.Consume()
	if l == 0 {
		return OutboundMessage{}, 0, 0, false
	}
	s.Mu.Lock()
	msg, found := s.pending[off]
	s.Mu.Unlock()
	if !found {
		return OutboundMessage{}, off, l, false
	}
	return msg, off, uint64(len(msg.Payload)), true
}

// ReleaseOutbound marks nbytes as drained and forgets the
// corresponding pending entry.
func (s *Session) ReleaseOutbound(offset, nbytes uint64) {
	s.Mu.Lock()
	delete(s.pending, offset)
	s.Mu.Unlock()
	s.Outbound.Release(nbytes)
}
