// File: subprotocol/broadcast.go
//
// Broadcast implements api.Subprotocol by relaying every received
// message to every other connected session. Grounded on
// original_source/subprotocols/broadcast/broadcast.c: a
// pthread_rwlock_t-guarded uthash table of connected fds, populated on
// onConnect and pruned on onClose, iterated under the read lock by
// onMessage to fan a message out to every client but the sender. The
// Go translation keeps the same read-mostly/write-rare locking shape
// with a sync.RWMutex over a map[string]struct{}, the idiomatic
// stand-in for a hash set with no C library to reach for.
package subprotocol

import (
	"sync"

	"github.com/loadwave/wscore/api"
)

// Broadcast relays messages to every other connected session. The
// client set is rebuilt from Connect/Close calls rather than trusted
// to the caller, mirroring the original's own session bookkeeping
// instead of assuming the dispatcher's session store is reachable from
// here.
type Broadcast struct {
	send api.SendFunc

	mu      sync.RWMutex
	clients map[string]struct{}
}

// NewBroadcast constructs an uninitialized Broadcast subprotocol; Init
// must be called before it can send anything.
func NewBroadcast() *Broadcast {
	return &Broadcast{clients: make(map[string]struct{})}
}

func (b *Broadcast) Name() string { return "broadcast" }

func (b *Broadcast) Init(cfg *api.Config, send api.SendFunc) error {
	b.send = send
	return nil
}

func (b *Broadcast) Connect(sessionID, remoteAddr, path string, cookies map[string]string) error {
	b.mu.Lock()
	b.clients[sessionID] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *Broadcast) Message(sessionID string, opcode api.Opcode, payload []byte) error {
	b.mu.RLock()
	targets := make([]string, 0, len(b.clients))
	for id := range b.clients {
		if id != sessionID {
			targets = append(targets, id)
		}
	}
	b.mu.RUnlock()

	var firstErr error
	for _, id := range targets {
		if err := b.send(id, opcode, payload); err != nil && firstErr == nil {
			// A send failing for one peer (already disconnected, ring
			// buffer full) must not stop the fan-out to the rest.
			firstErr = err
		}
	}
	return firstErr
}

func (b *Broadcast) Write(sessionID string, payload []byte) error { return nil }

func (b *Broadcast) Close(sessionID string) error {
	b.mu.Lock()
	delete(b.clients, sessionID)
	b.mu.Unlock()
	return nil
}

func (b *Broadcast) Destroy() error {
	b.mu.Lock()
	b.clients = make(map[string]struct{})
	b.mu.Unlock()
	return nil
}
