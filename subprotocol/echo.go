// File: subprotocol/echo.go
//
// Echo implements api.Subprotocol by sending every received message
// straight back to its originating session. Grounded on
// original_source/subprotocols/echo/echo.c's onInit/onMessage pair,
// which is this simple in C too: onMessage just calls send(fd, opcode,
// message, message_length) unconditionally.
package subprotocol

import "github.com/loadwave/wscore/api"

// Echo is the trivial subprotocol used by examples and integration
// tests: it has no state of its own beyond the SendFunc it's handed at
// Init.
type Echo struct {
	send api.SendFunc
}

// NewEcho constructs an uninitialized Echo subprotocol; Init must be
// called before it can send anything.
func NewEcho() *Echo { return &Echo{} }

func (e *Echo) Name() string { return "echo" }

func (e *Echo) Init(cfg *api.Config, send api.SendFunc) error {
	e.send = send
	return nil
}

func (e *Echo) Connect(sessionID, remoteAddr, path string, cookies map[string]string) error {
	return nil
}

func (e *Echo) Message(sessionID string, opcode api.Opcode, payload []byte) error {
	return e.send(sessionID, opcode, payload)
}

func (e *Echo) Write(sessionID string, payload []byte) error { return nil }

func (e *Echo) Close(sessionID string) error { return nil }

func (e *Echo) Destroy() error { return nil }
