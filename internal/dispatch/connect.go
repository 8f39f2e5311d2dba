// File: internal/dispatch/connect.go
//
// handleAccept is the pool_connect job body: perform the HTTP Upgrade
// handshake on a freshly accepted connection and, on success, create
// its Session and hand it to pool_io for the first read step. Grounded
// on spec.md §4.C (handshake negotiation) driving internal/wire, wired
// into the dispatcher the way the teacher's server/server.go composes
// its accept path with a handler chain.
package dispatch

import (
	"bufio"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"net"
	"time"

	"github.com/loadwave/wscore/internal/session"
	"github.com/loadwave/wscore/internal/wire"
)

func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b[:])
}

func (d *Dispatcher) handleAccept(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(d.cfg.TimeoutRead))
	defer conn.SetReadDeadline(time.Time{})

	br := bufio.NewReaderSize(conn, d.cfg.SizeHeader)
	header, err := wire.ParseRequest(br, d.cfg)
	if err != nil {
		wire.WriteErrorResponse(conn, 400)
		conn.Close()
		return
	}

	id := newSessionID()
	decision := wire.Negotiate(header, d.cfg, d.subprotocols, d.extensions, id)
	if decision.Status != 101 {
		wire.WriteErrorResponse(conn, decision.Status)
		conn.Close()
		return
	}
	if err := wire.WriteUpgradeResponse(conn, decision); err != nil {
		conn.Close()
		return
	}

	sess := session.New(id, conn, conn.RemoteAddr().String(), d.cfg)
	sess.Handshaked = true
	sess.Header = decision.Header
	sess.State = session.StateIdle
	sess.Event = session.EventRead
	if n := br.Buffered(); n > 0 {
		leftover := make([]byte, n)
		br.Read(leftover)
		sess.PendingPayload = leftover
	}
	if tc, ok := conn.(*tls.Conn); ok {
		sess.TLSEnabled = true
		sess.SSLConnected = tc.ConnectionState().HandshakeComplete
	}
	d.store.Add(sess)

	if sp, ok := d.subprotocols[sess.Header.WSProtocol]; ok {
		sp.Connect(sess.ID, sess.RemoteAddr, sess.Header.Path, sess.Header.Cookies)
	}

	go d.readLoop(sess)
}
