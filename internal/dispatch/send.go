// File: internal/dispatch/send.go
//
// Send is the path invoked from subprotocol callbacks, extensions, and
// control-frame responses (spec.md §4.D's send path): build frames,
// apply the outbound extension chain, serialize, and enqueue onto the
// session's ring buffer. sendControlFrame bypasses the ring buffer
// entirely for frames the read step must answer inline (PONG, CLOSE).
package dispatch

import (
	"time"

	"github.com/loadwave/wscore/api"
	"github.com/loadwave/wscore/internal/session"
	"github.com/loadwave/wscore/internal/wire"
)

// Send implements api.SendFunc: it is handed to every subprotocol at
// Init time so application code never needs to import dispatch.
func (d *Dispatcher) Send(sessionID string, opcode api.Opcode, payload []byte) error {
	s, ok := d.store.Get(sessionID)
	if !ok {
		return api.ErrNotFound
	}
	s.JobCounter.Add(1)
	defer s.JobCounter.Add(-1)

	var rsv1 bool
	payload, rsv1 = d.applyOutExtensions(s, opcode, payload)
	frames := wire.Chunk(opcode, payload, d.cfg.SizeFrame)
	if rsv1 && len(frames) > 0 {
		// RSV1 marks compression on the message's first frame only
		// (RFC 7692 §6.1); continuation frames leave it clear.
		frames[0].Rsv1 = true
	}
	for _, f := range frames {
		raw, err := wire.Encode(f)
		if err != nil {
			return err
		}
		if err := s.EnqueueOutbound(session.OutboundMessage{Opcode: f.Opcode, Payload: raw}); err != nil {
			return err
		}
	}

	s.Mu.Lock()
	idle := s.State == session.StateIdle
	busy := s.State == session.StateReading || s.State == session.StateConnecting
	s.Mu.Unlock()

	if idle {
		d.rearm(s, session.EventWrite)
		return nil
	}
	if busy {
		// The producer may block briefly but must never block the
		// listener thread (spec.md §4.D send path); the owning worker
		// will observe the new message on its next drain regardless.
		time.Sleep(time.Millisecond)
	}
	return nil
}

// applyOutExtensions runs payload through the session's negotiated
// extension chain and reports whether the result should be marked
// compressed (RSV1) on the wire.
func (d *Dispatcher) applyOutExtensions(s *session.Session, opcode api.Opcode, payload []byte) ([]byte, bool) {
	if s.Header == nil {
		return payload, false
	}
	f := &api.Frame{Opcode: opcode, Fin: true, Payload: payload, ApplicationDataLen: int64(len(payload))}
	for _, ae := range s.Header.WSExtensions {
		ext, ok := d.extensions[ae.Name]
		if !ok {
			continue
		}
		out, err := ext.OutFrame(s.ID, f)
		if err != nil {
			continue
		}
		f = out
	}
	return f.Payload, f.Rsv1
}

// sendControlFrame writes f synchronously to the session's conn,
// bypassing the ring buffer — used for PONG replies and CLOSE
// responses the read step must send inline per spec.md §4.D step 4.
func (d *Dispatcher) sendControlFrame(s *session.Session, f *api.Frame) {
	raw, err := wire.Encode(f)
	if err != nil {
		return
	}
	s.Conn.SetWriteDeadline(time.Now().Add(d.cfg.TimeoutWrite))
	s.Conn.Write(raw)
	s.TouchWrite()
}
