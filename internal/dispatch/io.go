// File: internal/dispatch/io.go
//
// readLoop is the per-session read goroutine; processRead and writeStep
// are pool_io job bodies, one bounded step of the session state machine
// per spec.md §4.D. Grounded on spec.md's Read step / Write step
// operations, driving internal/wire's frame codec and internal/session's
// outbound ring buffer.
package dispatch

import (
	"net"
	"time"
	"unicode/utf8"

	"github.com/loadwave/wscore/api"
	"github.com/loadwave/wscore/internal/session"
	"github.com/loadwave/wscore/internal/wire"
)

// readLoop is the per-session reader: one cheap goroutine parked on
// Conn.Read, bounded by TimeoutRead per attempt so it can observe
// Closing() and give the cleanup thread's TimeoutClient sweep a chance
// to run. It never touches pool_io's worker count directly — each
// batch of bytes it reads is handed to processRead as a pool_io job,
// and the loop blocks on that job's completion before reading more.
// That keeps "how many sessions may be waiting on I/O" (cheap,
// unbounded, exactly what Go's netpoller is for) separate from "how
// many sessions may have CPU actively spent parsing/dispatching their
// frames right now" (the genuinely bounded PoolIOWorkers knob).
func (d *Dispatcher) readLoop(s *session.Session) {
	buf := make([]byte, d.cfg.SizeBuffer)
	for {
		if s.Closing() {
			d.disconnect(s)
			return
		}
		s.Conn.SetReadDeadline(time.Now().Add(d.cfg.TimeoutRead))
		n, err := s.Conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			done := make(chan struct{})
			job := func() { d.processRead(s, data); close(done) }
			if serr := d.poolIO.Submit(job); serr != nil {
				d.logger.Printf("dispatch: pool_io overflow on session %s: %v", s.ID, serr)
				s.SetClosing()
				d.disconnect(s)
				return
			}
			<-done
			if s.Closing() {
				d.disconnect(s)
				return
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.SetClosing()
			d.disconnect(s)
			return
		}
	}
}

// processRead is the pool_io job body for a just-received chunk: parse
// as many complete frames as the buffer holds, validate the fragment
// sequence, and deliver completed messages. Bounded by PoolIOWorkers
// since it runs as a pool_io job, unlike the reader goroutine that fed
// it.
func (d *Dispatcher) processRead(s *session.Session, data []byte) {
	s.Mu.Lock()
	s.State = session.StateReading
	s.Touch()
	s.PendingPayload = append(s.PendingPayload, data...)

	for {
		f, consumed, derr := wire.Decode(s.PendingPayload[s.ParseOffset:], int64(d.cfg.SizePayload), true)
		if derr == wire.ErrIncomplete {
			break
		}
		if derr != nil {
			s.Mu.Unlock()
			if derr == wire.ErrPayloadTooLarge {
				d.protocolError(s, api.CloseMessageTooBig)
			} else {
				d.protocolError(s, api.CloseProtocol)
			}
			return
		}
		if len(s.Frames) >= d.cfg.MaxFrames {
			s.Mu.Unlock()
			d.protocolError(s, api.CloseMessageTooBig)
			return
		}
		if (f.Rsv1 || f.Rsv2 || f.Rsv3) && (s.Header == nil || len(s.Header.WSExtensions) == 0) {
			s.Mu.Unlock()
			d.logger.Printf("dispatch: session %s: %v", s.ID, wire.ErrReservedBitsSet)
			d.protocolError(s, api.CloseProtocol)
			return
		}
		s.ParseOffset += consumed
		s.Frames = append(s.Frames, f)
		if f.Opcode == api.OpClose {
			break
		}
	}
	// Compact the pending buffer once frames are fully parsed off the
	// front, so it doesn't grow unbounded across many read steps.
	if s.ParseOffset > 0 {
		s.PendingPayload = append([]byte(nil), s.PendingPayload[s.ParseOffset:]...)
		s.ParseOffset = 0
	}
	frames := s.Frames
	s.Frames = nil
	s.State = session.StateIdle
	s.Mu.Unlock()

	if len(frames) == 0 {
		return
	}

	s.Mu.Lock()
	wasInFragment := s.FragActive
	s.Mu.Unlock()

	// deliverFrames maintains s.FragActive itself (it needs to, to
	// handle a batch containing several frames of the same message);
	// the validator only needs to know where that state stood when
	// this batch started.
	if code, _, ferr := wire.ValidateFragmentSequence(frames, wasInFragment); ferr != nil {
		d.protocolError(s, code)
		return
	}

	d.deliverFrames(s, frames)
}

// deliverFrames walks a batch of parsed frames, dispatching control
// frames inline and reassembling data-frame sequences into complete
// messages for the negotiated subprotocol, per spec.md §4.D step 4.
// Reassembly state lives on the session (FragActive/FragOpcode/FragBuf),
// not in a local variable here, because a message's continuation
// frames can arrive in a later processRead call than its initial
// frame — ValidateFragmentSequence already guarantees frames is
// internally well-formed, but says nothing about what arrived in a
// previous batch.
func (d *Dispatcher) deliverFrames(s *session.Session, frames []*api.Frame) {
	for _, f := range frames {
		if f.Opcode.IsControl() {
			d.handleControlFrame(s, f)
			continue
		}

		s.Mu.Lock()
		if !s.FragActive {
			s.FragOpcode = f.Opcode
			s.FragRsv1 = f.Rsv1
			s.FragBuf = append([]byte(nil), f.Payload...)
			s.FragActive = true
		} else {
			s.FragBuf = append(s.FragBuf, f.Payload...)
		}
		fin := f.Fin
		opcode := s.FragOpcode
		rsv1 := s.FragRsv1
		var payload []byte
		if fin {
			payload = s.FragBuf
			s.FragActive = false
			s.FragBuf = nil
		}
		s.Mu.Unlock()

		if fin {
			d.deliverMessage(s, opcode, rsv1, payload)
		}
	}
}

// deliverMessage hands a fully reassembled message to the extension
// chain and then the negotiated subprotocol. rsv1 is the RSV1 bit of
// the message's first frame — permessage-deflate's signal (RFC 7692
// §6) that payload is compressed and must be inflated by applyInExtensions
// before the UTF-8 check below sees it.
func (d *Dispatcher) deliverMessage(s *session.Session, opcode api.Opcode, rsv1 bool, payload []byte) {
	payload = d.applyInExtensions(s, opcode, rsv1, payload)
	if opcode == api.OpText && !utf8.Valid(payload) {
		d.protocolError(s, api.CloseInvalidPayload)
		return
	}
	sp := d.subprotocolFor(s)
	if sp != nil {
		sp.Message(s.ID, opcode, payload)
	}
}

func (d *Dispatcher) handleControlFrame(s *session.Session, f *api.Frame) {
	switch f.Opcode {
	case api.OpClose:
		code, reason, err := wire.ValidateClose(f)
		if err != nil {
			code = api.CloseProtocol
			reason = ""
		}
		s.SetClosing()
		d.sendControlFrame(s, wire.NewCloseFrame(code, reason))
	case api.OpPing:
		d.sendControlFrame(s, wire.NewPongFrame(f.Payload))
	case api.OpPong:
		// No action required; pong receipt alone refreshes liveness
		// via the Touch() already performed on read.
	}
}

func (d *Dispatcher) subprotocolFor(s *session.Session) api.Subprotocol {
	if s.Header == nil {
		return nil
	}
	if sp, ok := d.subprotocols[s.Header.WSProtocol]; ok {
		return sp
	}
	if s.Header.WSProtocol == "" {
		if sp, ok := d.subprotocols[d.cfg.SubprotocolsDefault]; ok {
			return sp
		}
	}
	return nil
}

func (d *Dispatcher) applyInExtensions(s *session.Session, opcode api.Opcode, rsv1 bool, payload []byte) []byte {
	if s.Header == nil {
		return payload
	}
	f := &api.Frame{Opcode: opcode, Fin: true, Rsv1: rsv1, Payload: payload, ApplicationDataLen: int64(len(payload))}
	for _, ae := range s.Header.WSExtensions {
		ext, ok := d.extensions[ae.Name]
		if !ok {
			continue
		}
		out, err := ext.InFrame(s.ID, f)
		if err != nil {
			continue
		}
		f = out
	}
	return f.Payload
}

func (d *Dispatcher) protocolError(s *session.Session, code int) {
	s.SetClosing()
	d.sendControlFrame(s, wire.NewCloseFrame(code, ""))
	d.disconnect(s)
}

// rearm resubmits the write step to pool_io — the job-queue equivalent
// of re-arming EPOLLOUT (see SPEC_FULL.md §5's net.Conn-deadline
// mapping: the runtime's netpoller already parks each Write
// efficiently, so resubmission plus a bounded deadline is what stands
// in for epoll's re-arm here). The read side has no equivalent: each
// session's readLoop goroutine simply keeps looping on its own.
func (d *Dispatcher) rearm(s *session.Session, ev session.Event) {
	s.Mu.Lock()
	s.State = session.StateIdle
	s.Event = ev
	s.Mu.Unlock()
	s.Touch()

	if ev != session.EventWrite {
		return
	}
	if err := d.poolIO.Submit(func() { d.writeStep(s) }); err != nil {
		d.logger.Printf("dispatch: pool_io overflow re-arming session %s: %v", s.ID, err)
		d.disconnect(s)
	}
}

// writeStep drains the outbound ring buffer message by message, per
// spec.md §4.D's Write step. A message that does not fully send within
// one short write attempt leaves its byte count in session.Written so
// the next writeStep resumes mid-message instead of resending; a
// session that makes no forward progress for TimeoutWrite (tracked via
// LastWriteProgress, independent of the read-driven Alive timestamp —
// the Open Question this split resolves) is treated as a dead peer.
func (d *Dispatcher) writeStep(s *session.Session) {
	if s.Closing() {
		d.disconnect(s)
		return
	}
	s.Mu.Lock()
	s.State = session.StateWriting
	s.Mu.Unlock()

	for {
		msg, offset, _, ok := s.DrainOutbound()
		if !ok {
			break
		}

		s.Mu.Lock()
		written := s.Written
		s.Mu.Unlock()
		remaining := msg.Payload[written:]

		s.Conn.SetWriteDeadline(time.Now().Add(d.cfg.TimeoutPoll))
		n, err := s.Conn.Write(remaining)
		if n > 0 {
			s.TouchWrite()
			s.Mu.Lock()
			s.Written += int64(n)
			s.Mu.Unlock()
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if time.Since(s.LastWriteProgress()) > d.cfg.TimeoutWrite {
					s.ReleaseOutbound(offset, uint64(len(msg.Payload)))
					s.SetClosing()
					d.disconnect(s)
					return
				}
				d.rearm(s, session.EventWrite)
				return
			}
			s.ReleaseOutbound(offset, uint64(len(msg.Payload)))
			s.SetClosing()
			d.disconnect(s)
			return
		}

		s.Mu.Lock()
		s.Written = 0
		s.Mu.Unlock()
		s.ReleaseOutbound(offset, uint64(len(msg.Payload)))

		if msg.Opcode == api.OpClose {
			s.SetClosing()
			d.disconnect(s)
			return
		}
	}

	s.Mu.Lock()
	s.State = session.StateIdle
	s.Event = session.EventNone
	s.Mu.Unlock()
}
