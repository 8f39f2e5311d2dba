// File: internal/dispatch/cleanup.go
//
// cleanupLoop and disconnect implement spec.md §4.D's cleanup thread
// and connection-lifecycle teardown. Grounded on the dedicated
// cleanup-thread description: sweep all sessions on TimeoutPings,
// closing ones past TimeoutClient and pinging the rest.
package dispatch

import (
	"time"

	"github.com/loadwave/wscore/api"
	"github.com/loadwave/wscore/internal/session"
	"github.com/loadwave/wscore/internal/wire"
)

func (d *Dispatcher) cleanupLoop() {
	defer d.wg.Done()
	interval := d.cfg.TimeoutPings
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-d.closeCh:
			return
		case <-t.C:
			d.sweep()
		}
	}
}

func (d *Dispatcher) sweep() {
	var expired []*session.Session
	now := time.Now()
	d.store.Range(func(s *session.Session) {
		if s.Closing() {
			return
		}
		if now.Sub(s.Alive()) >= d.cfg.TimeoutClient {
			expired = append(expired, s)
			return
		}
		if d.cfg.TimeoutPings > 0 {
			d.sendControlFrame(s, wire.NewPingFrame(nil))
		}
	})
	for _, s := range expired {
		s.SetClosing()
		d.sendControlFrame(s, wire.NewCloseFrame(api.CloseTryAgainLater, ""))
		d.disconnect(s)
	}
}

// disconnect waits for in-flight producers (job counter), notifies the
// subprotocol and extensions, and removes the session from the table.
// Per spec.md §4.D: "wait on the job counter; set state = CLOSING;
// invoke the subprotocol's close(fd); ...; free the header; close the
// fd; remove from the sessions table."
func (d *Dispatcher) disconnect(s *session.Session) {
	if _, already := d.disconnecting.LoadOrStore(s.ID, struct{}{}); already {
		return
	}
	defer d.disconnecting.Delete(s.ID)

	for i := 0; i < 1000 && s.JobCounter.Load() != 0; i++ {
		time.Sleep(time.Millisecond)
	}

	s.Mu.Lock()
	s.State = session.StateClosing
	header := s.Header
	s.Header = nil
	s.Mu.Unlock()

	if header != nil {
		if sp, ok := d.subprotocols[header.WSProtocol]; ok {
			sp.Close(s.ID)
		}
		for _, ae := range header.WSExtensions {
			if ext, ok := d.extensions[ae.Name]; ok {
				ext.Close(s.ID)
			}
		}
	}

	s.Conn.Close()
	d.store.Delete(s.ID)
	s.Cancel()
}
