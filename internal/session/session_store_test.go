package session_test

import (
	"net"
	"testing"

	"github.com/loadwave/wscore/api"
	"github.com/loadwave/wscore/internal/session"
)

func newTestSession(t *testing.T, id string) *session.Session {
	t.Helper()
	client, srv := net.Pipe()
	t.Cleanup(func() { client.Close(); srv.Close() })
	cfg := api.DefaultConfig()
	cfg.SizeRingBuffer = 8
	cfg.SizeFrame = 64
	return session.New(id, srv, "127.0.0.1:0", cfg)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestSession(t, "sess-1")
	if s.State != session.StateConnecting {
		t.Fatalf("expected initial state CONNECTING, got %v", s.State)
	}
	if s.Closing() {
		t.Fatalf("new session should not be closing")
	}
	s.SetClosing()
	if !s.Closing() {
		t.Fatalf("SetClosing should be sticky")
	}

	select {
	case <-s.Done():
		t.Fatalf("session should not be done before Cancel")
	default:
	}
	s.Cancel()
	select {
	case <-s.Done():
	default:
		t.Fatalf("Done channel should be closed after Cancel")
	}
	s.Cancel() // idempotent
}

func TestSessionTouchAndWriteProgress(t *testing.T) {
	s := newTestSession(t, "sess-2")
	before := s.Alive()
	s.Touch()
	if s.Alive().Before(before) {
		t.Fatalf("Touch should not move Alive backwards")
	}

	beforeWrite := s.LastWriteProgress()
	s.TouchWrite()
	if s.LastWriteProgress().Before(beforeWrite) {
		t.Fatalf("TouchWrite should not move LastWriteProgress backwards")
	}
}

func TestSessionOutboundQueueFIFO(t *testing.T) {
	s := newTestSession(t, "sess-3")

	if err := s.EnqueueOutbound(session.OutboundMessage{Opcode: api.OpText, Payload: []byte("one")}); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	if err := s.EnqueueOutbound(session.OutboundMessage{Opcode: api.OpText, Payload: []byte("two")}); err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}

	msg, off, l, ok := s.DrainOutbound()
	if !ok || string(msg.Payload) != "one" {
		t.Fatalf("expected first message 'one', got %+v ok=%v", msg, ok)
	}
	s.ReleaseOutbound(off, l)

	msg, off, l, ok = s.DrainOutbound()
	if !ok || string(msg.Payload) != "two" {
		t.Fatalf("expected second message 'two', got %+v ok=%v", msg, ok)
	}
	s.ReleaseOutbound(off, l)

	if _, _, _, ok := s.DrainOutbound(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestStoreAddGetDelete(t *testing.T) {
	st := session.NewStore(4)
	s1 := newTestSession(t, "a")
	s2 := newTestSession(t, "b")
	st.Add(s1)
	st.Add(s2)

	if st.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", st.Len())
	}
	got, ok := st.Get("a")
	if !ok || got != s1 {
		t.Fatalf("Get(a) failed")
	}

	st.Delete("a")
	if st.Len() != 1 {
		t.Fatalf("expected 1 session after delete, got %d", st.Len())
	}
	select {
	case <-s1.Done():
	default:
		t.Fatalf("Delete should Cancel the removed session")
	}

	var seen []string
	st.Range(func(s *session.Session) { seen = append(seen, s.ID) })
	if len(seen) != 1 || seen[0] != "b" {
		t.Fatalf("Range mismatch: %v", seen)
	}
}
