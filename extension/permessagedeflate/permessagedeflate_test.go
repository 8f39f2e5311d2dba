package permessagedeflate

import (
	"strings"
	"testing"

	"github.com/loadwave/wscore/api"
)

func TestOpenWithNilOfferAcceptsDefaults(t *testing.T) {
	e := New()
	accepted, valid := e.Open("sess-1", nil)
	if !valid {
		t.Fatal("expected nil offer to be accepted")
	}
	if !strings.Contains(accepted, "server_no_context_takeover") ||
		!strings.Contains(accepted, "client_no_context_takeover") ||
		!strings.Contains(accepted, "server_max_window_bits=15") {
		t.Fatalf("unexpected accepted string: %q", accepted)
	}
}

func TestOpenClampsWindowBits(t *testing.T) {
	e := New()
	accepted, valid := e.Open("sess-1", map[string]string{
		"server_max_window_bits": "3",
		"client_max_window_bits": "99",
	})
	if !valid {
		t.Fatal("expected offer to be accepted")
	}
	if !strings.Contains(accepted, "server_max_window_bits=8") {
		t.Fatalf("server_max_window_bits not clamped to minimum: %q", accepted)
	}
	if !strings.Contains(accepted, "client_max_window_bits=15") {
		t.Fatalf("client_max_window_bits not clamped to maximum: %q", accepted)
	}
}

func TestOpenBareClientMaxWindowBitsTakesDefault(t *testing.T) {
	e := New()
	accepted, valid := e.Open("sess-1", map[string]string{"client_max_window_bits": ""})
	if !valid {
		t.Fatal("expected offer to be accepted")
	}
	if !strings.Contains(accepted, "client_max_window_bits=15") {
		t.Fatalf("bare client_max_window_bits should default to 15: %q", accepted)
	}
}

func TestOutFrameThenInFrameRoundTrips(t *testing.T) {
	e := New()
	if _, valid := e.Open("sess-1", nil); !valid {
		t.Fatal("Open failed")
	}

	original := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 20))
	out := &api.Frame{Opcode: api.OpText, Fin: true, Payload: append([]byte(nil), original...)}

	compressed, err := e.OutFrame("sess-1", out)
	if err != nil {
		t.Fatalf("OutFrame: %v", err)
	}
	if !compressed.Rsv1 {
		t.Fatal("expected OutFrame to set RSV1")
	}
	if len(compressed.Payload) >= len(original) {
		t.Fatalf("compressed payload (%d bytes) not smaller than original (%d bytes)", len(compressed.Payload), len(original))
	}

	in := &api.Frame{Opcode: api.OpText, Fin: true, Rsv1: true, Payload: compressed.Payload}
	decompressed, err := e.InFrame("sess-1", in)
	if err != nil {
		t.Fatalf("InFrame: %v", err)
	}
	if decompressed.Rsv1 {
		t.Fatal("expected InFrame to clear RSV1")
	}
	if string(decompressed.Payload) != string(original) {
		t.Fatalf("round trip mismatch: got %q, want %q", decompressed.Payload, original)
	}
}

func TestInFrameLeavesUncompressedFrameAlone(t *testing.T) {
	e := New()
	f := &api.Frame{Opcode: api.OpText, Fin: true, Payload: []byte("plain text")}
	got, err := e.InFrame("sess-1", f)
	if err != nil {
		t.Fatalf("InFrame: %v", err)
	}
	if string(got.Payload) != "plain text" {
		t.Fatalf("payload mutated: %q", got.Payload)
	}
}

func TestOutFrameLeavesControlFramesAlone(t *testing.T) {
	e := New()
	e.Open("sess-1", nil)

	f := &api.Frame{Opcode: api.OpPing, Fin: true, Payload: []byte("ping")}
	got, err := e.OutFrame("sess-1", f)
	if err != nil {
		t.Fatalf("OutFrame: %v", err)
	}
	if got.Rsv1 {
		t.Fatal("control frames must never be marked compressed")
	}
	if string(got.Payload) != "ping" {
		t.Fatalf("control frame payload mutated: %q", got.Payload)
	}
}

func TestCloseRemovesSessionState(t *testing.T) {
	e := New()
	e.Open("sess-1", nil)
	e.Close("sess-1")

	e.mu.Lock()
	_, ok := e.sessions["sess-1"]
	e.mu.Unlock()
	if ok {
		t.Fatal("expected Close to remove session state")
	}
}

func TestDestroyClearsAllSessions(t *testing.T) {
	e := New()
	e.Open("sess-1", nil)
	e.Open("sess-2", nil)
	e.Destroy()

	e.mu.Lock()
	n := len(e.sessions)
	e.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no sessions after Destroy, got %d", n)
	}
}
