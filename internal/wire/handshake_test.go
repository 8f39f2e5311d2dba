package wire

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/loadwave/wscore/api"
)

func TestComputeAcceptRFC6455Vector(t *testing.T) {
	got := ComputeAccept("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("ComputeAccept = %q, want %q", got, want)
	}
}

func rawRequest(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n\r\n"
}

func TestParseAndNegotiateUpgrade(t *testing.T) {
	req := rawRequest(
		"GET /chat HTTP/1.1",
		"Host: example.com",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version: 13",
		"Sec-WebSocket-Protocol: echo, broadcast",
		"Cookie: sid=abc123; theme=dark",
	)
	cfg := api.DefaultConfig()
	h, err := ParseRequest(strings.NewReader(req), cfg)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if h.Draft != api.DraftRFC6455 {
		t.Fatalf("expected RFC6455 draft, got %v", h.Draft)
	}
	if h.Cookies["sid"] != "abc123" || h.Cookies["theme"] != "dark" {
		t.Fatalf("cookie parse failed: %+v", h.Cookies)
	}
	if len(h.ProtocolOffers) != 2 || h.ProtocolOffers[0] != "echo" {
		t.Fatalf("protocol offers wrong: %+v", h.ProtocolOffers)
	}

	registered := map[string]api.Subprotocol{"echo": nil}
	d := Negotiate(h, cfg, registered, nil, "test-session")
	if d.Status != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", d.Status)
	}
	if d.Header.WSProtocol != "echo" {
		t.Fatalf("expected echo selected, got %q", d.Header.WSProtocol)
	}
	if d.Accept != ComputeAccept(h.SecWebSocketKey) {
		t.Fatalf("accept mismatch")
	}

	var buf bytes.Buffer
	if err := WriteUpgradeResponse(&buf, d); err != nil {
		t.Fatalf("WriteUpgradeResponse: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "101 Switching Protocols") ||
		!strings.Contains(out, "Sec-WebSocket-Accept: "+d.Accept) ||
		!strings.Contains(out, "Sec-WebSocket-Protocol: echo") {
		t.Fatalf("unexpected response:\n%s", out)
	}
}

func TestNegotiateRejectsMissingKey(t *testing.T) {
	req := rawRequest(
		"GET / HTTP/1.1",
		"Host: example.com",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Version: 13",
	)
	cfg := api.DefaultConfig()
	h, err := ParseRequest(strings.NewReader(req), cfg)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	d := Negotiate(h, cfg, nil, nil, "test-session")
	if d.Status != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", d.Status)
	}
}

func TestNegotiateRejectsUnsupportedVersion(t *testing.T) {
	req := rawRequest(
		"GET / HTTP/1.1",
		"Host: example.com",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version: 6",
	)
	cfg := api.DefaultConfig()
	h, err := ParseRequest(strings.NewReader(req), cfg)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if h.Draft != api.DraftHYBI04to06 {
		t.Fatalf("expected HYBI04-06 draft, got %v", h.Draft)
	}
	d := Negotiate(h, cfg, nil, nil, "test-session")
	if d.Status != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", d.Status)
	}
}

func TestNegotiateHostRestriction(t *testing.T) {
	req := rawRequest(
		"GET / HTTP/1.1",
		"Host: evil.example.com",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version: 13",
	)
	cfg := api.DefaultConfig()
	cfg.Hosts = []string{"example.com"}
	h, err := ParseRequest(strings.NewReader(req), cfg)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	d := Negotiate(h, cfg, nil, nil, "test-session")
	if d.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", d.Status)
	}
}

func TestNegotiateRejectsMissingUpgradeHeader(t *testing.T) {
	req := rawRequest(
		"GET /x HTTP/1.1",
		"Host: example.com",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version: 13",
	)
	cfg := api.DefaultConfig()
	h, err := ParseRequest(strings.NewReader(req), cfg)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	d := Negotiate(h, cfg, nil, nil, "test-session")
	if d.Status != http.StatusUpgradeRequired {
		t.Fatalf("expected 426 for missing Upgrade/Connection headers, got %d", d.Status)
	}
}

func TestNegotiateRejectsConnectionWithoutUpgradeToken(t *testing.T) {
	req := rawRequest(
		"GET /x HTTP/1.1",
		"Host: example.com",
		"Upgrade: websocket",
		"Connection: keep-alive",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version: 13",
	)
	cfg := api.DefaultConfig()
	h, err := ParseRequest(strings.NewReader(req), cfg)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	d := Negotiate(h, cfg, nil, nil, "test-session")
	if d.Status != http.StatusUpgradeRequired {
		t.Fatalf("expected 426 for Connection without an Upgrade token, got %d", d.Status)
	}
}

func TestNegotiateRejectsAbsoluteURIScheme(t *testing.T) {
	req := rawRequest(
		"GET ws://example.com/x HTTP/1.1",
		"Host: example.com",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version: 13",
	)
	cfg := api.DefaultConfig()
	h, err := ParseRequest(strings.NewReader(req), cfg)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	d := Negotiate(h, cfg, nil, nil, "test-session")
	if d.Status != http.StatusUpgradeRequired {
		t.Fatalf("expected 426 for an absolute-URI request target, got %d", d.Status)
	}
}

func TestNegotiateRejectsShortSecWebSocketKey(t *testing.T) {
	req := rawRequest(
		"GET /x HTTP/1.1",
		"Host: example.com",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Key: dG9vc2hvcnQ=",
		"Sec-WebSocket-Version: 13",
	)
	cfg := api.DefaultConfig()
	h, err := ParseRequest(strings.NewReader(req), cfg)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	d := Negotiate(h, cfg, nil, nil, "test-session")
	if d.Status != http.StatusUpgradeRequired {
		t.Fatalf("expected 426 for a key that doesn't decode to 16 bytes, got %d", d.Status)
	}
}

func TestParseExtensionOffers(t *testing.T) {
	req := rawRequest(
		"GET / HTTP/1.1",
		"Host: example.com",
		"Upgrade: websocket",
		"Connection: Upgrade",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version: 13",
		`Sec-WebSocket-Extensions: permessage-deflate; client_max_window_bits, x-webkit-deflate-frame`,
	)
	cfg := api.DefaultConfig()
	h, err := ParseRequest(strings.NewReader(req), cfg)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if len(h.ExtensionOffers) != 2 {
		t.Fatalf("expected 2 extension offers, got %d: %+v", len(h.ExtensionOffers), h.ExtensionOffers)
	}
	if h.ExtensionOffers[0].Name != "permessage-deflate" {
		t.Fatalf("unexpected first offer: %+v", h.ExtensionOffers[0])
	}
	if _, ok := h.ExtensionOffers[0].Params["client_max_window_bits"]; !ok {
		t.Fatalf("expected client_max_window_bits param, got %+v", h.ExtensionOffers[0].Params)
	}
}
