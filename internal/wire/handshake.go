// File: internal/wire/handshake.go
// Package wire — the HTTP Upgrade handshake engine.
//
// Grounded on the teacher's core/protocol/handshake.go (buffered
// http.ReadRequest parsing, SHA-1/base64 Sec-WebSocket-Accept,
// Connection/Upgrade token checks) generalized with the negotiation
// tables the teacher's handshake.go never implemented: per-path/host/
// origin routing, subprotocol and extension selection, cookie
// splitting, and legacy-draft detection, all grounded on
// original_source/src/header.c's WSS_parse_header.
package wire

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loadwave/wscore/api"
)

// webSocketGUID is the RFC 6455 §1.3 magic string.
const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Decision is the outcome of negotiating one handshake request: either
// a 101 upgrade (Header populated, Status == http.StatusSwitchingProtocols)
// or a rejection (Status carries the HTTP status to send back).
type Decision struct {
	Status  int
	Header  *api.Header
	Accept  string            // Sec-WebSocket-Accept value, valid only on 101
	ExtRsp  []api.AcceptedExtension
}

// ParseRequest reads one HTTP/1.1 request from r and extracts the
// fields the handshake cares about. It does not itself decide whether
// to upgrade; call Negotiate next.
func ParseRequest(r io.Reader, cfg *api.Config) (*api.Header, error) {
	br := bufio.NewReaderSize(r, cfg.SizeHeader+cfg.SizeURI+256)
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("wire: read request: %w", err)
	}

	if len(req.URL.String()) > cfg.SizeURI {
		return nil, fmt.Errorf("wire: request-target exceeds SizeURI")
	}

	total := len(req.Method) + len(req.URL.String()) + len(req.Proto)
	for k, vs := range req.Header {
		total += len(k)
		for _, v := range vs {
			total += len(v)
		}
	}
	if total > cfg.SizeHeader {
		return nil, fmt.Errorf("wire: header block exceeds SizeHeader")
	}

	path := req.URL.Path
	if req.URL.IsAbs() {
		// An absolute-form request-target (CONNECT-proxy style) carries
		// its scheme separately from Path; fold it back in so the
		// scheme check below sees it.
		path = req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	}

	h := &api.Header{
		Method:              req.Method,
		Path:                path,
		HTTPVersion:         req.Proto,
		Host:                req.Host,
		Origin:              firstHeader(req.Header, "Origin"),
		Upgrade:             req.Header.Get("Upgrade"),
		Connection:          req.Header.Get("Connection"),
		Cookies:             parseCookies(req.Header.Get("Cookie")),
		SecWebSocketKey:     req.Header.Get("Sec-WebSocket-Key"),
		SecWebSocketVersion: req.Header.Get("Sec-WebSocket-Version"),
		RawHeaderBytes:      total,
	}
	h.Draft = detectDraft(h.SecWebSocketVersion, req.Header)
	// Either header may be repeated; join every occurrence with commas
	// before splitting, as the original's header_append does.
	h.ProtocolOffers = splitCSV(strings.Join(req.Header.Values("Sec-WebSocket-Protocol"), ","))
	h.ExtensionOffers = parseExtensionOffers(strings.Join(req.Header.Values("Sec-WebSocket-Extensions"), ","))

	return h, nil
}

func firstHeader(h http.Header, name string) string {
	vs := h[http.CanonicalHeaderKey(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// parseCookies splits a "Cookie" header into its name/value pairs,
// matching the original implementation's single-pass semicolon split
// (src/header.c stores the raw cookie string; individual session
// lookups re-split it).
func parseCookies(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i := strings.IndexByte(part, '='); i >= 0 {
			out[part[:i]] = part[i+1:]
		} else {
			out[part] = ""
		}
	}
	return out
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseExtensionOffers parses "name; param=value; param2" comma-
// separated offers, grounded on WSS_parse_header's extensions
// accumulation-then-split-on-comma-then-semicolon pass.
func parseExtensionOffers(raw string) []api.ExtensionOffer {
	if raw == "" {
		return nil
	}
	var offers []api.ExtensionOffer
	for _, offer := range strings.Split(raw, ",") {
		fields := strings.Split(offer, ";")
		name := strings.TrimSpace(fields[0])
		if name == "" {
			continue
		}
		params := make(map[string]string)
		for _, f := range fields[1:] {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if i := strings.IndexByte(f, '='); i >= 0 {
				params[strings.TrimSpace(f[:i])] = strings.Trim(strings.TrimSpace(f[i+1:]), `"`)
			} else {
				params[f] = ""
			}
		}
		offers = append(offers, api.ExtensionOffer{Name: name, Params: params})
	}
	return offers
}

// detectDraft maps a Sec-WebSocket-Version value, or its absence, onto
// a WSDraft, mirroring header_set_version's version→draft table
// (src/header.c). Version "13" is by far the common case.
func detectDraft(version string, h http.Header) api.WSDraft {
	switch version {
	case "13":
		return api.DraftRFC6455
	case "8":
		return api.DraftHYBI10
	case "7":
		return api.DraftHYBI07
	case "4", "5", "6":
		return api.DraftHYBI04to06
	}
	if h.Get("Sec-WebSocket-Key1") != "" || h.Get("Sec-WebSocket-Key2") != "" {
		return api.DraftHixie76
	}
	if h.Get("WebSocket-Protocol") != "" {
		return api.DraftHixie75
	}
	return api.DraftUnknown
}

// Negotiate validates the parsed header against cfg's routing tables
// and the registered subprotocols/extensions, producing either a 101
// decision or a rejection status. subprotocols and extensions are
// looked up by the offered token; a nil map means "none registered".
// The checks run in the same order as the upgrade decision table: path
// scheme, path routing, host, Upgrade, Connection, origin, draft
// version, and finally the Sec-WebSocket-Key shape.
func Negotiate(h *api.Header, cfg *api.Config, subprotocols map[string]api.Subprotocol, extensions map[string]api.Extension, sessionID string) Decision {
	if h.Method != "GET" {
		return Decision{Status: http.StatusMethodNotAllowed}
	}

	// 1. An absolute-URI request-target (http://, https://, ws://,
	// wss://) is never a valid Upgrade target.
	if hasURIScheme(h.Path) {
		return Decision{Status: http.StatusUpgradeRequired}
	}

	// 2. Request path must match the configured routing table, if any.
	if len(cfg.Paths) > 0 && !pathAllowed(h.Path, cfg.Paths) {
		return Decision{Status: http.StatusNotFound}
	}

	// 3. Host must be one of the configured virtual hosts, if any.
	if len(cfg.Hosts) > 0 && !stringInList(h.Host, cfg.Hosts) {
		return Decision{Status: http.StatusBadRequest}
	}

	// 4. Upgrade header must name "websocket", case-insensitively.
	if !strings.EqualFold(strings.TrimSpace(h.Upgrade), "websocket") {
		return Decision{Status: http.StatusUpgradeRequired}
	}

	// 5. Connection header must carry the Upgrade token among its
	// comma-delimited values, case-insensitively.
	if !connectionHasUpgradeToken(h.Connection) {
		return Decision{Status: http.StatusUpgradeRequired}
	}

	// 6. Origin, if configured, must be on the allow list.
	if len(cfg.Origins) > 0 && h.Origin != "" && !stringInList(h.Origin, cfg.Origins) {
		return Decision{Status: http.StatusForbidden}
	}

	// 7. Only RFC6455/HYBI10/HYBI07 complete the handshake. A
	// recognized-but-older draft is a parseable, unsupported version;
	// a completely unrecognized version tag is a bad request.
	if !h.Draft.Upgradeable() {
		if h.Draft == api.DraftUnknown {
			return Decision{Status: http.StatusBadRequest}
		}
		return Decision{Status: http.StatusNotImplemented}
	}

	// 8. Sec-WebSocket-Key must decode as base64 to exactly 16 bytes.
	if !validWebSocketKey(h.SecWebSocketKey) {
		return Decision{Status: http.StatusUpgradeRequired}
	}

	h.WSProtocol = selectSubprotocol(h.ProtocolOffers, subprotocols, cfg.SubprotocolsDefault)

	var accepted []api.AcceptedExtension
	for _, offer := range h.ExtensionOffers {
		ext, ok := extensions[offer.Name]
		if !ok {
			continue
		}
		params, valid := ext.Open(sessionID, offer.Params)
		if valid {
			accepted = append(accepted, api.AcceptedExtension{Name: offer.Name, Accepted: params})
		}
	}
	h.WSExtensions = accepted

	return Decision{
		Status: http.StatusSwitchingProtocols,
		Header: h,
		Accept: ComputeAccept(h.SecWebSocketKey),
		ExtRsp: accepted,
	}
}

// hasURIScheme reports whether path begins with an absolute-URI scheme
// rather than a bare request path.
func hasURIScheme(path string) bool {
	lower := strings.ToLower(path)
	for _, scheme := range [...]string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// connectionHasUpgradeToken reports whether raw's comma-delimited
// tokens include "Upgrade", case-insensitively.
func connectionHasUpgradeToken(raw string) bool {
	for _, tok := range strings.Split(raw, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "Upgrade") {
			return true
		}
	}
	return false
}

// validWebSocketKey reports whether key base64-decodes to exactly the
// 16 bytes RFC 6455 §1.3 requires of Sec-WebSocket-Key.
func validWebSocketKey(key string) bool {
	decoded, err := base64.StdEncoding.DecodeString(key)
	return err == nil && len(decoded) == 16
}

func stringInList(v string, list []string) bool {
	for _, s := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func pathAllowed(path string, allowed []string) bool {
	for _, p := range allowed {
		if p == path || strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
			return true
		}
	}
	return false
}

func selectSubprotocol(offers []string, registered map[string]api.Subprotocol, def string) string {
	for _, o := range offers {
		if _, ok := registered[o]; ok {
			return o
		}
	}
	return def
}

// ComputeAccept computes the Sec-WebSocket-Accept value for a client
// key per RFC 6455 §1.3.
func ComputeAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key + webSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// WriteUpgradeResponse writes the 101 Switching Protocols response for
// an accepted handshake.
func WriteUpgradeResponse(w io.Writer, d Decision) error {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Accept: %s\r\n", d.Accept)
	if d.Header.WSProtocol != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", d.Header.WSProtocol)
	}
	for _, ext := range d.ExtRsp {
		if ext.Accepted != "" {
			fmt.Fprintf(&b, "Sec-WebSocket-Extensions: %s; %s\r\n", ext.Name, ext.Accepted)
		} else {
			fmt.Fprintf(&b, "Sec-WebSocket-Extensions: %s\r\n", ext.Name)
		}
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteErrorResponse writes a minimal status-line-only rejection.
func WriteErrorResponse(w io.Writer, status int) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nConnection: close\r\n\r\n", status, http.StatusText(status))
	return err
}
