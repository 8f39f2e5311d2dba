// File: extension/permessagedeflate/permessagedeflate.go
//
// Extension implements RFC 7692 permessage-deflate. Grounded on
// original_source/extensions/permessage-deflate/permessage-deflate.c's
// onInit/onOpen/inFrames/outFrames/onClose/onDestroy event set: a
// mutex-guarded table of per-session compressor state, keyed by session
// rather than fd, populated at Open (the C onOpen) and torn down at
// Close/Destroy (onClose/onDestroy).
//
// The C original drives zlib directly, including deflateInit2/
// inflateInit2's window-size parameter — compress/flate has no
// equivalent knob, so server_max_window_bits/client_max_window_bits are
// parsed and echoed back (clients that care see a spec-shaped response)
// but never change how much history klauspost/compress/flate actually
// keeps. Window continuity across separate messages (zlib's "context
// takeover") would require seeding every flate.Reader/Writer with the
// trailing bytes of the previous message as an explicit dictionary —
// doable, but neither the C original (which keeps a single long-lived
// z_stream per session) nor jason-cq-nats-server/server/websocket.go
// (which resets its pooled reader with a nil dictionary on every
// message, same as a stdlib flate.NewReader call) demonstrates that
// technique in this pack, so this package follows the nats websocket.go
// shape instead: Open always answers with both *_no_context_takeover
// flags set regardless of what the client offered (RFC 7692 §7.1.1.1/
// §7.1.1.2 both permit a server to impose either flag unilaterally),
// which makes every message an independently decodable deflate stream
// and keeps the implementation honest about what it actually supports.
package permessagedeflate

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/loadwave/wscore/api"
)

const (
	paramServerNoContextTakeover = "server_no_context_takeover"
	paramClientNoContextTakeover = "client_no_context_takeover"
	paramServerMaxWindowBits     = "server_max_window_bits"
	paramClientMaxWindowBits     = "client_max_window_bits"

	minWindowBits     = 8
	maxWindowBits     = 15
	defaultWindowBits = 15
)

// syncFlushTrailer is the 4-byte stored-block marker zlib's Z_SYNC_FLUSH
// always appends; the deflate format needs it re-appended before a
// partial stream can be inflated, and it must be stripped from (or
// padded onto) what goes out on the wire. Mirrors the C original's
// memcpy(payload+current_length, "\x00\x00\xff\xff", 4) in inFrames and
// the mirrored strip in outFrames.
var syncFlushTrailer = []byte{0x00, 0x00, 0xff, 0xff}

type params struct {
	serverNoContextTakeover bool
	clientNoContextTakeover bool
	serverMaxWindowBits     int
	clientMaxWindowBits     int
}

// session holds the parameters negotiated for a connection, in the
// place of the C original's wss_comp_t hash entry. It keeps no
// compressor or decompressor: OutFrame and InFrame build a fresh flate
// writer or reader for every message.
type session struct {
	params params
}

// Extension is the built-in permessage-deflate implementation. The zero
// value is not usable; construct with New.
type Extension struct {
	compressionLevel int

	mu       sync.Mutex
	sessions map[string]*session
}

// New constructs a permessage-deflate extension using flate's default
// compression level, matching the C original's Z_DEFAULT_COMPRESSION.
func New() *Extension {
	return &Extension{
		compressionLevel: flate.DefaultCompression,
		sessions:         make(map[string]*session),
	}
}

func (e *Extension) Name() string { return "permessage-deflate" }

func (e *Extension) Init(cfg *api.Config) error { return nil }

func clampWindowBits(n int) int {
	if n < minWindowBits {
		return minWindowBits
	}
	if n > maxWindowBits {
		return maxWindowBits
	}
	return n
}

// parseOfferParams reads the client's offer, mirroring parse_param in
// the C original: unknown keys are ignored, *_max_window_bits values
// are clamped into range, and a bare client_max_window_bits (no "=")
// takes the default.
func parseOfferParams(offer map[string]string) params {
	p := params{serverMaxWindowBits: defaultWindowBits}

	if _, ok := offer[paramServerNoContextTakeover]; ok {
		p.serverNoContextTakeover = true
	}
	if _, ok := offer[paramClientNoContextTakeover]; ok {
		p.clientNoContextTakeover = true
	}
	if v, ok := offer[paramServerMaxWindowBits]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			p.serverMaxWindowBits = clampWindowBits(n)
		}
	}
	if v, ok := offer[paramClientMaxWindowBits]; ok {
		if v == "" {
			p.clientMaxWindowBits = defaultWindowBits
		} else if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			p.clientMaxWindowBits = clampWindowBits(n)
		}
	}

	// Unconditionally impose both no-context-takeover flags: every
	// message becomes a self-contained deflate stream, which is the
	// only mode this implementation's per-message Reader/Writer reset
	// can honor correctly. RFC 7692 explicitly allows a server to do
	// this even when the client didn't ask for it.
	p.serverNoContextTakeover = true
	p.clientNoContextTakeover = true

	return p
}

// acceptedString renders p the way negotiate() in the C original builds
// its accepted parameter string: semicolon-joined, server_max_window_bits
// always present, client_max_window_bits only when the client's offer
// carried one.
func acceptedString(p params) string {
	var parts []string
	if p.serverNoContextTakeover {
		parts = append(parts, paramServerNoContextTakeover)
	}
	if p.clientNoContextTakeover {
		parts = append(parts, paramClientNoContextTakeover)
	}
	if p.clientMaxWindowBits > 0 {
		parts = append(parts, paramClientMaxWindowBits+"="+strconv.Itoa(p.clientMaxWindowBits))
	}
	parts = append(parts, paramServerMaxWindowBits+"="+strconv.Itoa(p.serverMaxWindowBits))
	return strings.Join(parts, ";")
}

// Open parses and validates the client's offer, registers the session,
// and returns the accepted parameter string. A nil/empty offer (the
// extension named with no parameters) still negotiates successfully
// with every default, matching the C onOpen's param == NULL branch.
func (e *Extension) Open(sessionID string, offer map[string]string) (string, bool) {
	p := parseOfferParams(offer)

	e.mu.Lock()
	e.sessions[sessionID] = &session{params: p}
	e.mu.Unlock()

	return acceptedString(p), true
}

// InFrame decompresses a completed message when its RSV1 bit marked it
// compressed. internal/dispatch calls this once per reassembled
// message with a single synthetic frame carrying the full payload
// (FragRsv1 of the fragment's first wire frame), not per raw wire
// frame — the equivalent point in the C original is inFrames, which
// likewise only runs once a full set of frames for a message has
// arrived. Mirrors its approach: append the sync-flush trailer, inflate
// fully, clear RSV1 on the way out.
func (e *Extension) InFrame(sessionID string, f *api.Frame) (*api.Frame, error) {
	if !f.Rsv1 {
		return f, nil
	}

	compressed := append(append([]byte{}, f.Payload...), syncFlushTrailer...)

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f.Payload = out
	f.ApplicationDataLen = int64(len(out))
	f.ExtensionDataLen = 0
	f.Rsv1 = false

	return f, nil
}

// InFrames is a no-op in this implementation: internal/dispatch never
// calls it (it reassembles fragments itself before invoking InFrame
// once), but it is still implemented to satisfy api.Extension for any
// future caller that drives the per-frame-batch path directly.
func (e *Extension) InFrames(sessionID string, frames []*api.Frame) ([]*api.Frame, error) {
	return frames, nil
}

// OutFrame deflates a single outbound frame and sets RSV1, the shape
// applyOutExtensions in internal/dispatch drives (one synthetic frame
// carrying the whole message, chunked into wire frames afterward).
// Mirrors the C original's active outFrames: compress the whole
// message, strip the trailing sync-flush marker if present, else pad
// with a single zero byte so the stream still inflates cleanly.
func (e *Extension) OutFrame(sessionID string, f *api.Frame) (*api.Frame, error) {
	if f.Opcode.IsControl() {
		return f, nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, e.compressionLevel)
	if err != nil {
		return f, nil
	}
	if _, err := w.Write(f.Payload); err != nil {
		w.Close()
		return f, nil
	}
	if err := w.Flush(); err != nil {
		w.Close()
		return f, nil
	}
	w.Close()

	out := buf.Bytes()
	if len(out) >= 4 && bytes.Equal(out[len(out)-4:], syncFlushTrailer) {
		out = out[:len(out)-4]
	} else {
		out = append(out, 0x00)
	}

	f.Payload = out
	f.ApplicationDataLen = int64(len(out))
	f.ExtensionDataLen = 0
	f.Rsv1 = true
	return f, nil
}

// OutFrames is a no-op; OutFrame already compressed the whole message
// before internal/dispatch chunked it into wire frames.
func (e *Extension) OutFrames(sessionID string, frames []*api.Frame) ([]*api.Frame, error) {
	return frames, nil
}

func (e *Extension) Close(sessionID string) error {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
	return nil
}

func (e *Extension) Destroy() error {
	e.mu.Lock()
	e.sessions = make(map[string]*session)
	e.mu.Unlock()
	return nil
}
