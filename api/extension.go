// File: api/extension.go
// Package api
//
// Extension is the ABI a wire-level plug-in implements: it is chained on
// inbound and outbound frames after negotiation during the handshake.
// The core guarantees per-session serialization of these calls (a single
// worker ever touches a given session at a time), so implementations do
// not need their own per-connection locking — only shared state across
// connections (e.g. a compressor table keyed by session ID) needs one,
// exactly as the specification's permessage-deflate note describes.

package api

// Extension is the capability set {open, inframe, inframes, outframe,
// outframes, close, destroy} named in the specification's Extension ABI.
type Extension interface {
	// Name is the Sec-WebSocket-Extensions token this extension answers
	// to, e.g. "permessage-deflate".
	Name() string

	// Init is called once at startup with the negotiated server config.
	Init(cfg *Config) error

	// Open is called during handshake negotiation for a session that
	// offered this extension. params are the offer's semicolon-separated
	// parameters; accepted is the parameter string to echo back to the
	// client, valid reports whether the offer was acceptable.
	Open(sessionID string, params map[string]string) (accepted string, valid bool)

	// InFrame is called once per completed inbound data message, before
	// the UTF-8 check, with one frame carrying the reassembled payload
	// and the RSV1 bit of the message's first wire frame. Individual wire
	// frames and control frames are not passed through it.
	InFrame(sessionID string, f *Frame) (*Frame, error)

	// InFrames takes a slice of inbound frames. internal/dispatch does
	// not call it; inbound messages go through InFrame only.
	InFrames(sessionID string, frames []*Frame) ([]*Frame, error)

	// OutFrame is called once per message passed to the send path, with
	// one frame carrying the whole payload, before it is chunked and
	// serialized. Control frames the dispatcher answers itself (PONG,
	// CLOSE, PING) do not pass through it.
	OutFrame(sessionID string, f *Frame) (*Frame, error)

	// OutFrames takes the chunked frames of one outbound message.
	// internal/dispatch does not call it; outbound messages go through
	// OutFrame only.
	OutFrames(sessionID string, frames []*Frame) ([]*Frame, error)

	// Close releases any per-session state (e.g. a compressor context).
	Close(sessionID string) error

	// Destroy releases any global state at server shutdown.
	Destroy() error
}
