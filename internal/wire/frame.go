// File: internal/wire/frame.go
// Package wire implements the RFC 6455 frame codec and the HTTP
// Upgrade handshake engine. It consolidates the teacher's three
// overlapping frame codecs (core/protocol/frame_codec.go,
// protocol/frame.go, protocol/frame_codec.go) into the one with
// offset-tracking, incomplete-frame semantics, generalized from a
// fixed 1 MiB payload cap to the configured SizePayload.
package wire

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"

	"github.com/loadwave/wscore/api"
)

// Errors returned by Decode/Encode. ErrIncomplete is not a failure: it
// means the reader needs to buffer more bytes before retrying.
var (
	ErrIncomplete           = errors.New("wire: incomplete frame")
	ErrPayloadTooLarge      = errors.New("wire: frame payload exceeds configured limit")
	ErrControlTooLarge      = errors.New("wire: control frame payload exceeds 125 bytes")
	ErrControlFragmented    = errors.New("wire: control frames must not be fragmented")
	ErrReservedBitsSet      = errors.New("wire: reserved bits set without a negotiated extension")
	ErrUnknownOpcode        = errors.New("wire: unknown opcode")
	ErrUnmaskedClientFrame  = errors.New("wire: client frames must be masked")
	ErrInvalidCloseCode     = errors.New("wire: invalid close code")
	ErrInvalidClosePayload  = errors.New("wire: close payload shorter than 2 bytes")
	ErrCloseReasonNotUTF8   = errors.New("wire: close reason is not valid UTF-8")
)

// Decode parses one frame from the front of raw. If raw does not yet
// contain a complete frame it returns ErrIncomplete and the caller
// should read more data and retry; it never consumes a partial frame.
// requireMask, when true, rejects unmasked frames (the server always
// requires a mask from clients; a client parsing server frames passes
// false).
func Decode(raw []byte, maxPayload int64, requireMask bool) (f *api.Frame, consumed int, err error) {
	if len(raw) < 2 {
		return nil, 0, ErrIncomplete
	}

	b0, b1 := raw[0], raw[1]
	fin := b0&0x80 != 0
	rsv1 := b0&0x40 != 0
	rsv2 := b0&0x20 != 0
	rsv3 := b0&0x10 != 0
	opcode := api.Opcode(b0 & 0x0F)

	masked := b1&0x80 != 0
	length := int64(b1& 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, ErrIncomplete
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, ErrIncomplete
		}
		length = int64(binary.BigEndian.Uint64(raw[offset:]))
		offset += 8
	}

	if length > maxPayload {
		return nil, 0, ErrPayloadTooLarge
	}

	if opcode.IsControl() {
		if !fin {
			return nil, 0, ErrControlFragmented
		}
		if length > api.MaxControlPayload {
			return nil, 0, ErrControlTooLarge
		}
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, ErrIncomplete
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	} else if requireMask {
		return nil, 0, ErrUnmaskedClientFrame
	}

	if len(raw) < offset+int(length) {
		return nil, 0, ErrIncomplete
	}

	payload := make([]byte, length)
	copy(payload, raw[offset:offset+int(length)])
	if masked {
		unmask(payload, maskKey)
	}
	offset += int(length)

	return &api.Frame{
		Fin:     fin,
		Rsv1:    rsv1,
		Rsv2:    rsv2,
		Rsv3:    rsv3,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: maskKey,
		Payload: payload,
	}, offset, nil
}

func unmask(payload []byte, key [4]byte) {
	for i := range payload {
		payload[i] ^= key[i%4]
	}
}

// Encode serializes f. Server-originated frames are never masked
// (f.Masked false); a client encoder sets f.Masked and a fresh random
// mask key in f.MaskKey.
func Encode(f *api.Frame) ([]byte, error) {
	plen := len(f.Payload)

	var b0 byte
	if f.Fin {
		b0 |= 0x80
	}
	if f.Rsv1 {
		b0 |= 0x40
	}
	if f.Rsv2 {
		b0 |= 0x20
	}
	if f.Rsv3 {
		b0 |= 0x10
	}
	b0 |= byte(f.Opcode) & 0x0F

	var hdr []byte
	maskLen := 0
	if f.Masked {
		maskLen = 4
	}

	switch {
	case plen <= 125:
		hdr = make([]byte, 2+maskLen)
		hdr[0] = b0
		hdr[1] = byte(plen)
	case plen <= 0xFFFF:
		hdr = make([]byte, 4+maskLen)
		hdr[0] = b0
		hdr[1] = 126
		binary.BigEndian.PutUint16(hdr[2:], uint16(plen))
	default:
		hdr = make([]byte, 10+maskLen)
		hdr[0] = b0
		hdr[1] = 127
		binary.BigEndian.PutUint64(hdr[2:], uint64(plen))
	}

	if f.Masked {
		hdr[1] |= 0x80
		copy(hdr[len(hdr)-4:], f.MaskKey[:])
	}

	out := make([]byte, len(hdr)+plen)
	copy(out, hdr)
	copy(out[len(hdr):], f.Payload)
	if f.Masked {
		unmask(out[len(hdr):], f.MaskKey)
	}
	return out, nil
}

// NewCloseFrame builds a CLOSE control frame carrying the given status
// code and UTF-8 reason. code 0 omits the status code entirely (an
// empty CLOSE body), matching CloseNoStatusRcvd semantics.
func NewCloseFrame(code int, reason string) *api.Frame {
	var payload []byte
	if code != 0 {
		payload = make([]byte, 2+len(reason))
		binary.BigEndian.PutUint16(payload, uint16(code))
		copy(payload[2:], reason)
	}
	return &api.Frame{Fin: true, Opcode: api.OpClose, Payload: payload}
}

// NewPingFrame builds a PING control frame.
func NewPingFrame(payload []byte) *api.Frame {
	return &api.Frame{Fin: true, Opcode: api.OpPing, Payload: payload}
}

// NewPongFrame builds a PONG control frame, normally echoing the
// payload of the PING it answers.
func NewPongFrame(payload []byte) *api.Frame {
	return &api.Frame{Fin: true, Opcode: api.OpPong, Payload: payload}
}

// ValidateClose extracts and validates a CLOSE frame's status code and
// reason, per the edge cases in spec.md §4.B: length 1 is invalid,
// length 0 means "no status received", and the code must fall outside
// the reserved/unassigned ranges.
func ValidateClose(f *api.Frame) (code int, reason string, err error) {
	switch len(f.Payload) {
	case 0:
		return 0, "", nil
	case 1:
		return 0, "", ErrInvalidClosePayload
	}
	code = int(binary.BigEndian.Uint16(f.Payload))
	reason = string(f.Payload[2:])
	if !api.CloseCodeValid(code) {
		return 0, "", ErrInvalidCloseCode
	}
	if !utf8.ValidString(reason) {
		return 0, "", ErrCloseReasonNotUTF8
	}
	return code, reason, nil
}

// Chunk splits payload into one or more frames of at most maxFrameSize
// bytes of payload each, continuation-framed per RFC 6455 §5.4. A
// single frame is returned when payload already fits.
func Chunk(opcode api.Opcode, payload []byte, maxFrameSize int) []*api.Frame {
	if maxFrameSize <= 0 || len(payload) <= maxFrameSize {
		return []*api.Frame{{Fin: true, Opcode: opcode, Payload: payload}}
	}

	var frames []*api.Frame
	for off := 0; off < len(payload); off += maxFrameSize {
		end := off + maxFrameSize
		if end > len(payload) {
			end = len(payload)
		}
		op := api.OpContinuation
		if off == 0 {
			op = opcode
		}
		frames = append(frames, &api.Frame{
			Fin:     end == len(payload),
			Opcode:  op,
			Payload: payload[off:end],
		})
	}
	return frames
}
