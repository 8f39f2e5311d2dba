// File: internal/wire/fragment.go
//
// ValidateFragmentSequence implements spec.md §4.B's fragmentation
// rules F1-F2 over a session's accumulated frame list: a CONTINUATION
// outside a started message, or a non-continuation data frame inside
// one, is a protocol error (close code 1002). Control frames may
// interleave freely (F3) and are not this function's concern — the
// read step dispatches them independently of fragment state.
package wire

import (
	"errors"

	"github.com/loadwave/wscore/api"
)

// ErrUnexpectedContinuation and ErrUnexpectedDataFrame correspond to
// F1 and F2 respectively.
var (
	ErrUnexpectedContinuation = errors.New("wire: continuation frame with no fragment in progress")
	ErrUnexpectedDataFrame    = errors.New("wire: data frame received mid-fragment")
)

// ValidateFragmentSequence walks frames in order and reports the first
// violation, if any, along with the RFC 6455 close code to send.
// alreadyInFragment carries the fragment state left over from a
// previous batch — a message's continuation frames are not guaranteed
// to arrive in the same read as its initial frame, so the caller must
// thread stillInFragment back in as the next batch's alreadyInFragment
// rather than assuming each batch starts a fresh sequence.
//
// The opcode is checked against the known set before anything else:
// reserved data opcodes (0x3-0x7) and reserved control opcodes
// (0xB-0xF) are both unknown and must close 1003, so that check has to
// run before the IsControl split below would otherwise let a reserved
// control opcode through untouched.
func ValidateFragmentSequence(frames []*api.Frame, alreadyInFragment bool) (closeCode int, stillInFragment bool, err error) {
	inFragment := alreadyInFragment
	for _, f := range frames {
		if !f.Opcode.Known() {
			return api.CloseUnsupportedType, inFragment, ErrUnknownOpcode
		}
		if f.Opcode.IsControl() {
			continue
		}
		switch f.Opcode {
		case api.OpContinuation:
			if !inFragment {
				return api.CloseProtocol, inFragment, ErrUnexpectedContinuation
			}
			if f.Fin {
				inFragment = false
			}
		case api.OpText, api.OpBinary:
			if inFragment {
				return api.CloseProtocol, inFragment, ErrUnexpectedDataFrame
			}
			if !f.Fin {
				inFragment = true
			}
		}
	}
	return 0, inFragment, nil
}
