package wire

import (
	"testing"

	"github.com/loadwave/wscore/api"
)

func frame(opcode api.Opcode, fin bool) *api.Frame {
	return &api.Frame{Opcode: opcode, Fin: fin}
}

func TestValidateFragmentSequenceAcceptsSimpleMessage(t *testing.T) {
	frames := []*api.Frame{frame(api.OpText, true)}
	code, still, err := ValidateFragmentSequence(frames, false)
	if err != nil || code != 0 || still {
		t.Fatalf("got (%d, %v, %v), want (0, false, nil)", code, still, err)
	}
}

func TestValidateFragmentSequenceAcceptsFragmentedMessage(t *testing.T) {
	frames := []*api.Frame{
		frame(api.OpText, false),
		frame(api.OpContinuation, false),
		frame(api.OpContinuation, true),
	}
	code, still, err := ValidateFragmentSequence(frames, false)
	if err != nil || code != 0 || still {
		t.Fatalf("got (%d, %v, %v), want (0, false, nil)", code, still, err)
	}
}

func TestValidateFragmentSequenceRejectsBareContinuation(t *testing.T) {
	frames := []*api.Frame{frame(api.OpContinuation, true)}
	code, _, err := ValidateFragmentSequence(frames, false)
	if err != ErrUnexpectedContinuation || code != api.CloseProtocol {
		t.Fatalf("got (%d, %v), want (%d, ErrUnexpectedContinuation)", code, err, api.CloseProtocol)
	}
}

func TestValidateFragmentSequenceRejectsDataFrameMidFragment(t *testing.T) {
	frames := []*api.Frame{
		frame(api.OpText, false),
		frame(api.OpBinary, true),
	}
	code, _, err := ValidateFragmentSequence(frames, false)
	if err != ErrUnexpectedDataFrame || code != api.CloseProtocol {
		t.Fatalf("got (%d, %v), want (%d, ErrUnexpectedDataFrame)", code, err, api.CloseProtocol)
	}
}

func TestValidateFragmentSequenceIgnoresInterleavedControlFrames(t *testing.T) {
	frames := []*api.Frame{
		frame(api.OpText, false),
		frame(api.OpPing, true),
		frame(api.OpContinuation, true),
	}
	code, still, err := ValidateFragmentSequence(frames, false)
	if err != nil || code != 0 || still {
		t.Fatalf("got (%d, %v, %v), want (0, false, nil)", code, still, err)
	}
}

func TestValidateFragmentSequenceRejectsReservedDataOpcode(t *testing.T) {
	frames := []*api.Frame{frame(api.Opcode(0x3), true)}
	code, _, err := ValidateFragmentSequence(frames, false)
	if err != ErrUnknownOpcode || code != api.CloseUnsupportedType {
		t.Fatalf("got (%d, %v), want (%d, ErrUnknownOpcode)", code, err, api.CloseUnsupportedType)
	}
}

func TestValidateFragmentSequenceRejectsReservedControlOpcode(t *testing.T) {
	frames := []*api.Frame{frame(api.Opcode(0xB), true)}
	code, _, err := ValidateFragmentSequence(frames, false)
	if err != ErrUnknownOpcode || code != api.CloseUnsupportedType {
		t.Fatalf("got (%d, %v), want (%d, ErrUnknownOpcode)", code, err, api.CloseUnsupportedType)
	}
}

// TestValidateFragmentSequenceCarriesStateAcrossBatches exercises the
// case that motivated the alreadyInFragment/stillInFragment threading:
// a message's initial frame and its continuation arriving in separate
// batches (as separate TCP reads would deliver them) must not be
// treated as two independent, individually-invalid sequences.
func TestValidateFragmentSequenceCarriesStateAcrossBatches(t *testing.T) {
	firstBatch := []*api.Frame{frame(api.OpText, false)}
	code, still, err := ValidateFragmentSequence(firstBatch, false)
	if err != nil || code != 0 || !still {
		t.Fatalf("first batch: got (%d, %v, %v), want (0, true, nil)", code, still, err)
	}

	secondBatch := []*api.Frame{frame(api.OpContinuation, true)}
	code, still, err = ValidateFragmentSequence(secondBatch, still)
	if err != nil || code != 0 || still {
		t.Fatalf("second batch: got (%d, %v, %v), want (0, false, nil)", code, still, err)
	}
}
