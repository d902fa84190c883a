// Package connector implements the sans-I/O client connection sequence: the
// Sequence framework shared with the acceptor, and the state machine driving
// an RDP client handshake from the X.224 Connection Request through the
// activated session.
package connector

import (
	"github.com/rcarmo/rdp-core/internal/core"
)

// Written reports what a step appended to the output buffer: nothing, or a
// non-zero number of bytes.
type Written struct {
	size int
}

// WrittenNothing is a step result with no output.
func WrittenNothing() Written {
	return Written{}
}

// WrittenSize builds a step result for n appended bytes; n must not be zero.
func WrittenSize(ctx string, n int) (Written, error) {
	if n == 0 {
		return Written{}, core.InvalidField(ctx, "written", "invalid zero-length write")
	}
	return Written{size: n}, nil
}

// Size returns the appended byte count, with ok=false for Nothing.
func (w Written) Size() (int, bool) {
	return w.size, w.size != 0
}

// State names the current position of a sequence. IsTerminal reports
// completion of this sub-sequence.
type State interface {
	Name() string
	IsTerminal() bool
}

// Sequence is the abstraction every connection phase implements. The driver
// owns transport and buffers:
//
//	for !seq.State().IsTerminal() {
//		out.Clear()
//		if hint := seq.NextPduHint(); hint != nil {
//			frame := readExactly(hint)
//			written, err = seq.Step(frame, out)
//		} else {
//			written, err = seq.StepNoInput(out)
//		}
//		if n, ok := written.Size(); ok {
//			send(out.Filled()[:n])
//		}
//	}
//
// Step consumes exactly one frame (the one sized by NextPduHint) and may
// cross several non-I/O states internally, returning at the first I/O
// boundary. StepNoInput must be called iff NextPduHint returned nil.
type Sequence interface {
	NextPduHint() core.PduHint
	State() State
	Step(input []byte, output *core.WriteBuf) (Written, error)
	StepNoInput(output *core.WriteBuf) (Written, error)
}
