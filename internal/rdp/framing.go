// Package rdp is the blocking driver around the sans-I/O core: it owns the
// TCP connection, frames the byte stream with PDU hints, performs the TLS
// upgrade and the CredSSP pump the connector flags for it, and runs the
// active session loop.
package rdp

import (
	"bufio"
	"fmt"
	"io"

	"github.com/rcarmo/rdp-core/internal/core"
	"github.com/rcarmo/rdp-core/internal/protocol/fastpath"
	"github.com/rcarmo/rdp-core/internal/protocol/tpkt"
)

type sessionHint struct{}

// SessionHint frames post-activation traffic: TPKT-framed slow path or
// fast-path updates, told apart by the X.224 action bits of the first byte.
var SessionHint core.PduHint = sessionHint{}

func (sessionHint) FindSize(b []byte) (int, bool, bool, error) {
	if len(b) < 1 {
		return 0, false, false, nil
	}

	if b[0]&0x03 == fastpath.ActionX224 {
		return tpkt.Hint.FindSize(b)
	}

	return fastpath.Hint.FindSize(b)
}

// readFrame accumulates exactly one frame sized by the hint from the
// buffered reader.
func readFrame(r *bufio.Reader, hint core.PduHint, frame []byte) ([]byte, error) {
	frame = frame[:0]

	for {
		size, final, ok, err := hint.FindSize(frame)
		if err != nil {
			return nil, err
		}

		switch {
		case ok && final:
			if len(frame) > size {
				return nil, fmt.Errorf("read frame: accumulated %d bytes past the frame of %d", len(frame), size)
			}

			for len(frame) < size {
				frame, err = fill(r, frame, size-len(frame))
				if err != nil {
					return nil, err
				}
			}

			return frame, nil
		case ok:
			// need `size` bytes to keep learning the length
			for len(frame) < size {
				frame, err = fill(r, frame, size-len(frame))
				if err != nil {
					return nil, err
				}
			}
		default:
			frame, err = fill(r, frame, 1)
			if err != nil {
				return nil, err
			}
		}
	}
}

func fill(r *bufio.Reader, frame []byte, n int) ([]byte, error) {
	chunk := make([]byte, n)

	read, err := io.ReadFull(r, chunk)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}

	return append(frame, chunk[:read]...), nil
}
