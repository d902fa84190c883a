package core

// Encode is implemented by every outbound PDU. Size must return the exact
// encoded length; Encode fails with a NotEnoughBytesError when the destination
// cursor is too small.
type Encode interface {
	Encode(dst *WriteCursor) error
	Name() string
	Size() int
}

// EncodeBuf encodes a PDU into the unfilled region of buf and marks the bytes
// as filled. It returns the number of bytes appended.
func EncodeBuf(pdu Encode, buf *WriteBuf) (int, error) {
	size := pdu.Size()
	dst := NewWriteCursor(buf.UnfilledTo(size))

	if err := pdu.Encode(dst); err != nil {
		return 0, err
	}

	buf.Advance(dst.Pos())

	return dst.Pos(), nil
}

// EncodeBytes encodes a PDU into the caller-supplied slice and returns the
// number of bytes written.
func EncodeBytes(pdu Encode, out []byte) (int, error) {
	dst := NewWriteCursor(out)

	if err := pdu.Encode(dst); err != nil {
		return 0, err
	}

	return dst.Pos(), nil
}

// EncodeVec encodes a PDU into a new slice sized by the PDU itself.
func EncodeVec(pdu Encode) ([]byte, error) {
	out := make([]byte, pdu.Size())

	n, err := EncodeBytes(pdu, out)
	if err != nil {
		return nil, err
	}

	return out[:n], nil
}

// PduHint probes a byte prefix for the length of the next frame. Hints are
// stateless and cheap.
type PduHint interface {
	// FindSize returns ok=false when the prefix is too short to decide.
	// With ok=true and final=true, size is the complete frame length.
	// With ok=true and final=false, size bytes are needed to keep probing.
	FindSize(b []byte) (size int, final bool, ok bool, err error)
}
