package core

import "fmt"

// NotEnoughBytesError reports a read or write that would overrun the buffer.
type NotEnoughBytesError struct {
	Context  string
	Received int
	Expected int
}

func (e *NotEnoughBytesError) Error() string {
	return fmt.Sprintf("%s: not enough bytes: received %d, expected %d", e.Context, e.Received, e.Expected)
}

// InvalidFieldError reports a field holding a value the decoder rejects.
type InvalidFieldError struct {
	Context string
	Field   string
	Reason  string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("%s: invalid `%s`: %s", e.Context, e.Field, e.Reason)
}

// UnexpectedMessageTypeError reports a message-type discriminant the decoder
// does not handle at this point.
type UnexpectedMessageTypeError struct {
	Context string
	Got     uint8
}

func (e *UnexpectedMessageTypeError) Error() string {
	return fmt.Sprintf("%s: unexpected message type: 0x%02X", e.Context, e.Got)
}

// UnsupportedVersionError reports a protocol version outside the supported set.
type UnsupportedVersionError struct {
	Context string
	Got     uint8
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("%s: unsupported version: 0x%02X", e.Context, e.Got)
}

// UnsupportedValueError reports a well-formed but unsupported value.
type UnsupportedValueError struct {
	Context string
	Name    string
	Value   string
}

func (e *UnsupportedValueError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: unsupported %s", e.Context, e.Name)
	}
	return fmt.Sprintf("%s: unsupported %s (%s)", e.Context, e.Name, e.Value)
}

// OtherError carries a free-form description tied to a context tag.
type OtherError struct {
	Context     string
	Description string
	Source      error
}

func (e *OtherError) Error() string {
	if e.Source != nil {
		return fmt.Sprintf("%s: %s: %v", e.Context, e.Description, e.Source)
	}
	return fmt.Sprintf("%s: %s", e.Context, e.Description)
}

func (e *OtherError) Unwrap() error {
	return e.Source
}

// NotEnoughBytes builds a NotEnoughBytesError with a static context tag.
func NotEnoughBytes(ctx string, received, expected int) error {
	return &NotEnoughBytesError{Context: ctx, Received: received, Expected: expected}
}

// InvalidField builds an InvalidFieldError with a static context tag.
func InvalidField(ctx, field, reason string) error {
	return &InvalidFieldError{Context: ctx, Field: field, Reason: reason}
}

// UnexpectedMessageType builds an UnexpectedMessageTypeError.
func UnexpectedMessageType(ctx string, got uint8) error {
	return &UnexpectedMessageTypeError{Context: ctx, Got: got}
}

// UnsupportedVersion builds an UnsupportedVersionError.
func UnsupportedVersion(ctx string, got uint8) error {
	return &UnsupportedVersionError{Context: ctx, Got: got}
}

// UnsupportedValue builds an UnsupportedValueError.
func UnsupportedValue(ctx, name, value string) error {
	return &UnsupportedValueError{Context: ctx, Name: name, Value: value}
}

// Other builds an OtherError with a description only.
func Other(ctx, description string) error {
	return &OtherError{Context: ctx, Description: description}
}

// OtherWithSource builds an OtherError chaining a source error.
func OtherWithSource(ctx, description string, source error) error {
	return &OtherError{Context: ctx, Description: description, Source: source}
}

// EnsureSize returns a NotEnoughBytesError unless the cursor has at least n
// unread bytes. Every decode function calls this before reading.
func EnsureSize(ctx string, src *ReadCursor, n int) error {
	if src.Len() < n {
		return NotEnoughBytes(ctx, src.Len(), n)
	}
	return nil
}

// EnsureWriteSize returns a NotEnoughBytesError unless the cursor has at
// least n writable bytes left.
func EnsureWriteSize(ctx string, dst *WriteCursor, n int) error {
	if dst.Len() < n {
		return NotEnoughBytes(ctx, dst.Len(), n)
	}
	return nil
}
