package codec

import "fmt"

// ErrorKind classifies codec failures. Only ErrVersionMismatch closes
// the channel; everything else is reported to the sender and the reader
// continues.
type ErrorKind string

const (
	ErrTooShort          ErrorKind = "too_short"
	ErrMalformedType     ErrorKind = "malformed_type"
	ErrUnknownBinaryType ErrorKind = "unknown_binary_type"
	ErrJSONParse         ErrorKind = "json_parse"
	ErrVersionMismatch   ErrorKind = "version_mismatch"
)

// FrameError carries the failure kind and a short human detail.
type FrameError struct {
	Kind   ErrorKind
	Detail string
}

func (e *FrameError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// KindOf extracts the error kind from err, or empty if err is not a
// FrameError.
func KindOf(err error) ErrorKind {
	if fe, ok := err.(*FrameError); ok {
		return fe.Kind
	}
	return ""
}
