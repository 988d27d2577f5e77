package wire

import (
	"errors"
	"fmt"
)

// Decode error kinds. Every failure returned by this package matches exactly
// one of these with errors.Is.
var (
	ErrTruncatedData       = errors.New("truncated data")
	ErrInvalidMagic        = errors.New("invalid magic")
	ErrChunkLengthMismatch = errors.New("chunk length mismatch")
	ErrChunkTooDeep        = errors.New("chunk too deep")
	ErrUnsupportedVersion  = errors.New("unsupported version")
)

// DecodeError carries the byte offset at which decoding failed alongside the
// failure kind.
type DecodeError struct {
	Kind   error  // One of the Err* sentinels above
	Offset int    // Absolute offset into the datagram
	Msg    string // Human readable detail
}

func (e *DecodeError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("psn: %v at offset %d", e.Kind, e.Offset)
	}
	return fmt.Sprintf("psn: %v at offset %d: %s", e.Kind, e.Offset, e.Msg)
}

func (e *DecodeError) Unwrap() error { return e.Kind }

func newDecodeError(kind error, offset int, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// ErrorKind reports which sentinel err matches, or nil when err did not originate
// from this package.
func ErrorKind(err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	for _, k := range []error{ErrTruncatedData, ErrInvalidMagic, ErrChunkLengthMismatch, ErrChunkTooDeep, ErrUnsupportedVersion} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
