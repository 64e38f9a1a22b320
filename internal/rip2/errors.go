package rip2

import (
	"errors"
	"fmt"
)

// DecodeKind classifies why a packet could not be decoded.
type DecodeKind int

const (
	// KindMalformed covers structural damage: short buffers, bad magic,
	// length or CRC mismatches, and invalid field counts.
	KindMalformed DecodeKind = iota
	// KindCompressionFailure means the payload could not be decompressed.
	KindCompressionFailure
	// KindSchemaUnavailable means the protocol schema has not been loaded,
	// so no packet can be structurally parsed yet.
	KindSchemaUnavailable
)

func (k DecodeKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindCompressionFailure:
		return "compression-failure"
	case KindSchemaUnavailable:
		return "schema-unavailable"
	default:
		return fmt.Sprintf("decode-kind(%d)", int(k))
	}
}

// DecodeError is returned for any packet that cannot be turned into a
// range image. Decode failures are per-packet and never fatal; the packet
// is dropped and the next one is decoded independently.
type DecodeError struct {
	Kind DecodeKind
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rip2 decode (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("rip2 decode (%s): %s", e.Kind, e.Msg)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func malformedf(format string, args ...any) *DecodeError {
	return &DecodeError{Kind: KindMalformed, Msg: fmt.Sprintf(format, args...)}
}

// DecodeKindOf returns the kind of a decode error, or (0, false) if err is
// not a DecodeError.
func DecodeKindOf(err error) (DecodeKind, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}
