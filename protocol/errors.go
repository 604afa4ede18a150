package protocol

import "fmt"

// The MalformedFrameError is used when the on-wire byte layout of a message
// cannot be decoded: a truncated buffer, a declared chunk size that runs past
// the end of the frame, an unknown chunk descriptor, or chunks in an order
// the protocol does not allow.
type MalformedFrameError struct {
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed message frame: %s", e.Reason)
}

func (e *MalformedFrameError) Unwrap() error { return nil }

// The InvalidEnvelopeError is used when an envelope chunk carries content
// that is not valid JSON or does not satisfy the envelope schema.
type InvalidEnvelopeError struct {
	Reason string
}

func (e *InvalidEnvelopeError) Error() string {
	return fmt.Sprintf("invalid message envelope: %s", e.Reason)
}

func (e *InvalidEnvelopeError) Unwrap() error { return nil }

// The InvalidDataError is used when a data or debug chunk fails validation
// against its registered schema.
type InvalidDataError struct {
	SchemaName string
	Reason     string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("message content does not match the %s schema: %s", e.SchemaName, e.Reason)
}

func (e *InvalidDataError) Unwrap() error { return nil }

// The DataParseError is used when a chunk that should carry JSON content
// cannot be parsed as JSON at all.
type DataParseError struct {
	Reason string
}

func (e *DataParseError) Error() string {
	return fmt.Sprintf("invalid JSON content: %s", e.Reason)
}

func (e *DataParseError) Unwrap() error { return nil }
