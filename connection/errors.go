package connection

import "fmt"

// The NotOpenError is used when a send or ping is attempted while the
// websocket is not in the open state.
type NotOpenError struct {
	State State
}

func (e *NotOpenError) Error() string {
	return fmt.Sprintf("websocket connection is %s, not open", e.State)
}

func (e *NotOpenError) Unwrap() error { return nil }

// The ProcessingError is used for transient transport failures: a send or
// ping that failed on a live socket, or a connect interrupted mid-flight.
// Callers are expected to retry.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("transient websocket failure: %s", e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// The FatalError is used when a connection cannot be established at all:
// the configuration is unusable or the allowed connect attempts have been
// exhausted. Retrying without intervention will not help.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal websocket failure: %s", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
