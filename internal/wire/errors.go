package wire

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Client methods once the connection has reached
// its terminal state, either after CONSUME_RESULT or after a fatal error.
var ErrClosed = errors.New("wire: connection closed")

// TransportError is a fatal protocol failure: connection reset, unknown
// opcode, oversized or malformed frame. The connection is unusable afterwards
// and the failure is never turned into an execution result.
type TransportError struct {
	// Op is the opcode being processed, if any.
	Op Opcode

	// HasOp is false when the failure happened before an opcode was read.
	HasOp bool

	// State is the protocol state the failure happened in.
	State State

	// Reason describes the failure.
	Reason string

	// Err is the underlying I/O or decoding error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := "wire: " + e.Reason
	if e.HasOp {
		msg = fmt.Sprintf("wire: %s: %s", e.Op, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s (state=%s)", msg, e.State)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline expiry.
func (e *TransportError) Timeout() bool {
	var te interface{ Timeout() bool }
	return e.Err != nil && errors.As(e.Err, &te) && te.Timeout()
}

// IsTransportError returns true if err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTimeout returns true if err is a TransportError caused by a deadline.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout()
}
