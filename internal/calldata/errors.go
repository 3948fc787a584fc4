package calldata

import (
	"errors"
	"fmt"
)

// DecodingError reports a malformed calldata buffer.
// Decoding always fails closed: no partial value is returned alongside it.
type DecodingError struct {
	// Offset is the byte position where decoding stopped.
	Offset int

	// Reason describes the violation.
	Reason string
}

// Error implements the error interface.
func (e *DecodingError) Error() string {
	return fmt.Sprintf("calldata: decoding failed at offset %d: %s", e.Offset, e.Reason)
}

// IsDecodingError returns true if err is or wraps a DecodingError.
func IsDecodingError(err error) bool {
	var de *DecodingError
	return errors.As(err, &de)
}

// EncodingError reports a value that has no canonical encoding
// (nil values, invalid UTF-8, excessive nesting).
type EncodingError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("calldata: cannot encode: %s", e.Reason)
	}
	return fmt.Sprintf("calldata: cannot encode %s: %s", e.Path, e.Reason)
}
