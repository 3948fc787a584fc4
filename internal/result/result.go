package result

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ndvm/internal/calldata"
)

// Result is a sealed union: Return, Rollback, UserError or VMError.
type Result interface {
	Code() Code
	result() // Sealed
}

// Return is normal completion.
type Return struct {
	Value calldata.Value
}

// Rollback is a voluntary unwind of the rest of the current call.
type Rollback struct {
	Message string
}

// UserError is a failure raised by contract logic.
type UserError struct {
	Message string
}

// VMError is an engine-level fault not attributable to contract logic.
type VMError struct {
	Message string
}

func (Return) Code() Code    { return CodeReturn }
func (Rollback) Code() Code  { return CodeRollback }
func (UserError) Code() Code { return CodeUserError }
func (VMError) Code() Code   { return CodeVMError }

func (Return) result()    {}
func (Rollback) result()  {}
func (UserError) result() {}
func (VMError) result()   {}

func (e Rollback) Error() string  { return "rollback: " + e.Message }
func (e UserError) Error() string { return "user error: " + e.Message }
func (e VMError) Error() string   { return "vm error: " + e.Message }

// Rollbackf returns a Rollback error with a formatted message.
func Rollbackf(format string, args ...any) error {
	return Rollback{Message: fmt.Sprintf(format, args...)}
}

// UserErrorf returns a UserError with a formatted message.
func UserErrorf(format string, args ...any) error {
	return UserError{Message: fmt.Sprintf(format, args...)}
}

// VMErrorf returns a VMError with a formatted message.
func VMErrorf(format string, args ...any) error {
	return VMError{Message: fmt.Sprintf(format, args...)}
}

// Vote wraps a validator verdict as the result it is posted as.
func Vote(agree bool) Result {
	return Return{Value: calldata.Bool(agree)}
}

// Message returns the message of an error result, or "" for Return.
func Message(r Result) string {
	switch v := r.(type) {
	case Rollback:
		return v.Message
	case UserError:
		return v.Message
	case VMError:
		return v.Message
	default:
		return ""
	}
}

// FromError normalises an error returned by contract or engine code into a
// Result. Rollback, UserError and VMError keep their kind; timeouts and
// cancellations become VMError("timeout"); everything else becomes a VMError
// carrying the error text. A nil error yields nil.
func FromError(err error) Result {
	if err == nil {
		return nil
	}

	var rb Rollback
	if errors.As(err, &rb) {
		return rb
	}
	var ue UserError
	if errors.As(err, &ue) {
		return ue
	}
	var ve VMError
	if errors.As(err, &ve) {
		return ve
	}
	if IsTimeout(err) {
		return VMError{Message: "timeout"}
	}
	return VMError{Message: err.Error()}
}

// FromOutcome builds a Result from a (value, error) pair.
func FromOutcome(v calldata.Value, err error) Result {
	if err != nil {
		return FromError(err)
	}
	if v == nil {
		v = calldata.Null{}
	}
	return Return{Value: v}
}

// Unpack converts a Result back into a (value, error) pair for contract code.
//
// A VMError is surfaced as UserError("vm error: ...") so that contract code
// sees a catchable contract-level failure, while Rollback and UserError are
// returned unchanged.
func Unpack(r Result) (calldata.Value, error) {
	switch v := r.(type) {
	case Return:
		return v.Value, nil
	case Rollback:
		return nil, v
	case UserError:
		return nil, v
	case VMError:
		return nil, UserError{Message: "vm error: " + v.Message}
	case nil:
		return nil, VMError{Message: "missing result"}
	default:
		return nil, VMError{Message: fmt.Sprintf("unknown result %T", r)}
	}
}

// Raise converts a Result into a (value, error) pair keeping its kind:
// Rollback, UserError and VMError are returned as themselves.
func Raise(r Result) (calldata.Value, error) {
	switch v := r.(type) {
	case Return:
		return v.Value, nil
	case Rollback:
		return nil, v
	case UserError:
		return nil, v
	case VMError:
		return nil, v
	case nil:
		return nil, VMError{Message: "missing result"}
	default:
		return nil, VMError{Message: fmt.Sprintf("unknown result %T", r)}
	}
}

// IsTimeout reports whether err is or wraps a timeout or a context
// cancellation.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// IsRollback returns true if err is or wraps a Rollback.
func IsRollback(err error) bool {
	var rb Rollback
	return errors.As(err, &rb)
}

// IsUserError returns true if err is or wraps a UserError.
func IsUserError(err error) bool {
	var ue UserError
	return errors.As(err, &ue)
}

// IsVMError returns true if err is or wraps a VMError.
func IsVMError(err error) bool {
	var ve VMError
	return errors.As(err, &ve)
}

// Equal reports whether two results have the same tag and the same payload.
func Equal(a, b Result) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Code() != b.Code() {
		return false
	}
	if ra, ok := a.(Return); ok {
		return calldata.Equal(ra.Value, b.(Return).Value)
	}
	return Message(a) == Message(b)
}

// String renders r for logs and traces.
func String(r Result) string {
	if r == nil {
		return "<nil>"
	}
	if ret, ok := r.(Return); ok {
		return "return(" + calldata.Format(ret.Value) + ")"
	}
	return fmt.Sprintf("%s(%q)", r.Code(), Message(r))
}
