// Package result defines the execution outcome taxonomy shared by the wire
// protocol, the nondeterministic engine and the equivalence principles.
//
// An execution ends in exactly one of four outcomes:
//
//	Return(value)      normal completion with a calldata value
//	Rollback(message)  voluntary, recoverable unwind requested by contract code
//	UserError(message) contract-signalled failure visible to validators
//	VMError(message)   engine-level fault (trap, timeout, resource exhaustion)
//
// Rollback, UserError and VMError are also Go errors, so contract code returns
// them through ordinary error returns and FromError recovers the outcome at the
// protocol boundary. A fifth code, Absent, exists only on the wire to signal
// that no leader result is available.
package result
